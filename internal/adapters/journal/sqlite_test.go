package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/internal/adapters/journal"
	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
)

func makeSnapshot(at time.Time, equity float64) domain.EquitySnapshot {
	return domain.EquitySnapshot{
		Timestamp:     at,
		TotalEquity:   equity,
		Cash:          equity * 0.6,
		UnrealizedPnL: 12.5,
		OpenPositions: 1,
	}
}

func TestSQLiteJournal_RecordTrade(t *testing.T) {
	j, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	err = j.RecordTrade(context.Background(), ports.TradeRecord{
		Timestamp: time.Now().UTC(),
		Symbol:    "BTCUSDT",
		Strategy:  "ICHIMOKU",
		Action:    "BUY",
		Quantity:  0.05,
		Price:     50025,
		Fee:       2.5,
	})
	assert.NoError(t, err)
}

func TestSQLiteJournal_EquityHistoryOrderedAscending(t *testing.T) {
	j, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Insertados en desorden a propósito
	require.NoError(t, j.RecordEquity(ctx, makeSnapshot(now, 4100)))
	require.NoError(t, j.RecordEquity(ctx, makeSnapshot(now.Add(-2*time.Hour), 4000)))
	require.NoError(t, j.RecordEquity(ctx, makeSnapshot(now.Add(-time.Hour), 4050)))

	history, err := j.EquityHistory(ctx, now.Add(-3*time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.InDelta(t, 4000, history[0].TotalEquity, 0.001)
	assert.InDelta(t, 4050, history[1].TotalEquity, 0.001)
	assert.InDelta(t, 4100, history[2].TotalEquity, 0.001)
	assert.Equal(t, 1, history[2].OpenPositions)
}

func TestSQLiteJournal_EquityHistoryRespectsRange(t *testing.T) {
	j, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, j.RecordEquity(ctx, makeSnapshot(now.Add(-48*time.Hour), 3900)))
	require.NoError(t, j.RecordEquity(ctx, makeSnapshot(now, 4000)))

	history, err := j.EquityHistory(ctx, now.Add(-time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 4000, history[0].TotalEquity, 0.001)
}

func TestSQLiteJournal_EmptyRange(t *testing.T) {
	j, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	history, err := j.EquityHistory(context.Background(),
		time.Now().Add(-time.Hour),
		time.Now(),
	)
	require.NoError(t, err)
	assert.Empty(t, history)
}
