package statefile_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/internal/adapters/statefile"
	"github.com/kumotrade/kumobot/internal/domain"
)

func sampleState(cash float64) *domain.PortfolioState {
	st := domain.NewPortfolioState(cash)
	st.Positions = append(st.Positions, domain.Position{
		Strategy: "ICHIMOKU", Symbol: "BTCUSDT", Quantity: 0.25,
		EntryPrice: 40000, StopPrice: 38000,
		OpenedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:   domain.PositionOpen,
	})
	st.LastCheckpointAt = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	return st
}

func TestStore_FirstRunIsEmpty(t *testing.T) {
	s := statefile.New(filepath.Join(t.TempDir(), "state.json"))
	st, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStore_CommitThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(3500)))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3500.0, loaded.Cash)
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, "ICHIMOKU", loaded.Positions[0].Strategy)
	assert.Equal(t, domain.PositionOpen, loaded.Positions[0].Status)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_SecondCommitRotatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(1000)))
	require.NoError(t, s.Commit(sampleState(2000)))

	// Backup holds the previous generation.
	backup := statefile.New(path + ".backup")
	prev, err := backup.Load()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, prev.Cash)

	cur, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 2000.0, cur.Cash)
}

func TestStore_CorruptPrimaryFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(1000)))
	require.NoError(t, s.Commit(sampleState(2000)))

	// Simulate a torn write: truncate the primary mid-file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	var hookCause error
	s.FallbackHook = func(cause error) { hookCause = cause }

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1000.0, loaded.Cash, "must restore the backup generation")
	assert.Error(t, hookCause, "degradation hook must fire")
}

func TestStore_ChecksumMismatchDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(1000)))
	require.NoError(t, s.Commit(sampleState(2000)))

	// Flip the cash figure inside the checksummed payload without breaking
	// the JSON structure.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte("2000"), []byte("9000"), 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, loaded.Cash, "tampered primary must fall back")
}

func TestStore_BothGenerationsCorruptIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(1000)))
	require.NoError(t, s.Commit(sampleState(2000)))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(path+".backup", []byte("garbage"), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, statefile.ErrCorruptState))
}

func TestStore_CrashBetweenRotateAndRename(t *testing.T) {
	// Simulate dying after the primary moved to backup but before the temp
	// renamed into place: primary missing, backup valid.
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	require.NoError(t, s.Commit(sampleState(1000)))
	require.NoError(t, os.Rename(path, path+".backup"))

	fired := false
	s.FallbackHook = func(error) { fired = true }

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1000.0, loaded.Cash)
	assert.True(t, fired)
}

func TestStore_PendingOrdersSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := statefile.New(path)

	st := domain.NewPortfolioState(4000)
	st.UpsertOrder(domain.PendingOrder{
		ClientID: "c-77", Strategy: "REVERSAL", Symbol: "BTCUSDT",
		Side: domain.SideBuy, Quantity: 0.1, PriceHint: 50000,
		Status: domain.OrderUnknown, AttemptCount: 2,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, s.Commit(st))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded.UnresolvedOrders(), 1)
	assert.Equal(t, "c-77", loaded.UnresolvedOrders()[0].ClientID)
	assert.True(t, loaded.HasUnresolved("REVERSAL", "BTCUSDT"))
}
