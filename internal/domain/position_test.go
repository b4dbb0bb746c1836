package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/internal/domain"
)

func openPosition(strategy string, qty, entry float64) domain.Position {
	return domain.Position{
		Strategy: strategy, Symbol: "BTCUSDT",
		Quantity: qty, EntryPrice: entry, StopPrice: entry * 0.97,
		OpenedAt: time.Now(), Status: domain.PositionOpen,
	}
}

func TestOpenPositionFindsOnlyOpenPair(t *testing.T) {
	state := domain.NewPortfolioState(1000)
	closed := openPosition("ICHIMOKU", 1, 100)
	closed.Status = domain.PositionClosed
	state.Positions = append(state.Positions, closed, openPosition("REVERSAL", 2, 100))

	assert.Nil(t, state.OpenPosition("ICHIMOKU", "BTCUSDT"))
	pos := state.OpenPosition("REVERSAL", "BTCUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, 2.0, pos.Quantity)
}

func TestEquityMarksOpenPositionsToLastPrice(t *testing.T) {
	state := domain.NewPortfolioState(1000)
	state.Positions = append(state.Positions, openPosition("ICHIMOKU", 2, 100))

	total, unrealized := state.Equity(110)
	assert.InDelta(t, 1000+2*110, total, 1e-9)
	assert.InDelta(t, 2*10, unrealized, 1e-9)
}

func TestHasUnresolvedBlocksOnlyThatPair(t *testing.T) {
	state := domain.NewPortfolioState(1000)
	state.UpsertOrder(domain.PendingOrder{
		ClientID: "u-1", Strategy: "ICHIMOKU", Symbol: "BTCUSDT",
		Status: domain.OrderUnknown,
	})

	assert.True(t, state.HasUnresolved("ICHIMOKU", "BTCUSDT"))
	assert.False(t, state.HasUnresolved("REVERSAL", "BTCUSDT"))
	assert.False(t, state.HasUnresolved("ICHIMOKU", "ETHUSDT"))
}

func TestPruneTerminalOrdersKeepsUnknown(t *testing.T) {
	state := domain.NewPortfolioState(1000)
	old := time.Now().Add(-48 * time.Hour)
	state.UpsertOrder(domain.PendingOrder{ClientID: "a", Status: domain.OrderFilled, CreatedAt: old})
	state.UpsertOrder(domain.PendingOrder{ClientID: "b", Status: domain.OrderFailed, CreatedAt: old})
	state.UpsertOrder(domain.PendingOrder{ClientID: "c", Status: domain.OrderUnknown, CreatedAt: old})
	state.UpsertOrder(domain.PendingOrder{ClientID: "d", Status: domain.OrderFilled, CreatedAt: time.Now()})

	state.PruneTerminalOrders(time.Now().Add(-24 * time.Hour))

	ids := make([]string, 0, len(state.PendingOrders))
	for _, o := range state.PendingOrders {
		ids = append(ids, o.ClientID)
	}
	assert.ElementsMatch(t, []string{"c", "d"}, ids, "UNKNOWN nunca se poda, por antiguo que sea")
}

func TestCloneIsIndependent(t *testing.T) {
	state := domain.NewPortfolioState(1000)
	state.Positions = append(state.Positions, openPosition("ICHIMOKU", 1, 100))

	cp := state.Clone()
	cp.Cash = 0
	cp.Positions[0].Quantity = 999

	assert.Equal(t, 1000.0, state.Cash)
	assert.Equal(t, 1.0, state.Positions[0].Quantity)
}

func TestCircuitBreakerTripsAndCoolsDown(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	br := domain.NewCircuitBreaker(3, 30*time.Minute)
	br.SetClock(clock)

	br.RecordFailure("timeout")
	br.RecordFailure("timeout")
	assert.True(t, br.Allow(), "por debajo del umbral sigue permitiendo")

	br.RecordFailure("timeout")
	assert.False(t, br.Allow(), "tercer fallo consecutivo dispara el breaker")

	now = now.Add(31 * time.Minute)
	assert.True(t, br.Allow(), "tras el cooldown vuelve a permitir")
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	br := domain.NewCircuitBreaker(3, time.Minute)
	br.RecordFailure("x")
	br.RecordFailure("x")
	br.RecordSuccess()
	br.RecordFailure("x")
	br.RecordFailure("x")

	assert.True(t, br.Allow(), "el éxito intermedio reinicia la cuenta")
}
