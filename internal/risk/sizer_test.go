package risk_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/internal/risk"
)

func newSizer(riskPerTrade float64) *risk.Sizer {
	return risk.NewSizer(risk.SizerConfig{
		RiskPerTrade: riskPerTrade,
		FeeRate:      0.001,
		MinQtyStep:   0.000001,
	})
}

func TestSize_RiskBudgetScenario(t *testing.T) {
	// equity=4000, risk_per_trade=0.015 → $60 at risk. With entry 100 and
	// stop 97, (entry−stop)×qty must come out ≈ 60 → qty ≈ 20.
	s := newSizer(0.015)

	qty, err := s.Size(0.9, 4000, 4000, 100, 97)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, (100-97)*qty, 0.01)
	assert.InDelta(t, 20.0, qty, 0.001)
}

func TestSize_AllocationCapsExposure(t *testing.T) {
	// Tight stop would size huge; the 10% allocation caps notional at
	// 0.1×4000 = $400 → qty 4 at entry 100.
	s := newSizer(0.015)

	qty, err := s.Size(0.1, 4000, 4000, 100, 99.9)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, qty, 0.001)
}

func TestSize_InsufficientFunds(t *testing.T) {
	s := newSizer(0.015)

	// Equity counts open positions but only $10 cash remains.
	_, err := s.Size(0.9, 4000, 10, 100, 97)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrInsufficientFunds))
}

func TestSize_InvalidAllocation(t *testing.T) {
	s := newSizer(0.015)

	for _, alloc := range []float64{0, -0.5, 1.5} {
		_, err := s.Size(alloc, 4000, 4000, 100, 97)
		require.Error(t, err, "allocation %v", alloc)
		assert.True(t, errors.Is(err, risk.ErrInvalidAllocation))
	}
}

func TestSize_StopMustSitBelowEntry(t *testing.T) {
	s := newSizer(0.015)

	_, err := s.Size(0.9, 4000, 4000, 100, 100)
	assert.Error(t, err)
	_, err = s.Size(0.9, 4000, 4000, 100, 105)
	assert.Error(t, err)
	_, err = s.Size(0.9, 4000, 4000, 100, 0)
	assert.Error(t, err)
}

func TestSize_ClampsToExchangeStep(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		RiskPerTrade: 0.015,
		MinQtyStep:   0.001,
	})

	// Raw qty 60/3 = 20.0000…; with a coarser step the floor keeps it on
	// the grid.
	qty, err := s.Size(0.9, 4000, 4000, 101, 98)
	require.NoError(t, err)
	assert.InDelta(t, qty, float64(int(qty*1000))/1000, 1e-9)
}

func TestSize_BelowMinimumIncrement(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		RiskPerTrade: 0.0001,
		MinQtyStep:   1.0, // whole units only
	})

	// $0.40 of risk against a $3 stop distance sizes to 0.13 units → floors
	// to zero whole units.
	_, err := s.Size(0.9, 4000, 4000, 100, 97)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrZeroQuantity))
}
