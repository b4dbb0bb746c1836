package indicator_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/indicator"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// flatBars builds n identical candles spaced 4h apart.
func flatBars(n int, high, low, close float64) []domain.Candle {
	bars := make([]domain.Candle, n)
	for i := range bars {
		bars[i] = domain.Candle{
			Timestamp: t0.Add(time.Duration(i) * 4 * time.Hour),
			Open:      close, High: high, Low: low, Close: close,
			Volume: 100,
		}
	}
	return bars
}

// barsFromCloses builds candles whose OHLC collapse to the given closes.
func barsFromCloses(closes []float64) []domain.Candle {
	bars := make([]domain.Candle, len(closes))
	for i, c := range closes {
		bars[i] = domain.Candle{
			Timestamp: t0.Add(time.Duration(i) * 4 * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return bars
}

func TestRSI_InsufficientHistory(t *testing.T) {
	bars := barsFromCloses([]float64{10, 11, 12})
	_, err := indicator.RSI(bars, 14)
	require.Error(t, err)
	assert.True(t, errors.Is(err, indicator.ErrInsufficientHistory))
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// period 3, closes 10, 11, 10.5, 11.5, 12:
	// seed avgGain=2/3, avgLoss=1/6 → RSI 80 at index 3
	// next delta +0.5 → avgGain=0.6111, avgLoss=0.1111 → RSI ≈ 84.615
	bars := barsFromCloses([]float64{10, 11, 10.5, 11.5, 12})
	rsi, err := indicator.RSI(bars, 3)
	require.NoError(t, err)
	assert.InDelta(t, 84.615, rsi, 0.01)
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, err := indicator.RSI(barsFromCloses(closes), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)
}

func TestRSI_FlatSeriesIsNeutral(t *testing.T) {
	rsi, err := indicator.RSI(flatBars(30, 100, 100, 100), 14)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rsi)
}

func TestRSISeries_CountAndOrder(t *testing.T) {
	closes := []float64{10, 9, 8, 7, 8, 9, 10, 11, 12, 13}
	series, err := indicator.RSISeries(barsFromCloses(closes), 3, 2)
	require.NoError(t, err)
	require.Len(t, series, 2)
	// Rally into the last bars: RSI should be rising.
	assert.Greater(t, series[1], series[0])
}

func TestATR_KnownValues(t *testing.T) {
	bars := []domain.Candle{
		{Timestamp: t0, High: 10, Low: 10, Close: 10},
		{Timestamp: t0.Add(4 * time.Hour), High: 12, Low: 9, Close: 11},  // tr=3
		{Timestamp: t0.Add(8 * time.Hour), High: 11, Low: 10, Close: 10}, // tr=1
	}
	atr, err := indicator.ATR(bars, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-9)
}

func TestATR_GapUsesPrevClose(t *testing.T) {
	// Gap up: H−L is small but |H−prevClose| dominates.
	bars := []domain.Candle{
		{Timestamp: t0, High: 10, Low: 10, Close: 10},
		{Timestamp: t0.Add(4 * time.Hour), High: 15, Low: 14.5, Close: 15},
	}
	atr, err := indicator.ATR(bars, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, atr, 1e-9)
}

func TestATR_InsufficientHistory(t *testing.T) {
	_, err := indicator.ATR(flatBars(5, 10, 9, 9.5), 14)
	assert.True(t, errors.Is(err, indicator.ErrInsufficientHistory))
}

func TestIchimoku_InsufficientHistory(t *testing.T) {
	cfg := indicator.DefaultIchimoku()
	_, err := indicator.ComputeIchimoku(flatBars(cfg.Lookback()-1, 10, 8, 9), cfg, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, indicator.ErrInsufficientHistory))
}

func TestIchimoku_FlatSeries(t *testing.T) {
	cfg := indicator.DefaultIchimoku()
	bars := flatBars(cfg.Lookback(), 10, 8, 9)

	v, err := indicator.ComputeIchimoku(bars, cfg, 0)
	require.NoError(t, err)

	// All midpoints collapse to (10+8)/2 on identical bars.
	assert.InDelta(t, 9.0, v.Tenkan, 1e-9)
	assert.InDelta(t, 9.0, v.Kijun, 1e-9)
	assert.InDelta(t, 9.0, v.SenkouA, 1e-9)
	assert.InDelta(t, 9.0, v.SenkouB, 1e-9)
	assert.InDelta(t, 9.0, v.CloudTop(), 1e-9)
	assert.InDelta(t, 9.0, v.Chikou, 1e-9)
}

func TestIchimoku_RecentRallyLiftsTenkanFirst(t *testing.T) {
	cfg := indicator.DefaultIchimoku()
	bars := flatBars(cfg.Lookback()+10, 10, 8, 9)
	// Push the last 10 bars up: the 9-bar tenkan window sees only rally
	// bars, while the 26-bar kijun and the displaced spans still carry the
	// old lows.
	for i := len(bars) - 10; i < len(bars); i++ {
		bars[i].High = 14
		bars[i].Low = 12
		bars[i].Close = 13
		bars[i].Open = 12.5
	}

	v, err := indicator.ComputeIchimoku(bars, cfg, 0)
	require.NoError(t, err)
	assert.Greater(t, v.Tenkan, v.Kijun)
	assert.InDelta(t, 9.0, v.SenkouA, 1e-9)
	assert.InDelta(t, 9.0, v.SenkouB, 1e-9)
}

func TestIchimoku_OffsetEvaluatesEarlierBar(t *testing.T) {
	cfg := indicator.DefaultIchimoku()
	bars := flatBars(cfg.Lookback()+1, 10, 8, 9)
	// Only the final bar differs; offset=1 must not see it.
	bars[len(bars)-1].High = 20
	bars[len(bars)-1].Low = 18
	bars[len(bars)-1].Close = 19

	prev, err := indicator.ComputeIchimoku(bars, cfg, 1)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, prev.Tenkan, 1e-9)

	cur, err := indicator.ComputeIchimoku(bars, cfg, 0)
	require.NoError(t, err)
	assert.Greater(t, cur.Tenkan, prev.Tenkan)
}
