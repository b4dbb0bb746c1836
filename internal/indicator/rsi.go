package indicator

import (
	"fmt"

	"github.com/kumotrade/kumobot/internal/domain"
)

// RSI computes the Wilder-smoothed relative strength index for the latest
// bar. Needs period+1 bars for the seed averages plus at least one smoothed
// step, so the minimum input length is period+2.
func RSI(bars []domain.Candle, period int) (float64, error) {
	series, err := RSISeries(bars, period, 1)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// RSISeries returns the last `count` RSI values, oldest first. Strategies
// use count=2 for the two-bar oversold-recovery confirmation.
func RSISeries(bars []domain.Candle, period, count int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicator.RSISeries: invalid period %d", period)
	}
	if count <= 0 {
		return nil, fmt.Errorf("indicator.RSISeries: invalid count %d", count)
	}
	need := period + 1 + count
	if len(bars) < need {
		return nil, fmt.Errorf("indicator.RSISeries: %d bars, need %d: %w",
			len(bars), need, ErrInsufficientHistory)
	}

	closes := domain.Closes(bars)

	// Seed: simple averages over the first `period` deltas.
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the rest of the series.
	values := make([]float64, 0, len(closes)-period)
	values = append(values, rsiFrom(avgGain, avgLoss))
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values = append(values, rsiFrom(avgGain, avgLoss))
	}

	return values[len(values)-count:], nil
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // flat series: no momentum either way
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
