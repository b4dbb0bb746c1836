package indicator

import (
	"fmt"
	"math"

	"github.com/kumotrade/kumobot/internal/domain"
)

// ATR computes the simple-average true range over the last `period` bars.
// True range is max(H−L, |H−prevClose|, |L−prevClose|), so period+1 bars are
// required for the first previous close.
func ATR(bars []domain.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("indicator.ATR: invalid period %d", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("indicator.ATR: %d bars, need %d: %w",
			len(bars), period+1, ErrInsufficientHistory)
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period), nil
}

func trueRange(b domain.Candle, prevClose float64) float64 {
	tr := b.High - b.Low
	if v := math.Abs(b.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(b.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}
