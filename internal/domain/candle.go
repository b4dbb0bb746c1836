package domain

import (
	"fmt"
	"time"
)

// Candle es una vela OHLCV inmutable. Las secuencias de velas siempre van
// ordenadas por timestamp estrictamente creciente y sin duplicados.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ValidateSeries verifica que la secuencia esté ordenada y sin duplicados.
func ValidateSeries(bars []Candle) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("domain.ValidateSeries: bar %d timestamp %s not after %s",
				i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extrae la serie de cierres.
func Closes(bars []Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
