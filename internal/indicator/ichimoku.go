package indicator

import (
	"fmt"

	"github.com/kumotrade/kumobot/internal/domain"
)

// IchimokuConfig holds the five lookback windows. The defaults are the
// commonly cited 9/26/52 with a displacement of 26.
type IchimokuConfig struct {
	Tenkan       int // conversion line window
	Kijun        int // base line window
	SenkouB      int // leading span B window
	Displacement int // forward projection of the cloud / chikou lag
}

// DefaultIchimoku returns the standard 9/26/52/26 configuration.
func DefaultIchimoku() IchimokuConfig {
	return IchimokuConfig{Tenkan: 9, Kijun: 26, SenkouB: 52, Displacement: 26}
}

// Lookback is the number of bars needed to evaluate the latest bar: the
// leading spans in effect today were computed Displacement bars ago, so the
// SenkouB window has to fit behind that shift.
func (c IchimokuConfig) Lookback() int {
	return c.SenkouB + c.Displacement
}

// Ichimoku holds the cloud components in effect at the latest bar.
// SenkouA/SenkouB are the displaced values (computed Displacement bars back)
// that price is compared against right now. Chikou is the close Displacement
// bars back — the live reading of the lagging span, since the textbook
// shift(-displacement) only exists in hindsight.
type Ichimoku struct {
	Tenkan  float64
	Kijun   float64
	SenkouA float64
	SenkouB float64
	Chikou  float64
}

// CloudTop devuelve el borde superior de la nube vigente.
func (v Ichimoku) CloudTop() float64 {
	if v.SenkouA > v.SenkouB {
		return v.SenkouA
	}
	return v.SenkouB
}

// ComputeIchimoku calcula los componentes para la última vela, y también
// para la vela en offset velas hacia atrás cuando offset > 0 (las
// estrategias lo usan para detectar cruces tenkan/kijun).
func ComputeIchimoku(bars []domain.Candle, cfg IchimokuConfig, offset int) (Ichimoku, error) {
	if cfg.Tenkan <= 0 || cfg.Kijun <= 0 || cfg.SenkouB <= 0 || cfg.Displacement <= 0 {
		return Ichimoku{}, fmt.Errorf("indicator.ComputeIchimoku: invalid config %+v", cfg)
	}
	need := cfg.Lookback() + offset
	if len(bars) < need {
		return Ichimoku{}, fmt.Errorf("indicator.ComputeIchimoku: %d bars, need %d: %w",
			len(bars), need, ErrInsufficientHistory)
	}

	// idx is the bar being evaluated; spans in effect there were computed
	// at idx-displacement.
	idx := len(bars) - 1 - offset
	shifted := idx - cfg.Displacement

	tenkan := midpoint(bars, idx, cfg.Tenkan)
	kijun := midpoint(bars, idx, cfg.Kijun)

	senkouA := (midpoint(bars, shifted, cfg.Tenkan) + midpoint(bars, shifted, cfg.Kijun)) / 2
	senkouB := midpoint(bars, shifted, cfg.SenkouB)

	return Ichimoku{
		Tenkan:  tenkan,
		Kijun:   kijun,
		SenkouA: senkouA,
		SenkouB: senkouB,
		Chikou:  bars[shifted].Close,
	}, nil
}

// midpoint is (highest high + lowest low) / 2 over the window ending at idx.
func midpoint(bars []domain.Candle, idx, window int) float64 {
	hi := bars[idx].High
	lo := bars[idx].Low
	for i := idx - window + 1; i < idx; i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	return (hi + lo) / 2
}
