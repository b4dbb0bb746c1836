package strategy

import (
	"fmt"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/indicator"
)

const ichimokuName = "ICHIMOKU"

// IchimokuTrendConfig tunes the trend follower. Zero values fall back to the
// standard 9/26/52/26 cloud with a 2×ATR(14) stop.
type IchimokuTrendConfig struct {
	Cloud       indicator.IchimokuConfig
	ATRPeriod   int
	StopATRMult float64
}

// IchimokuTrend goes long when price breaks above the cloud with a
// tenkan/kijun cross, and exits when price falls back to the cloud or the
// volatility stop is hit.
type IchimokuTrend struct {
	cloud       indicator.IchimokuConfig
	atrPeriod   int
	stopATRMult float64
}

// NewIchimokuTrend crea la estrategia con la configuración dada.
func NewIchimokuTrend(cfg IchimokuTrendConfig) *IchimokuTrend {
	if cfg.Cloud.Tenkan <= 0 {
		cfg.Cloud = indicator.DefaultIchimoku()
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.StopATRMult <= 0 {
		cfg.StopATRMult = 2.0
	}
	return &IchimokuTrend{
		cloud:       cfg.Cloud,
		atrPeriod:   cfg.ATRPeriod,
		stopATRMult: cfg.StopATRMult,
	}
}

// Name implementa Strategy.
func (s *IchimokuTrend) Name() string { return ichimokuName }

// Lookback implementa Strategy. +1 porque la detección del cruce necesita
// también los valores de la vela anterior.
func (s *IchimokuTrend) Lookback() int {
	n := s.cloud.Lookback() + 1
	if m := s.atrPeriod + 1; m > n {
		n = m
	}
	return n
}

// Evaluate implementa Strategy.
func (s *IchimokuTrend) Evaluate(bars []domain.Candle, open *domain.Position) (domain.Signal, error) {
	if len(bars) < s.Lookback() {
		return domain.Signal{}, fmt.Errorf("strategy.IchimokuTrend: %d bars, need %d: %w",
			len(bars), s.Lookback(), indicator.ErrInsufficientHistory)
	}

	cur, err := indicator.ComputeIchimoku(bars, s.cloud, 0)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy.IchimokuTrend: %w", err)
	}
	prev, err := indicator.ComputeIchimoku(bars, s.cloud, 1)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy.IchimokuTrend: %w", err)
	}
	atr, err := indicator.ATR(bars, s.atrPeriod)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy.IchimokuTrend: %w", err)
	}

	last := bars[len(bars)-1]
	now := last.Timestamp

	if open != nil {
		if exit, reason := s.exitCondition(bars, cur, open, last.Close, atr); exit {
			return domain.Signal{
				Strategy:    ichimokuName,
				Action:      domain.ActionExit,
				Strength:    1,
				Reason:      reason,
				GeneratedAt: now,
			}, nil
		}
		return domain.Hold(ichimokuName, "position open, trend intact", now), nil
	}

	crossUp := prev.Tenkan <= prev.Kijun && cur.Tenkan > cur.Kijun
	aboveCloud := last.Close > cur.SenkouA && last.Close > cur.SenkouB
	if !crossUp || !aboveCloud {
		return domain.Hold(ichimokuName, "no breakout setup", now), nil
	}

	// Confirmaciones secundarias: suben la fuerza de la señal, no la vetan.
	strength := 0.6
	if last.Close > cur.Chikou {
		strength += 0.2 // price above where it was a displacement ago
	}
	if cur.SenkouA > cur.SenkouB {
		strength += 0.2 // bullish cloud
	}

	return domain.Signal{
		Strategy:    ichimokuName,
		Action:      domain.ActionEnterLong,
		Strength:    clamp01(strength),
		Stop:        last.Close - s.stopATRMult*atr,
		Reason:      "close above cloud, tenkan crossed over kijun",
		GeneratedAt: now,
	}, nil
}

// exitCondition: salida cuando el precio vuelve a la nube o pierde el stop
// trailing. El stop efectivo es el mayor entre el stop de entrada y el stop
// de volatilidad colgado del máximo cierre reciente — solo sube, nunca baja.
func (s *IchimokuTrend) exitCondition(bars []domain.Candle, cur indicator.Ichimoku, open *domain.Position, close float64, atr float64) (bool, string) {
	if close <= cur.CloudTop() {
		return true, "close back inside the cloud"
	}

	trail := s.trailingStop(bars, open, atr)
	if close <= trail {
		return true, fmt.Sprintf("trailing stop %.2f breached", trail)
	}
	return false, ""
}

// trailingStop cuelga el stop del máximo cierre del tramo reciente. La
// ventana kijun es un proxy razonable del tramo de la tendencia en curso.
func (s *IchimokuTrend) trailingStop(bars []domain.Candle, open *domain.Position, atr float64) float64 {
	window := s.cloud.Kijun
	if window > len(bars) {
		window = len(bars)
	}
	highClose := 0.0
	for _, b := range bars[len(bars)-window:] {
		if b.Timestamp.Before(open.OpenedAt) {
			continue
		}
		if b.Close > highClose {
			highClose = b.Close
		}
	}
	trail := highClose - s.stopATRMult*atr
	if open.StopPrice > trail {
		return open.StopPrice
	}
	return trail
}
