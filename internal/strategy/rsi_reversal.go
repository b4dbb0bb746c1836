package strategy

import (
	"fmt"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/indicator"
)

const reversalName = "REVERSAL"

// RsiReversalConfig tunes the mean-reversion entry. Zero values fall back to
// RSI(14) with 30/70 bands and a 1.5×ATR(14) stop.
type RsiReversalConfig struct {
	Period      int
	Oversold    float64
	Overbought  float64
	ATRPeriod   int
	StopATRMult float64
	MaxHold     time.Duration // 0 = no holding-period exit
}

// RsiReversal compra la recuperación desde sobreventa: exige que el RSI haya
// estado por debajo de la banda en la vela anterior y la haya recuperado en
// la última (confirmación de dos velas, para no coger el cuchillo cayendo).
type RsiReversal struct {
	period      int
	oversold    float64
	overbought  float64
	atrPeriod   int
	stopATRMult float64
	maxHold     time.Duration
}

// NewRsiReversal crea la estrategia con la configuración dada.
func NewRsiReversal(cfg RsiReversalConfig) *RsiReversal {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = 70
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.StopATRMult <= 0 {
		cfg.StopATRMult = 1.5
	}
	return &RsiReversal{
		period:      cfg.Period,
		oversold:    cfg.Oversold,
		overbought:  cfg.Overbought,
		atrPeriod:   cfg.ATRPeriod,
		stopATRMult: cfg.StopATRMult,
		maxHold:     cfg.MaxHold,
	}
}

// Name implementa Strategy.
func (s *RsiReversal) Name() string { return reversalName }

// Lookback implementa Strategy.
func (s *RsiReversal) Lookback() int {
	n := s.period + 3 // seed + two smoothed values for the confirmation
	if m := s.atrPeriod + 1; m > n {
		n = m
	}
	return n
}

// Evaluate implementa Strategy.
func (s *RsiReversal) Evaluate(bars []domain.Candle, open *domain.Position) (domain.Signal, error) {
	if len(bars) < s.Lookback() {
		return domain.Signal{}, fmt.Errorf("strategy.RsiReversal: %d bars, need %d: %w",
			len(bars), s.Lookback(), indicator.ErrInsufficientHistory)
	}

	series, err := indicator.RSISeries(bars, s.period, 2)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy.RsiReversal: %w", err)
	}
	prevRSI, curRSI := series[0], series[1]

	atr, err := indicator.ATR(bars, s.atrPeriod)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("strategy.RsiReversal: %w", err)
	}

	last := bars[len(bars)-1]
	now := last.Timestamp

	if open != nil {
		switch {
		case curRSI >= s.overbought:
			return domain.Signal{
				Strategy: reversalName, Action: domain.ActionExit, Strength: 1,
				Reason:      fmt.Sprintf("RSI %.1f overbought", curRSI),
				GeneratedAt: now,
			}, nil
		case last.Close <= open.StopPrice:
			return domain.Signal{
				Strategy: reversalName, Action: domain.ActionExit, Strength: 1,
				Reason:      fmt.Sprintf("stop %.2f breached", open.StopPrice),
				GeneratedAt: now,
			}, nil
		case s.maxHold > 0 && now.Sub(open.OpenedAt) >= s.maxHold:
			return domain.Signal{
				Strategy: reversalName, Action: domain.ActionExit, Strength: 1,
				Reason:      fmt.Sprintf("held %s, past max hold", now.Sub(open.OpenedAt)),
				GeneratedAt: now,
			}, nil
		}
		return domain.Hold(reversalName, "position open", now), nil
	}

	if !(prevRSI < s.oversold && curRSI >= s.oversold) {
		return domain.Hold(reversalName, "no oversold recovery", now), nil
	}

	// La fuerza crece con la profundidad de la sobreventa previa.
	strength := clamp01(0.5 + (s.oversold-prevRSI)/s.oversold)

	return domain.Signal{
		Strategy:    reversalName,
		Action:      domain.ActionEnterLong,
		Strength:    strength,
		Stop:        last.Close - s.stopATRMult*atr,
		Reason:      fmt.Sprintf("RSI recovered %.1f → %.1f through %.0f", prevRSI, curRSI, s.oversold),
		GeneratedAt: now,
	}, nil
}
