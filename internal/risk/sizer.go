// Package risk converts signals into order quantities under the configured
// risk budget: the dollar distance from entry to stop, times the quantity,
// never exceeds risk_per_trade × equity, and each strategy stays inside its
// allocation fraction of equity.
package risk

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientFunds: el cash disponible no cubre el coste de la orden.
	ErrInsufficientFunds = errors.New("risk: insufficient funds")

	// ErrInvalidAllocation: fracción de allocation fuera de (0, 1].
	ErrInvalidAllocation = errors.New("risk: invalid allocation")

	// ErrZeroQuantity: la cantidad resultante quedó por debajo del
	// incremento mínimo del exchange.
	ErrZeroQuantity = errors.New("risk: quantity below minimum increment")
)

// SizerConfig fija el presupuesto de riesgo global y los límites del exchange.
type SizerConfig struct {
	RiskPerTrade float64 // fraction of equity risked per trade
	FeeRate      float64 // taker fee charged on the notional
	MinQtyStep   float64 // exchange minimum tradable increment
}

// Sizer calcula cantidades de orden. Las fracciones de allocation por
// estrategia se validan en Config.Validate() al arrancar; aquí solo se
// re-chequea la fracción individual que llega con cada petición.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer crea el sizer con la configuración dada.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.MinQtyStep <= 0 {
		cfg.MinQtyStep = 0.000001
	}
	return &Sizer{cfg: cfg}
}

// Size devuelve la cantidad a comprar para una entrada con el stop dado.
//
//   - riesgo en dólares: (entry − stop) × qty ≤ RiskPerTrade × equity
//   - exposición: qty × entry ≤ allocation × equity
//   - liquidez: coste total (notional + fee) ≤ cash
//
// La cantidad se redondea hacia abajo al incremento mínimo del exchange.
func (s *Sizer) Size(allocation, equity, cash, entry, stop float64) (float64, error) {
	if allocation <= 0 || allocation > 1 {
		return 0, fmt.Errorf("risk.Size: allocation %.4f: %w", allocation, ErrInvalidAllocation)
	}
	if entry <= 0 {
		return 0, fmt.Errorf("risk.Size: invalid entry price %.4f", entry)
	}
	if stop <= 0 || stop >= entry {
		return 0, fmt.Errorf("risk.Size: stop %.4f must sit below entry %.4f", stop, entry)
	}

	riskPerUnit := entry - stop
	qty := s.cfg.RiskPerTrade * equity / riskPerUnit

	// Cap por allocation de la estrategia.
	if maxQty := allocation * equity / entry; qty > maxQty {
		qty = maxQty
	}

	qty = s.clampToStep(qty)
	if qty <= 0 {
		return 0, fmt.Errorf("risk.Size: entry %.4f stop %.4f: %w", entry, stop, ErrZeroQuantity)
	}

	cost := qty * entry * (1 + s.cfg.FeeRate)
	if cost > cash {
		return 0, fmt.Errorf("risk.Size: need %.2f, have %.2f: %w", cost, cash, ErrInsufficientFunds)
	}

	return qty, nil
}

// clampToStep redondea hacia abajo al múltiplo del incremento mínimo.
func (s *Sizer) clampToStep(qty float64) float64 {
	steps := math.Floor(qty / s.cfg.MinQtyStep)
	return steps * s.cfg.MinQtyStep
}
