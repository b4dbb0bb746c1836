// Package strategy contains the signal evaluators. Strategies are pure with
// respect to portfolio state: they read candles plus the currently open
// position and emit a Signal, never mutating anything. The set of variants
// is closed and resolved at configuration time — there is no by-name
// registry to fail at runtime.
package strategy

import (
	"github.com/kumotrade/kumobot/internal/domain"
)

// Strategy evalúa la última vela y decide entrar, salir o mantener.
type Strategy interface {
	// Name identifica la estrategia en posiciones, órdenes y logs.
	Name() string

	// Lookback es el mínimo de velas que Evaluate necesita.
	Lookback() int

	// Evaluate produce la señal para la última vela. open es la posición
	// OPEN de esta estrategia en el símbolo, o nil. Con posición abierta,
	// un setup de entrada se trata como HOLD: una sola posición por par.
	Evaluate(bars []domain.Candle, open *domain.Position) (domain.Signal, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
