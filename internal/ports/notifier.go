package ports

import (
	"context"

	"github.com/kumotrade/kumobot/internal/domain"
)

// Notifier surfaces operator-facing events: FAILED orders, UNKNOWN orders
// pending reconciliation, state-store backup fallbacks, circuit trips.
type Notifier interface {
	// Notify delivers one event. Best effort — errors are logged by the
	// caller, never fatal.
	Notify(ctx context.Context, ev domain.Event) error

	// Summary presenta el estado del portfolio tras cada tick (tabla de
	// posiciones abiertas + equity en la implementación de consola).
	Summary(ctx context.Context, state *domain.PortfolioState, snap domain.EquitySnapshot) error
}
