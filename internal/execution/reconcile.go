package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kumotrade/kumobot/internal/domain"
)

// Reconcile resolves every UNKNOWN order in the state by asking the exchange
// for its true outcome by client id. Orders are mutated in place to FILLED
// or FAILED. It returns the resolved orders so the caller can apply position
// and cash effects, and an error if any order could not be resolved — in
// that case trading for the affected pairs must not resume.
func (c *Controller) Reconcile(ctx context.Context, state *domain.PortfolioState) ([]domain.PendingOrder, error) {
	var resolved []domain.PendingOrder
	var firstErr error

	for i := range state.PendingOrders {
		o := &state.PendingOrders[i]
		if o.Status != domain.OrderUnknown {
			continue
		}

		rep, err := c.exch.GetOrderStatus(ctx, o.Symbol, o.ClientID)
		if err != nil {
			slog.Warn("execution: reconciliation query failed, order stays UNKNOWN",
				"client_id", o.ClientID, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("execution.Reconcile: order %s: %w", o.ClientID, err)
			}
			continue
		}

		switch rep.Status {
		case domain.OrderFilled:
			o.Status = domain.OrderFilled
			o.FilledQuantity = rep.FilledQuantity
			o.FilledPrice = rep.FilledPrice
			o.Fee = rep.Fee
			slog.Info("execution: reconciled UNKNOWN order as FILLED",
				"client_id", o.ClientID, "qty", rep.FilledQuantity, "price", rep.FilledPrice)

		default:
			// No llegó, fue rechazada o quedó cancelada sin fill: el efecto
			// sobre el portfolio es el mismo.
			o.Status = domain.OrderFailed
			o.LastError = "reconciled: no fill on exchange"
			slog.Info("execution: reconciled UNKNOWN order as FAILED",
				"client_id", o.ClientID, "exchange_status", string(rep.Status))
		}
		resolved = append(resolved, *o)
	}

	return resolved, firstErr
}
