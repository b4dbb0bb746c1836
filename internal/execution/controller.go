// Package execution drives pending orders against the exchange: bounded
// retries with exponential backoff for transient failures, UNKNOWN instead
// of blind retry for ambiguous ones, and a circuit breaker so a persistently
// failing exchange doesn't get hammered.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultTimeout     = 10 * time.Second
	defaultMaxFailures = 3
	defaultCooldown    = 30 * time.Minute
	fillPollAttempts   = 3
	fillPollWait       = 250 * time.Millisecond
)

// Config holds the retry policy and circuit breaker thresholds.
type Config struct {
	MaxAttempts     int           // retry ceiling per order
	BackoffBase     time.Duration // first wait; doubles each attempt
	Timeout         time.Duration // per network attempt
	BreakerFailures int           // consecutive failures before tripping
	BreakerCooldown time.Duration
}

// Controller submits sized orders through the exchange capability.
type Controller struct {
	exch    ports.Exchange
	cfg     Config
	breaker *domain.CircuitBreaker

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

// New creates a controller with the given retry policy.
func New(exch ports.Exchange, cfg Config) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = defaultMaxFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultCooldown
	}
	return &Controller{
		exch:    exch,
		cfg:     cfg,
		breaker: domain.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		sleep:   ctxSleep,
	}
}

// Breaker expone el circuit breaker (el engine notifica cuando salta).
func (c *Controller) Breaker() *domain.CircuitBreaker { return c.breaker }

// Submit drives the order to FILLED, FAILED or UNKNOWN, mutating it in
// place. The order must already be persisted in SUBMITTED state — Submit
// never invents orders and never touches the state store. The returned error
// is reserved for programming errors; the trading outcome lives in
// order.Status.
func (c *Controller) Submit(ctx context.Context, o *domain.PendingOrder) error {
	if o.Status != domain.OrderSubmitted {
		return fmt.Errorf("execution.Submit: order %s in state %s, want SUBMITTED", o.ClientID, o.Status)
	}

	if !c.breaker.Allow() {
		o.Status = domain.OrderFailed
		o.LastError = "circuit breaker open: " + c.breaker.TrippedReason()
		slog.Warn("execution: circuit breaker open, failing fast",
			"client_id", o.ClientID, "strategy", o.Strategy)
		return nil
	}

	req := domain.PlaceOrderRequest{
		ClientID:  o.ClientID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.Quantity,
		PriceHint: o.PriceHint,
	}

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * c.cfg.BackoffBase
			if err := c.sleep(ctx, wait); err != nil {
				o.Status = domain.OrderFailed
				o.LastError = "cancelled during backoff: " + err.Error()
				return nil
			}
		}

		o.AttemptCount++
		ack, err := c.placeOnce(ctx, req)
		if err == nil {
			c.breaker.RecordSuccess()
			c.applyAck(ctx, o, ack)
			return nil
		}

		switch {
		case IsAmbiguous(err):
			o.Status = domain.OrderUnknown
			o.LastError = err.Error()
			c.breaker.RecordFailure(err.Error())
			slog.Warn("execution: ambiguous failure, order needs reconciliation",
				"client_id", o.ClientID, "attempt", o.AttemptCount, "err", err)
			return nil

		case IsTransient(err):
			o.LastError = err.Error()
			slog.Warn("execution: transient failure",
				"client_id", o.ClientID, "attempt", o.AttemptCount, "err", err)
			continue

		default:
			// Rechazo definitivo del exchange (orden inválida, fondos…).
			o.Status = domain.OrderFailed
			o.LastError = err.Error()
			c.breaker.RecordFailure(err.Error())
			slog.Error("execution: order rejected",
				"client_id", o.ClientID, "err", err)
			return nil
		}
	}

	o.Status = domain.OrderFailed
	o.LastError = fmt.Sprintf("exhausted %d attempts: %s", c.cfg.MaxAttempts, o.LastError)
	c.breaker.RecordFailure(o.LastError)
	slog.Error("execution: retry ceiling exceeded",
		"client_id", o.ClientID, "attempts", o.AttemptCount)
	return nil
}

// placeOnce runs one network attempt under the configured timeout.
func (c *Controller) placeOnce(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderAck, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.exch.PlaceOrder(attemptCtx, req)
}

// applyAck maps the exchange ack onto the order. A market order normally
// fills in the ack; if not, the fill is polled briefly and otherwise the
// order parks in UNKNOWN for reconciliation rather than pretending.
func (c *Controller) applyAck(ctx context.Context, o *domain.PendingOrder, ack domain.OrderAck) {
	o.ExchangeOrderID = ack.ExchangeOrderID
	o.Status = domain.OrderAcknowledged

	if ack.Status == domain.OrderFilled || ack.FilledQuantity > 0 {
		o.Status = domain.OrderFilled
		o.FilledQuantity = ack.FilledQuantity
		o.FilledPrice = ack.FilledPrice
		o.Fee = ack.Fee
		return
	}

	for i := 0; i < fillPollAttempts; i++ {
		if err := c.sleep(ctx, fillPollWait); err != nil {
			break
		}
		rep, err := c.exch.GetOrderStatus(ctx, o.Symbol, o.ClientID)
		if err != nil {
			continue
		}
		if rep.Status == domain.OrderFilled {
			o.Status = domain.OrderFilled
			o.FilledQuantity = rep.FilledQuantity
			o.FilledPrice = rep.FilledPrice
			o.Fee = rep.Fee
			return
		}
		if rep.Status == domain.OrderFailed {
			o.Status = domain.OrderFailed
			o.LastError = "exchange reports order not filled"
			return
		}
	}

	o.Status = domain.OrderUnknown
	o.LastError = "acknowledged but fill unconfirmed"
	slog.Warn("execution: fill unconfirmed, order needs reconciliation",
		"client_id", o.ClientID, "exchange_order_id", o.ExchangeOrderID)
}

// ctxSleep waits d or until the context dies.
func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSleep overrides the backoff clock. Tests only.
func (c *Controller) SetSleep(fn func(ctx context.Context, d time.Duration) error) { c.sleep = fn }
