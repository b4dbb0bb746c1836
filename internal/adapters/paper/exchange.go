// Package paper simula el exchange: velas reales (delegadas al data source),
// fills sintéticos con fee y slippage configurables, y deduplicación por
// client id — el mismo contrato de idempotencia que exige el core al
// exchange real. También permite inyectar fallos para tests y ensayos.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
)

// Config controla la simulación de fills.
type Config struct {
	InitialCash  float64
	FeeRate      float64 // fraction of notional charged per fill
	SlippageRate float64 // adverse price movement applied to the hint
}

// injected is a scripted failure for the next PlaceOrder calls.
type injected struct {
	err      error
	executed bool // the exchange-side fill happened despite the error
}

// Exchange implementa ports.Exchange en modo paper.
type Exchange struct {
	data ports.Exchange // real candle/interval source
	cfg  Config

	mu       sync.Mutex
	cash     float64
	orders   map[string]domain.OrderAck // client id → simulated fill
	failures []injected
	seq      int
}

// New crea el exchange paper sobre el data source dado.
func New(data ports.Exchange, cfg Config) *Exchange {
	return &Exchange{
		data:   data,
		cfg:    cfg,
		cash:   cfg.InitialCash,
		orders: make(map[string]domain.OrderAck),
	}
}

// FetchCandles delega en el data source real.
func (e *Exchange) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return e.data.FetchCandles(ctx, symbol, interval, limit)
}

// GetBalance devuelve el cash simulado.
func (e *Exchange) GetBalance(_ context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash, nil
}

// PlaceOrder simula un fill market con fee y slippage. Reenviar un client id
// ya visto devuelve el ack original sin volver a debitar.
func (e *Exchange) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ack, ok := e.orders[req.ClientID]; ok {
		slog.Debug("paper: duplicate client id, returning original ack",
			"client_id", req.ClientID)
		return ack, nil
	}

	if len(e.failures) > 0 {
		inj := e.failures[0]
		e.failures = e.failures[1:]
		if inj.executed {
			// La petición llegó: el fill existe aunque el caller vea error.
			e.fill(req)
		}
		return domain.OrderAck{}, inj.err
	}

	return e.fill(req), nil
}

// fill ejecuta la orden contra el cash simulado. Caller holds e.mu.
func (e *Exchange) fill(req domain.PlaceOrderRequest) domain.OrderAck {
	price := req.PriceHint
	if req.Side == domain.SideBuy {
		price *= 1 + e.cfg.SlippageRate
	} else {
		price *= 1 - e.cfg.SlippageRate
	}
	notional := req.Quantity * price
	fee := notional * e.cfg.FeeRate

	if req.Side == domain.SideBuy {
		e.cash -= notional + fee
	} else {
		e.cash += notional - fee
	}

	e.seq++
	ack := domain.OrderAck{
		ExchangeOrderID: fmt.Sprintf("paper-%d", e.seq),
		Status:          domain.OrderFilled,
		FilledQuantity:  req.Quantity,
		FilledPrice:     price,
		Fee:             fee,
	}
	e.orders[req.ClientID] = ack
	return ack
}

// GetOrderStatus responde por client id. Una orden desconocida se reporta
// FAILED: nunca llegó, reintentar o descartar es seguro.
func (e *Exchange) GetOrderStatus(_ context.Context, _ string, clientID string) (domain.OrderStatusReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ack, ok := e.orders[clientID]
	if !ok {
		return domain.OrderStatusReport{Status: domain.OrderFailed}, nil
	}
	return domain.OrderStatusReport{
		Status:         ack.Status,
		FilledQuantity: ack.FilledQuantity,
		FilledPrice:    ack.FilledPrice,
		Fee:            ack.Fee,
	}, nil
}

// CancelOrder es un no-op: los fills paper son inmediatos.
func (e *Exchange) CancelOrder(context.Context, string, string) error { return nil }

// FailNextPlace inyecta un error para la próxima PlaceOrder. Con executed
// true el fill se registra igualmente — simula el fallo ambiguo en el que la
// petición llegó pero la respuesta se perdió.
func (e *Exchange) FailNextPlace(err error, executed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, injected{err: err, executed: executed})
}
