package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
	"github.com/kumotrade/kumobot/internal/risk"
)

// máximo de envíos de órdenes en paralelo dentro de un tick
const maxConcurrentSubmits = 2

// Tick ejecuta un ciclo completo: fetch → evaluate → size → execute →
// persist. Cada fase degrada de forma local: un fetch agotado salta el tick,
// un sizing rechazado descarta solo esa señal, y la persistencia final
// siempre se intenta.
func (e *Engine) Tick(ctx context.Context) error {
	if e.state == nil {
		return fmt.Errorf("engine.Tick: Recover must run first")
	}
	start := e.now()

	// Pase periódico de reconciliación: las UNKNOWN que quedaron de ticks
	// anteriores se intentan resolver antes de evaluar nada.
	e.reconcileUnresolved(ctx)

	e.phase = PhaseFetching
	bars, err := e.fetchCandles(ctx)
	if err != nil {
		// Tick saltado: sin velas nuevas no hay nada que evaluar, y el
		// estado persistido sigue siendo válido.
		slog.Warn("engine: skipping tick, candle fetch exhausted", "err", err)
		e.phase = PhaseIdle
		return nil
	}
	if len(bars) == 0 {
		slog.Warn("engine: skipping tick, empty candle response")
		e.phase = PhaseIdle
		return nil
	}
	lastPrice := bars[len(bars)-1].Close

	e.phase = PhaseEvaluating
	orders := e.planOrders(ctx, bars, lastPrice)

	if len(orders) > 0 {
		// Persistir SUBMITTED antes de tocar la red: un crash a mitad de
		// envío deja rastro que la recuperación reconcilia.
		checkpoint := e.state.Clone()
		for _, o := range orders {
			e.state.UpsertOrder(o)
		}
		if err := e.store.Commit(e.state); err != nil {
			e.state = checkpoint
			e.phase = PhaseIdle
			return fmt.Errorf("engine.Tick: persist before submit: %w", err)
		}

		e.phase = PhaseExecuting
		for _, o := range e.submitAll(ctx, orders) {
			e.applyOutcome(o)
			switch o.Status {
			case domain.OrderFailed:
				e.notify(ctx, domain.Event{
					Kind: domain.EventOrderFailed, Strategy: o.Strategy, Symbol: o.Symbol,
					Detail: o.LastError, At: e.now(),
				})
			case domain.OrderUnknown:
				e.notify(ctx, domain.Event{
					Kind: domain.EventOrderUnknown, Strategy: o.Strategy, Symbol: o.Symbol,
					Detail: o.LastError, At: e.now(),
				})
			}
		}
		e.checkBreaker(ctx)
	}

	e.phase = PhasePersisting
	e.state.PruneTerminalOrders(e.now().Add(-orderRetention))
	e.state.LastCheckpointAt = e.now()
	if err := e.store.Commit(e.state); err != nil {
		e.phase = PhaseIdle
		return fmt.Errorf("engine.Tick: persist: %w", err)
	}

	snap := e.state.Snapshot(lastPrice, e.now())
	if e.journal != nil {
		if err := e.journal.RecordEquity(ctx, snap); err != nil {
			slog.Warn("engine: journal equity failed", "err", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Summary(ctx, e.state, snap); err != nil {
			slog.Warn("engine: summary failed", "err", err)
		}
	}

	slog.Info("engine: tick complete",
		"orders", len(orders),
		"equity", fmt.Sprintf("%.2f", snap.TotalEquity),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	e.phase = PhaseIdle
	return nil
}

// fetchCandles pide velas con reintentos acotados.
func (e *Engine) fetchCandles(ctx context.Context) ([]domain.Candle, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.FetchRetries; attempt++ {
		bars, err := e.exch.FetchCandles(ctx, e.cfg.Symbol, e.cfg.Interval, e.cfg.CandleFetchSize)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		slog.Warn("engine: candle fetch failed",
			"attempt", attempt, "retries", e.cfg.FetchRetries, "err", err)

		if attempt < e.cfg.FetchRetries {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("engine.fetchCandles: %d attempts: %w", e.cfg.FetchRetries, lastErr)
}

// planOrders evalúa cada estrategia y dimensiona sus señales. Las señales
// rechazadas (par bloqueado, histórico insuficiente, sizing) se descartan
// individualmente sin afectar al resto del tick.
func (e *Engine) planOrders(ctx context.Context, bars []domain.Candle, lastPrice float64) []domain.PendingOrder {
	var orders []domain.PendingOrder

	for _, slot := range e.slots {
		name := slot.Strategy.Name()

		if e.state.HasUnresolved(name, e.cfg.Symbol) {
			slog.Warn("engine: pair blocked by unresolved order",
				"strategy", name, "symbol", e.cfg.Symbol)
			continue
		}

		open := e.state.OpenPosition(name, e.cfg.Symbol)
		sig, err := slot.Strategy.Evaluate(bars, open)
		if err != nil {
			slog.Warn("engine: strategy evaluation failed", "strategy", name, "err", err)
			continue
		}

		e.phase = PhaseSizing
		switch sig.Action {
		case domain.ActionEnterLong:
			if open != nil {
				continue
			}
			equity, _ := e.state.Equity(lastPrice)
			qty, err := e.sizer.Size(slot.Allocation, equity, e.state.Cash, lastPrice, sig.Stop)
			if err != nil {
				if errors.Is(err, risk.ErrInsufficientFunds) || errors.Is(err, risk.ErrZeroQuantity) {
					slog.Info("engine: signal dropped by sizing",
						"strategy", name, "reason", err)
					continue
				}
				slog.Error("engine: sizing error", "strategy", name, "err", err)
				continue
			}
			orders = append(orders, e.buildOrder(name, domain.SideBuy, qty, lastPrice, sig.Stop))
			slog.Info("engine: entry planned",
				"strategy", name, "qty", qty, "price", lastPrice,
				"stop", sig.Stop, "reason", sig.Reason)

		case domain.ActionExit:
			if open == nil {
				continue
			}
			orders = append(orders, e.buildOrder(name, domain.SideSell, open.Quantity, lastPrice, 0))
			slog.Info("engine: exit planned",
				"strategy", name, "qty", open.Quantity, "reason", sig.Reason)
		}
	}
	return orders
}

func (e *Engine) buildOrder(strategy string, side domain.OrderSide, qty, priceHint, stop float64) domain.PendingOrder {
	return domain.PendingOrder{
		ClientID:  e.newClientID(),
		Strategy:  strategy,
		Symbol:    e.cfg.Symbol,
		Side:      side,
		Quantity:  qty,
		PriceHint: priceHint,
		Stop:      stop,
		Status:    domain.OrderSubmitted,
		CreatedAt: e.now(),
	}
}

// submitAll envía las órdenes con concurrencia acotada. Cada goroutine
// trabaja sobre su propia copia; las mutaciones del portfolio las hace el
// caller en la goroutine del tick.
func (e *Engine) submitAll(ctx context.Context, orders []domain.PendingOrder) []domain.PendingOrder {
	results := make([]domain.PendingOrder, len(orders))
	sem := make(chan struct{}, maxConcurrentSubmits)

	var wg sync.WaitGroup
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o := orders[i]
			if err := e.exec.Submit(ctx, &o); err != nil {
				slog.Error("engine: submit error", "client_id", o.ClientID, "err", err)
				o.Status = domain.OrderFailed
				o.LastError = err.Error()
			}
			results[i] = o
		}(i)
	}
	wg.Wait()
	return results
}

// applyOutcome vuelca el resultado de una orden al portfolio. Solo la
// goroutine del tick (o Recover) llama aquí.
func (e *Engine) applyOutcome(o domain.PendingOrder) {
	e.state.UpsertOrder(o)
	if o.Status != domain.OrderFilled {
		return
	}

	switch o.Side {
	case domain.SideBuy:
		e.state.Cash -= o.FilledQuantity*o.FilledPrice + o.Fee
		e.state.Positions = append(e.state.Positions, domain.Position{
			Strategy:   o.Strategy,
			Symbol:     o.Symbol,
			Quantity:   o.FilledQuantity,
			EntryPrice: o.FilledPrice,
			StopPrice:  o.Stop,
			OpenedAt:   o.CreatedAt,
			Status:     domain.PositionOpen,
		})
		e.journalTrade(o, 0)

	case domain.SideSell:
		pos := e.state.OpenPosition(o.Strategy, o.Symbol)
		if pos == nil {
			slog.Error("engine: sell fill without open position",
				"strategy", o.Strategy, "client_id", o.ClientID)
			return
		}
		pnl := (o.FilledPrice-pos.EntryPrice)*o.FilledQuantity - o.Fee
		now := e.now()
		pos.Status = domain.PositionClosed
		pos.ClosedAt = &now
		pos.ExitPrice = o.FilledPrice
		pos.RealizedPnL = pnl
		e.state.Cash += o.FilledQuantity*o.FilledPrice - o.Fee
		e.journalTrade(o, pnl)

		slog.Info("engine: position closed",
			"strategy", o.Strategy, "exit", o.FilledPrice,
			"pnl", fmt.Sprintf("%.2f", pnl))
	}
}

// journalTrade registra el fill en el diario. Best effort: el registro
// autoritativo es el state store.
func (e *Engine) journalTrade(o domain.PendingOrder, pnl float64) {
	if e.journal == nil {
		return
	}
	err := e.journal.RecordTrade(context.Background(), ports.TradeRecord{
		Timestamp: e.now(),
		Symbol:    o.Symbol,
		Strategy:  o.Strategy,
		Action:    string(o.Side),
		Quantity:  o.FilledQuantity,
		Price:     o.FilledPrice,
		Fee:       o.Fee,
		PnL:       pnl,
	})
	if err != nil {
		slog.Warn("engine: journal trade failed", "client_id", o.ClientID, "err", err)
	}
}

// checkBreaker emite un único evento cuando el circuit breaker salta, y se
// rearma cuando vuelve a permitir envíos.
func (e *Engine) checkBreaker(ctx context.Context) {
	breaker := e.exec.Breaker()
	if !breaker.Allow() {
		if !e.breakerOpen {
			e.breakerOpen = true
			e.notify(ctx, domain.Event{
				Kind:   domain.EventCircuitTripped,
				Symbol: e.cfg.Symbol,
				Detail: fmt.Sprintf("cooling down until %s: %s",
					breaker.CooldownUntil().Format(time.RFC3339), breaker.TrippedReason()),
				At: e.now(),
			})
		}
		return
	}
	e.breakerOpen = false
}

func newUUID() string { return uuid.NewString() }
