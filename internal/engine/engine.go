// Package engine orquesta el ciclo de trading: un loop single-threaded que
// recupera estado, pide velas, evalúa estrategias, dimensiona, ejecuta y
// persiste. Todo el estado mutable vive en la goroutine del tick; la única
// concurrencia es el envío de órdenes de varias estrategias en paralelo, y
// sus resultados vuelven al tick antes de tocar el portfolio.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/execution"
	"github.com/kumotrade/kumobot/internal/ports"
	"github.com/kumotrade/kumobot/internal/risk"
	"github.com/kumotrade/kumobot/internal/strategy"
)

// Phase es el estado del tick actual. Solo informativo (logs): las
// transiciones las impone el flujo de Tick, no un dispatcher.
type Phase string

const (
	PhaseRecovering Phase = "RECOVERING"
	PhaseIdle       Phase = "IDLE"
	PhaseFetching   Phase = "FETCHING_DATA"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseSizing     Phase = "SIZING"
	PhaseExecuting  Phase = "EXECUTING"
	PhasePersisting Phase = "PERSISTING"
)

// terminal orders older than this get pruned from the persisted state
const orderRetention = 24 * time.Hour

// divergencia relativa cash persistido vs balance del exchange que se avisa
const balanceDriftWarnFrac = 0.05

// Config controla el loop del engine.
type Config struct {
	Symbol          string
	Interval        string
	TickInterval    time.Duration
	InitialCapital  float64
	FetchRetries    int
	CandleFetchSize int
}

// Slot empareja una estrategia con su fracción de equity asignada.
type Slot struct {
	Strategy   strategy.Strategy
	Allocation float64
}

// Engine es el orquestador principal.
type Engine struct {
	cfg      Config
	slots    []Slot
	exch     ports.Exchange
	store    ports.StateStore
	journal  ports.Journal
	notifier ports.Notifier
	exec     *execution.Controller
	sizer    *risk.Sizer

	state       *domain.PortfolioState
	phase       Phase
	breakerOpen bool
	newClientID func() string
	now         func() time.Time
}

// New crea un Engine con todas las dependencias inyectadas.
func New(
	cfg Config,
	slots []Slot,
	exch ports.Exchange,
	store ports.StateStore,
	jrnl ports.Journal,
	notifier ports.Notifier,
	exec *execution.Controller,
	sizer *risk.Sizer,
) *Engine {
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = 3
	}
	if cfg.CandleFetchSize <= 0 {
		cfg.CandleFetchSize = 200
	}
	return &Engine{
		cfg:         cfg,
		slots:       slots,
		exch:        exch,
		store:       store,
		journal:     jrnl,
		notifier:    notifier,
		exec:        exec,
		sizer:       sizer,
		phase:       PhaseIdle,
		newClientID: newUUID,
		now:         time.Now,
	}
}

// State expone el estado actual. Solo lectura desde fuera del tick.
func (e *Engine) State() *domain.PortfolioState { return e.state }

// Run recupera el estado y ejecuta ticks hasta que el contexto se cancele.
// El shutdown se respeta entre ticks: un tick en curso termina su fase de
// persistencia antes de salir.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Recover(ctx); err != nil {
		return fmt.Errorf("engine.Run: %w", err)
	}

	slog.Info("engine: starting",
		"symbol", e.cfg.Symbol,
		"interval", e.cfg.Interval,
		"tick", e.cfg.TickInterval,
		"strategies", len(e.slots),
	)

	if err := e.Tick(ctx); err != nil {
		slog.Error("engine: tick failed", "err", err)
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped")
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				slog.Error("engine: tick failed", "err", err)
			}
		}
	}
}

// Recover carga el estado persistido (o crea uno limpio en el primer
// arranque) y reconcilia las órdenes UNKNOWN contra el exchange antes de que
// ninguna estrategia vuelva a operar.
func (e *Engine) Recover(ctx context.Context) error {
	e.phase = PhaseRecovering
	defer func() { e.phase = PhaseIdle }()

	state, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("engine.Recover: load state: %w", err)
	}
	if state == nil {
		slog.Info("engine: first run, starting with clean state",
			"initial_capital", e.cfg.InitialCapital)
		state = domain.NewPortfolioState(e.cfg.InitialCapital)
	}
	e.state = state

	// Órdenes que quedaron en vuelo (SUBMITTED/ACKNOWLEDGED) cuando el
	// proceso murió: nadie sabe si llegaron. Se tratan como UNKNOWN.
	for i := range state.PendingOrders {
		o := &state.PendingOrders[i]
		if !o.Terminal() && o.Status != domain.OrderUnknown {
			o.Status = domain.OrderUnknown
			o.LastError = "in flight during shutdown"
		}
	}

	if unresolved := state.UnresolvedOrders(); len(unresolved) > 0 {
		slog.Warn("engine: unresolved orders from previous run, reconciling",
			"count", len(unresolved))
	}
	e.reconcileUnresolved(ctx)

	// Contraste con el exchange: el cash autoritativo es el persistido, pero
	// una divergencia grande tras una caída merece ojos de operador.
	if bal, err := e.exch.GetBalance(ctx); err != nil {
		slog.Debug("engine: balance check unavailable", "err", err)
	} else if e.state.Cash > 0 && math.Abs(bal-e.state.Cash) > balanceDriftWarnFrac*e.state.Cash {
		slog.Warn("engine: exchange balance diverges from persisted cash",
			"exchange", fmt.Sprintf("%.2f", bal),
			"persisted", fmt.Sprintf("%.2f", e.state.Cash))
	}

	e.state.LastCheckpointAt = e.now()
	if err := e.store.Commit(e.state); err != nil {
		return fmt.Errorf("engine.Recover: persist recovered state: %w", err)
	}
	return nil
}

// reconcileUnresolved resuelve las órdenes UNKNOWN contra el exchange y
// aplica las resueltas al portfolio. Las que no se pudieron consultar siguen
// en UNKNOWN y bloquean su par estrategia/símbolo; no es fatal, se vuelve a
// intentar en el siguiente tick.
func (e *Engine) reconcileUnresolved(ctx context.Context) {
	if len(e.state.UnresolvedOrders()) == 0 {
		return
	}
	resolved, recErr := e.exec.Reconcile(ctx, e.state)
	for _, o := range resolved {
		e.applyOutcome(o)
		e.notify(ctx, domain.Event{
			Kind:     domain.EventReconciled,
			Strategy: o.Strategy,
			Symbol:   o.Symbol,
			Detail:   fmt.Sprintf("order %s resolved to %s", o.ClientID, o.Status),
			At:       e.now(),
		})
	}
	if recErr != nil {
		slog.Warn("engine: reconciliation incomplete", "err", recErr)
	}
}

// notify entrega un evento al notifier; los errores solo se loguean.
func (e *Engine) notify(ctx context.Context, ev domain.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("engine: notifier error", "err", err)
	}
}
