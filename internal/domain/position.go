package domain

import "time"

// PositionStatus is the lifecycle of a strategy's position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is a long position owned by one strategy on one symbol.
// Invariant: Quantity > 0 while OPEN, and at most one OPEN position exists
// per (Strategy, Symbol) pair. Mutated only by the engine after a confirmed
// fill, through the state store's commit path.
type Position struct {
	Strategy   string         `json:"strategy"`
	Symbol     string         `json:"symbol"`
	Quantity   float64        `json:"quantity"`
	EntryPrice float64        `json:"entry_price"`
	StopPrice  float64        `json:"stop_price"`
	OpenedAt   time.Time      `json:"opened_at"`
	Status     PositionStatus `json:"status"`

	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
}

// OrderStatus is the lifecycle of a pending order. FILLED and FAILED are
// terminal; UNKNOWN is a recoverable limbo that must be reconciled against
// the exchange before the strategy/symbol pair trades again.
type OrderStatus string

const (
	OrderSubmitted    OrderStatus = "SUBMITTED"
	OrderAcknowledged OrderStatus = "ACKNOWLEDGED"
	OrderFilled       OrderStatus = "FILLED"
	OrderFailed       OrderStatus = "FAILED"
	OrderUnknown      OrderStatus = "UNKNOWN"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// PendingOrder es un intento de orden contra el exchange. Se crea y persiste
// en estado SUBMITTED *antes* del primer intento de red, de forma que un
// crash a mitad de envío deja rastro recuperable. El ClientID (uuid) es la
// clave de idempotencia: reenviar el mismo ClientID nunca duplica el fill.
type PendingOrder struct {
	ClientID     string      `json:"client_id"`
	Strategy     string      `json:"strategy"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	Quantity     float64     `json:"quantity"`
	PriceHint    float64     `json:"price_hint"`
	Stop         float64     `json:"stop,omitempty"`
	Status       OrderStatus `json:"status"`
	AttemptCount int         `json:"attempt_count"`
	CreatedAt    time.Time   `json:"created_at"`

	ExchangeOrderID string  `json:"exchange_order_id,omitempty"`
	FilledQuantity  float64 `json:"filled_quantity,omitempty"`
	FilledPrice     float64 `json:"filled_price,omitempty"`
	Fee             float64 `json:"fee,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
}

// Terminal reports whether the order reached a final state.
func (o PendingOrder) Terminal() bool {
	return o.Status == OrderFilled || o.Status == OrderFailed
}

// EquitySnapshot es una foto puntual del equity. Solo se añade, nunca se
// muta; el dashboard la consume desde el journal.
type EquitySnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalEquity   float64   `json:"total_equity"`
	Cash          float64   `json:"cash"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenPositions int       `json:"open_positions"`
}

// StateVersion is the current on-disk snapshot schema version.
const StateVersion = 1

// PortfolioState is the aggregate root and the unit of atomic persistence.
// Only the engine mutates it, and only through the state store's commit path.
type PortfolioState struct {
	Version          int            `json:"version"`
	Positions        []Position     `json:"positions"`
	PendingOrders    []PendingOrder `json:"pending_orders"`
	Cash             float64        `json:"cash"`
	LastCheckpointAt time.Time      `json:"last_checkpoint_at"`
}

// NewPortfolioState creates the empty first-run state.
func NewPortfolioState(initialCash float64) *PortfolioState {
	return &PortfolioState{
		Version: StateVersion,
		Cash:    initialCash,
	}
}

// OpenPosition returns the OPEN position for the pair, or nil.
func (ps *PortfolioState) OpenPosition(strategy, symbol string) *Position {
	for i := range ps.Positions {
		p := &ps.Positions[i]
		if p.Status == PositionOpen && p.Strategy == strategy && p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// OpenPositions returns all currently OPEN positions.
func (ps *PortfolioState) OpenPositions() []Position {
	var out []Position
	for _, p := range ps.Positions {
		if p.Status == PositionOpen {
			out = append(out, p)
		}
	}
	return out
}

// Order returns the pending order with the given client id, or nil.
func (ps *PortfolioState) Order(clientID string) *PendingOrder {
	for i := range ps.PendingOrders {
		if ps.PendingOrders[i].ClientID == clientID {
			return &ps.PendingOrders[i]
		}
	}
	return nil
}

// UpsertOrder inserts the order or replaces the entry with the same ClientID.
func (ps *PortfolioState) UpsertOrder(o PendingOrder) {
	for i := range ps.PendingOrders {
		if ps.PendingOrders[i].ClientID == o.ClientID {
			ps.PendingOrders[i] = o
			return
		}
	}
	ps.PendingOrders = append(ps.PendingOrders, o)
}

// UnresolvedOrders returns orders stuck in UNKNOWN, pending reconciliation.
func (ps *PortfolioState) UnresolvedOrders() []PendingOrder {
	var out []PendingOrder
	for _, o := range ps.PendingOrders {
		if o.Status == OrderUnknown {
			out = append(out, o)
		}
	}
	return out
}

// HasUnresolved reports whether the strategy/symbol pair has an UNKNOWN order.
// While true, the pair must not trade.
func (ps *PortfolioState) HasUnresolved(strategy, symbol string) bool {
	for _, o := range ps.PendingOrders {
		if o.Status == OrderUnknown && o.Strategy == strategy && o.Symbol == symbol {
			return true
		}
	}
	return false
}

// PruneTerminalOrders drops FILLED/FAILED orders older than the cutoff,
// keeping the pending set bounded across long runs.
func (ps *PortfolioState) PruneTerminalOrders(cutoff time.Time) {
	kept := ps.PendingOrders[:0]
	for _, o := range ps.PendingOrders {
		if o.Terminal() && o.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, o)
	}
	ps.PendingOrders = kept
}

// Equity devuelve cash + valor de mercado de las posiciones abiertas al
// precio dado, junto con el PnL no realizado.
func (ps *PortfolioState) Equity(lastPrice float64) (total, unrealized float64) {
	total = ps.Cash
	for _, p := range ps.Positions {
		if p.Status != PositionOpen {
			continue
		}
		total += p.Quantity * lastPrice
		unrealized += (lastPrice - p.EntryPrice) * p.Quantity
	}
	return total, unrealized
}

// Snapshot builds the equity snapshot for the current tick.
func (ps *PortfolioState) Snapshot(lastPrice float64, at time.Time) EquitySnapshot {
	total, unreal := ps.Equity(lastPrice)
	return EquitySnapshot{
		Timestamp:     at,
		TotalEquity:   total,
		Cash:          ps.Cash,
		UnrealizedPnL: unreal,
		OpenPositions: len(ps.OpenPositions()),
	}
}

// Clone deep-copies the state so strategies and the sizer can receive a
// read-only snapshot while the engine keeps the only mutable copy.
func (ps *PortfolioState) Clone() *PortfolioState {
	cp := *ps
	cp.Positions = append([]Position(nil), ps.Positions...)
	cp.PendingOrders = append([]PendingOrder(nil), ps.PendingOrders...)
	return &cp
}
