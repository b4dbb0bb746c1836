package ports

import (
	"context"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
)

// TradeRecord is one executed trade, journaled for the dashboard.
type TradeRecord struct {
	Timestamp time.Time
	Symbol    string
	Strategy  string
	Action    string // BUY | SELL
	Quantity  float64
	Price     float64
	Fee       float64
	PnL       float64
}

// Journal es el registro append-only que consume el dashboard: trades y
// snapshots de equity. No es el registro autoritativo (ese es el StateStore);
// un fallo del journal se loguea y no aborta el tick.
type Journal interface {
	// RecordTrade añade un trade ejecutado.
	RecordTrade(ctx context.Context, tr TradeRecord) error

	// RecordEquity añade el snapshot de equity del tick.
	RecordEquity(ctx context.Context, snap domain.EquitySnapshot) error

	// EquityHistory devuelve los snapshots del rango dado, ordenados por
	// timestamp ascendente.
	EquityHistory(ctx context.Context, from, to time.Time) ([]domain.EquitySnapshot, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
