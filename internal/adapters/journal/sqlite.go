package journal

// sqlite.go — diario append-only para el dashboard.
//
// Estrategia:
//   - `trades`: una fila por fill ejecutado. Nunca se actualiza ni borra.
//   - `equity_snapshots`: una fila por tick con el equity mark-to-market.
//   - Prune automático al arrancar: snapshots > 90d (los trades se conservan,
//     son pocos y forman el histórico completo del bot).
//
// El diario NO es el registro autoritativo del portfolio — ese es el state
// store. Un fallo aquí se loguea y el tick continúa.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
)

const schema = `
-- Un fill ejecutado por fila, append-only
CREATE TABLE IF NOT EXISTS trades (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    symbol    TEXT     NOT NULL,
    strategy  TEXT     NOT NULL,
    action    TEXT     NOT NULL,
    quantity  REAL     NOT NULL,
    price     REAL     NOT NULL,
    fee       REAL     NOT NULL DEFAULT 0,
    pnl       REAL     NOT NULL DEFAULT 0
);

-- Equity mark-to-market por tick
CREATE TABLE IF NOT EXISTS equity_snapshots (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      DATETIME NOT NULL,
    total_equity   REAL     NOT NULL,
    cash           REAL     NOT NULL,
    unrealized_pnl REAL     NOT NULL DEFAULT 0,
    open_positions INTEGER  NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_at   ON trades(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_trades_strat ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_equity_at   ON equity_snapshots(timestamp DESC);
`

// snapshots: 90 días bastan para las curvas del dashboard
const retentionSnapshots = 90 * 24 * time.Hour

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

var _ ports.Journal = (*SQLiteJournal)(nil)

// NewSQLite abre (o crea) el diario en la ruta dada, aplica el schema y
// limpia snapshots antiguos.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal.NewSQLite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal.NewSQLite: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// RecordTrade añade un trade ejecutado.
func (j *SQLiteJournal) RecordTrade(ctx context.Context, tr ports.TradeRecord) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (timestamp, symbol, strategy, action, quantity, price, fee, pnl)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.Timestamp.UTC(), tr.Symbol, tr.Strategy, tr.Action,
		tr.Quantity, tr.Price, tr.Fee, tr.PnL,
	); err != nil {
		return fmt.Errorf("journal.RecordTrade: insert: %w", err)
	}
	return nil
}

// RecordEquity añade el snapshot de equity del tick.
func (j *SQLiteJournal) RecordEquity(ctx context.Context, snap domain.EquitySnapshot) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO equity_snapshots (timestamp, total_equity, cash, unrealized_pnl, open_positions)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.Timestamp.UTC(), snap.TotalEquity, snap.Cash,
		snap.UnrealizedPnL, snap.OpenPositions,
	); err != nil {
		return fmt.Errorf("journal.RecordEquity: insert: %w", err)
	}
	return nil
}

// EquityHistory devuelve los snapshots del rango dado, timestamp ascendente.
func (j *SQLiteJournal) EquityHistory(ctx context.Context, from, to time.Time) ([]domain.EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT timestamp, total_equity, cash, unrealized_pnl, open_positions
		FROM equity_snapshots
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("journal.EquityHistory: query: %w", err)
	}
	defer rows.Close()

	var snaps []domain.EquitySnapshot
	for rows.Next() {
		var snap domain.EquitySnapshot
		var ts string
		if err := rows.Scan(&ts, &snap.TotalEquity, &snap.Cash,
			&snap.UnrealizedPnL, &snap.OpenPositions); err != nil {
			return nil, fmt.Errorf("journal.EquityHistory: scan row: %w", err)
		}
		snap.Timestamp, _ = time.Parse(time.RFC3339, ts)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// pruneOld elimina snapshots antiguos para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionSnapshots)
	j.db.ExecContext(ctx, `DELETE FROM equity_snapshots WHERE timestamp < ?`, cutoff)
}
