package ports

import (
	"github.com/kumotrade/kumobot/internal/domain"
)

// StateStore is the authoritative durable record of the portfolio. All
// mutation flows through Commit; no other component keeps a long-lived
// mutable reference to the state.
type StateStore interface {
	// Load returns the persisted state, falling back to the backup
	// generation when the primary is corrupt. A missing file on first run
	// yields (nil, nil). Both generations unreadable is a fatal error —
	// starting from empty would hide real positions held at the exchange.
	Load() (*domain.PortfolioState, error)

	// Commit atomically checkpoints the state (write temp, fsync, rotate
	// backup, rename). A crash mid-commit leaves either the previous or the
	// new generation, never a torn file.
	Commit(state *domain.PortfolioState) error

	// Close releases the store.
	Close() error
}
