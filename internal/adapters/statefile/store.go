// Package statefile persists the portfolio snapshot with a
// write-temp-then-atomic-rename pattern plus a rotating backup generation.
// A crash at any point leaves either the previous or the new snapshot on
// disk, never a torn file, and a corrupt primary degrades to the backup
// instead of silently resetting — real positions at the exchange must never
// be forgotten.
package statefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
)

// ErrCorruptState: ni el snapshot primario ni el backup son legibles.
var ErrCorruptState = errors.New("statefile: corrupt state")

// envelope is the on-disk wrapper: the checksum covers the raw state bytes
// so truncation or partial writes are detected on load.
type envelope struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Checksum uint32          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// Store implements ports.StateStore on a JSON file pair.
type Store struct {
	path       string
	backupPath string
	tmpPath    string
	mu         sync.Mutex

	// FallbackHook fires when Load degrades to the backup generation.
	// Wired to the notifier by the caller; may be nil.
	FallbackHook func(cause error)
}

// New creates a store writing to path, with the backup generation alongside.
func New(path string) *Store {
	return &Store{
		path:       path,
		backupPath: path + ".backup",
		tmpPath:    path + ".tmp",
	}
}

// Load devuelve el snapshot persistido. Primera ejecución (ningún archivo)
// → (nil, nil). Primario corrupto → backup, con degradación logueada y
// FallbackHook disparado. Ambos ilegibles → ErrCorruptState, fatal.
func (s *Store) Load() (*domain.PortfolioState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, primaryErr := s.readSnapshot(s.path)
	if primaryErr == nil {
		return state, nil
	}

	if os.IsNotExist(primaryErr) && !exists(s.backupPath) {
		slog.Info("statefile: no snapshot found, starting fresh", "path", s.path)
		return nil, nil
	}

	slog.Warn("statefile: primary snapshot unreadable, falling back to backup",
		"path", s.path, "err", primaryErr)

	state, backupErr := s.readSnapshot(s.backupPath)
	if backupErr != nil {
		return nil, fmt.Errorf("statefile.Load: primary: %v; backup: %v: %w",
			primaryErr, backupErr, ErrCorruptState)
	}

	if s.FallbackHook != nil {
		s.FallbackHook(primaryErr)
	}
	slog.Warn("statefile: restored from backup generation",
		"backup", s.backupPath, "checkpoint", state.LastCheckpointAt)
	return state, nil
}

// Commit checkpoints the state atomically, rotating the previous valid
// primary into the backup slot first.
func (s *Store) Commit(state *domain.PortfolioState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statefile.Commit: marshal state: %w", err)
	}
	env := envelope{
		Version:  domain.StateVersion,
		SavedAt:  time.Now().UTC(),
		Checksum: crc32.ChecksumIEEE(payload),
		State:    payload,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile.Commit: marshal envelope: %w", err)
	}

	if err := s.writeTemp(data); err != nil {
		return err
	}

	// Rotar el primario válido al slot de backup antes del rename. Si el
	// proceso muere entre medias, Load encuentra el backup.
	if exists(s.path) {
		if err := os.Rename(s.path, s.backupPath); err != nil {
			return fmt.Errorf("statefile.Commit: rotate backup: %w", err)
		}
	}

	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("statefile.Commit: rename into place: %w", err)
	}
	return nil
}

// Close implementa ports.StateStore. No hay recursos abiertos entre llamadas.
func (s *Store) Close() error { return nil }

// writeTemp writes and fsyncs the temp file in the snapshot's directory so
// the final rename stays on one filesystem.
func (s *Store) writeTemp(data []byte) error {
	if dir := filepath.Dir(s.tmpPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("statefile: create dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(s.tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("statefile: open temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("statefile: write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("statefile: fsync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("statefile: close temp: %w", err)
	}
	return nil
}

// readSnapshot valida estructura, versión y checksum.
func (s *Store) readSnapshot(path string) (*domain.PortfolioState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Version <= 0 || env.Version > domain.StateVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", env.Version)
	}

	// El checksum se calculó sobre el payload compacto; el archivo guarda
	// el state indentado, así que hay que compactar antes de comparar.
	var compact bytes.Buffer
	if err := json.Compact(&compact, env.State); err != nil {
		return nil, fmt.Errorf("compact state payload: %w", err)
	}
	if crc32.ChecksumIEEE(compact.Bytes()) != env.Checksum {
		return nil, fmt.Errorf("checksum mismatch, snapshot truncated or tampered")
	}

	var state domain.PortfolioState
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &state, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
