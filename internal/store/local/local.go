// Package local is the durable on-disk cache: a SQLite database holding two
// fixed slots, a primary copy of the aggregate and a best-effort safety
// snapshot. It is the crash-resilient fallback used whenever the remote
// channel is unavailable, and the always-on backup when it is not.
package local

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/internal/migrate"
)

// Slot keys carry the schema version so an incompatible future layout is
// never blindly parsed as the current one.
const (
	primaryKey  = "careflow_db_v1"
	snapshotKey = "careflow_db_snapshot"
)

// ErrCapacityExceeded reports that the primary slot could not be written even
// after evicting the snapshot. The in-memory aggregate stays authoritative
// for the rest of the session.
var ErrCapacityExceeded = errors.New("local storage capacity exceeded")

// Store is the two-slot local persistence store.
type Store struct {
	db       *sql.DB
	capacity int // byte budget across both slots; 0 means unlimited
	logger   *zap.Logger
	now      func() time.Time
}

// Open creates or opens the slot database at path. capacityBytes bounds the
// total serialized size held across both slots; zero disables the bound.
func Open(path string, capacityBytes int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to slot database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS slots (
		key        TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, capacity: capacityBytes, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the best available aggregate: the migrated primary slot, then
// the migrated snapshot slot, then the documented initial aggregate. It
// never fails; unreadable slots are logged and skipped. A primary that loads
// cleanly refreshes the snapshot on the way out.
func (s *Store) Load() models.AppData {
	if payload, ok := s.slot(primaryKey); ok {
		data, err := migrate.Parse([]byte(payload))
		if err == nil {
			if err := s.setSlot(snapshotKey, payload); err != nil {
				s.logger.Warn("snapshot refresh on load failed", zap.Error(err))
			}
			return data
		}
		s.logger.Warn("primary slot unreadable, falling back to snapshot", zap.Error(err))
	}

	if payload, ok := s.slot(snapshotKey); ok {
		data, err := migrate.Parse([]byte(payload))
		if err == nil {
			s.logger.Warn("recovered aggregate from safety snapshot")
			return data
		}
		s.logger.Warn("snapshot slot unreadable", zap.Error(err))
	}

	s.logger.Info("no usable local data, starting from initial aggregate")
	return models.Initial()
}

// Save writes the aggregate to the primary slot. When the byte budget is
// exhausted it evicts the snapshot and retries once; a failure after that is
// returned as ErrCapacityExceeded and no data is silently dropped. After a
// successful primary write the snapshot is refreshed best-effort.
func (s *Store) Save(data models.AppData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize aggregate: %w", err)
	}

	if s.capacity > 0 && len(payload)+s.slotSize(snapshotKey) > s.capacity {
		s.logger.Warn("capacity budget exhausted, evicting safety snapshot")
		if err := s.deleteSlot(snapshotKey); err != nil {
			s.logger.Warn("snapshot eviction failed", zap.Error(err))
		}
		if len(payload) > s.capacity {
			return fmt.Errorf("aggregate of %d bytes does not fit: %w", len(payload), ErrCapacityExceeded)
		}
	}

	if err := s.setSlot(primaryKey, string(payload)); err != nil {
		return fmt.Errorf("failed to write primary slot: %w", err)
	}

	// Safety copy only; failure here must not fail the save.
	if s.capacity > 0 && 2*len(payload) > s.capacity {
		s.logger.Warn("not enough capacity for safety snapshot, skipping refresh")
		return nil
	}
	if err := s.setSlot(snapshotKey, string(payload)); err != nil {
		s.logger.Warn("snapshot refresh failed", zap.Error(err))
	}
	return nil
}

// Reset erases both slots.
func (s *Store) Reset() error {
	if err := s.deleteSlot(primaryKey); err != nil {
		return fmt.Errorf("failed to erase primary slot: %w", err)
	}
	if err := s.deleteSlot(snapshotKey); err != nil {
		return fmt.Errorf("failed to erase snapshot slot: %w", err)
	}
	return nil
}

// ExportSnapshot serializes the aggregate exactly as held in memory (no
// re-migration) into a portable, pretty-printed backup artifact and returns
// its payload and date-stamped filename.
func (s *Store) ExportSnapshot(data models.AppData) ([]byte, string, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize backup: %w", err)
	}
	name := fmt.Sprintf("careflow_backup_%s.json", s.now().Format("2006-01-02"))
	return payload, name, nil
}

func (s *Store) slot(key string) (string, bool) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM slots WHERE key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("slot read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return payload, true
}

func (s *Store) slotSize(key string) int {
	payload, ok := s.slot(key)
	if !ok {
		return 0
	}
	return len(payload)
}

func (s *Store) setSlot(key, payload string) error {
	_, err := s.db.Exec(
		`INSERT INTO slots (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, s.now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) deleteSlot(key string) error {
	_, err := s.db.Exec("DELETE FROM slots WHERE key = ?", key)
	return err
}
