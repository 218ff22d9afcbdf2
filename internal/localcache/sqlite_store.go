package localcache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/presentation-params/internal/params"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the client-side persistent cache: the last snapshot seen for
// each image directory, plus the single pending slot for an undelivered save.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("cache db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap params.Snapshot) error {
	if snap.ImageDir == "" {
		return fmt.Errorf("snapshot has no image dir")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO snapshots (image_dir, payload, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(image_dir) DO UPDATE SET
			payload=excluded.payload,
			updated_at=excluded.updated_at`,
		snap.ImageDir,
		string(payload),
		time.Now().UTC(),
	)
	return err
}

// LoadSnapshot returns the cached snapshot for imageDir. Values pass through
// the same decoding rules as the save endpoint, so a damaged row still yields
// clamped, defaulted parameters.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, imageDir string) (params.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE image_dir = ?`, imageDir).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return params.Snapshot{}, false, nil
	}
	if err != nil {
		return params.Snapshot{}, false, err
	}
	snap, err := params.DecodeSnapshot([]byte(payload))
	if err != nil {
		return params.Snapshot{}, false, fmt.Errorf("decode cached snapshot for %s: %w", imageDir, err)
	}
	return snap, true, nil
}

// SavePending stages snap in the pending slot, replacing whatever was there.
func (s *SQLiteStore) SavePending(ctx context.Context, snap params.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO pending_slot (slot, image_dir, payload, staged_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
			image_dir=excluded.image_dir,
			payload=excluded.payload,
			staged_at=excluded.staged_at`,
		snap.ImageDir,
		string(payload),
		time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) LoadPending(ctx context.Context) (params.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM pending_slot WHERE slot = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return params.Snapshot{}, false, nil
	}
	if err != nil {
		return params.Snapshot{}, false, err
	}
	snap, err := params.DecodeSnapshot([]byte(payload))
	if err != nil {
		return params.Snapshot{}, false, fmt.Errorf("decode pending snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) ClearPending(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_slot WHERE slot = 1`)
	return err
}
