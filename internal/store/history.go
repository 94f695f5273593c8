// Package store keeps a history of completed scrapes in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"factsheet/internal/factsheet"
	"factsheet/internal/scrape"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("scrape not found")

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 20

// Entry is one recorded scrape.
type Entry struct {
	ID           string                `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	Parent       string                `json:"parent"`
	Organisation string                `json:"organisation"`
	LastField    string                `json:"last_field,omitempty"`
	OK           bool                  `json:"ok"`
	Degraded     bool                  `json:"degraded"`
	FieldCount   int                   `json:"field_count"`
	Fields       *factsheet.Structured `json:"fields"`
	SavedPath    string                `json:"saved_path,omitempty"`
}

// Store manages the scrape history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scrapes (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			parent TEXT NOT NULL,
			organisation TEXT NOT NULL,
			last_field TEXT NOT NULL DEFAULT '',
			ok INTEGER NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			field_count INTEGER NOT NULL,
			fields_json TEXT NOT NULL,
			saved_path TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_scrapes_created ON scrapes(created_at DESC);
	`)
	return err
}

// Save inserts e, filling in a missing ID and timestamp.
func (s *Store) Save(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Fields == nil {
		e.Fields = factsheet.NewStructured(nil)
	}
	e.FieldCount = e.Fields.Len()

	fieldsJSON, err := e.Fields.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrapes (id, created_at, parent, organisation, last_field, ok,
			degraded, field_count, fields_json, saved_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CreatedAt.UnixNano(), e.Parent, e.Organisation, e.LastField, e.OK,
		e.Degraded, e.FieldCount, string(fieldsJSON), e.SavedPath)
	if err != nil {
		return fmt.Errorf("failed to save scrape: %w", err)
	}
	return nil
}

// Record stores a completed scrape. It satisfies scrape.Recorder.
func (s *Store) Record(ctx context.Context, job scrape.Job, result *scrape.Result) error {
	e := &Entry{
		ID:           result.ID,
		Parent:       job.Parent,
		Organisation: job.Organisation,
		LastField:    job.LastField,
		OK:           result.OK,
		Degraded:     result.Degraded(),
		Fields:       result.Fields,
	}
	if result.SavedPath != nil {
		e.SavedPath = *result.SavedPath
	}
	return s.Save(ctx, e)
}

// Get loads one scrape by ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, parent, organisation, last_field, ok, degraded,
			field_count, fields_json, saved_path
		FROM scrapes WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the most recent scrapes, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, parent, organisation, last_field, ok, degraded,
			field_count, fields_json, saved_path
		FROM scrapes
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e          Entry
		created    int64
		fieldsJSON string
	)
	if err := sc.Scan(&e.ID, &created, &e.Parent, &e.Organisation, &e.LastField,
		&e.OK, &e.Degraded, &e.FieldCount, &fieldsJSON, &e.SavedPath); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, created)
	e.Fields = factsheet.NewStructured(nil)
	if err := e.Fields.UnmarshalJSON([]byte(fieldsJSON)); err != nil {
		return nil, fmt.Errorf("failed to decode fields of %s: %w", e.ID, err)
	}
	return &e, nil
}
