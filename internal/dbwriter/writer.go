// Package dbwriter appends records to the resolved SQLite table. One writer
// owns one connection; WAL journal mode lets chart readers query the same
// file while writes proceed.
package dbwriter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Writer is a dedicated insert connection. Log is safe to call from
// multiple goroutines; an internal mutex serializes writes.
type Writer struct {
	mu   sync.Mutex
	db   *sqlx.DB
	path string
}

// Open opens (or creates) the database file and switches it to WAL mode.
func Open(path string) (*Writer, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Persistence writer opened in WAL mode")
	return &Writer{db: db, path: path}, nil
}

// Log inserts the record as one row, committed synchronously. Column names
// come from the record's own keys; they are schema-fixed identifiers
// validated when the table was created, and all values travel as bind
// parameters.
func (w *Writer) Log(table string, record map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return fmt.Errorf("writer for %s is closed", w.path)
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = fmt.Sprintf("%q", k)
		params[i] = ":" + k
	}
	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(params, ", "))

	if _, err := w.db.NamedExec(query, record); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	log.Debug().Str("table", table).Int("columns", len(keys)).Msg("Record inserted")
	return nil
}

// Close releases the connection. Safe to call multiple times.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	log.Info().Str("path", w.path).Msg("Persistence writer closed")
	return err
}
