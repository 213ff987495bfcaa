// Package schema derives the SQLite schema for a tag configuration and
// resolves the fingerprint-qualified database file it lives in. Consistency
// across configuration changes is achieved by never reusing a path for
// differing content: a changed tag set yields a new hash, hence a new file.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/plcwatch/plclogger/internal/tagcfg"
)

// TableName is the single table every database file owns.
const TableName = "plc_data"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SanitizeIdentifier converts a tag name into a safe SQL identifier: spaces
// become underscores and the result must be alphanumeric/underscore and not
// start with a digit. Anything else is rejected rather than escaped.
func SanitizeIdentifier(name string) (string, error) {
	ident := tagcfg.CleanName(name)
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("tag name %q is not a valid column identifier", name)
	}
	return ident, nil
}

// ResolvePath returns the database file path for the document: the filename
// embeds the date and the configuration fingerprint. The directory is
// created if absent.
func ResolvePath(dir string, doc tagcfg.Document, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create logs directory %s: %w", dir, err)
	}
	hash, err := tagcfg.Hash(doc)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("plc_data_%s_config-%s.db", now.Format("2006-01-02"), hash)
	return filepath.Join(dir, name), nil
}

// EnsureSchema creates the database file and the plc_data table for the
// document's enabled tags. If the file already exists it is left untouched:
// the path is fingerprinted by content, so an existing file already matches.
// Creation failures are fatal to session start and returned to the caller.
func EnsureSchema(path string, doc tagcfg.Document) error {
	if _, err := os.Stat(path); err == nil {
		log.Info().Str("path", path).Msg("Database already exists, skipping schema creation")
		return nil
	}

	columns := []string{
		"id INTEGER PRIMARY KEY AUTOINCREMENT",
		"timestamp TEXT NOT NULL",
		"source TEXT NOT NULL",
	}
	for _, tag := range doc.EnabledTags() {
		ident, err := SanitizeIdentifier(tag.Name)
		if err != nil {
			return err
		}
		colType := "TEXT"
		if tag.IsRegister() {
			colType = "REAL"
		}
		columns = append(columns, fmt.Sprintf("%s %s", ident, colType))
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return fmt.Errorf("create database %s: %w", path, err)
	}
	defer db.Close()

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", TableName, strings.Join(columns, ", "))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create table %s: %w", TableName, err)
	}

	log.Info().Str("path", path).Int("columns", len(columns)).Msg("Database schema initialized")
	return nil
}

// DatabaseInfo describes one logged database file.
type DatabaseInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Date string `json:"date"`
	Hash string `json:"config_hash"`
}

var dbNamePattern = regexp.MustCompile(`^plc_data_(\d{4}-\d{2}-\d{2})_config-([0-9a-f]+)\.db$`)

// ListDatabases returns the database files in dir that match the logger's
// naming pattern, newest first.
func ListDatabases(dir string) ([]DatabaseInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read logs directory %s: %w", dir, err)
	}

	var out []DatabaseInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dbNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		out = append(out, DatabaseInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Date: m[1],
			Hash: m[2],
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}
