// Package journal keeps a small bbolt record of every logging session for
// operator visibility: when it ran, against what configuration, how many
// rows it produced and why it ended.
package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const bucketName = "sessions"

// Entry is one logging session's lifecycle record.
type Entry struct {
	ID            string     `json:"id"`
	Mode          string     `json:"mode"`
	DatabasePath  string     `json:"database_path"`
	ConfigHash    string     `json:"config_hash"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	RecordsLogged int        `json:"records_logged"`
	LastError     string     `json:"last_error,omitempty"`
}

// Journal is a bbolt-backed session store.
type Journal struct {
	db *bbolt.DB
}

// Open opens the journal file, creating the bucket if needed.
func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().Str("path", path).Msg("Session journal opened")
	return &Journal{db: db}, nil
}

// Put stores or updates the entry under its session ID.
func (j *Journal) Put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	err = j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(entry.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store journal entry: %w", err)
	}
	return nil
}

// Get retrieves one entry by session ID, or nil when absent.
func (j *Journal) Get(id string) (*Entry, error) {
	var entry *Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		val := b.Get([]byte(id))
		if val == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(val, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return entry, nil
}

// List returns all entries, most recently started first.
func (j *Journal) List() ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].StartedAt.After(entries[k].StartedAt)
	})
	return entries, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
