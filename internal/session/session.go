// Package session owns one logging session end to end: the resolved
// database path, the device connection, the persistence writer and the
// journal entry. Sessions are self-contained values, so tests (and any
// future multi-session host) can run them side by side without shared
// state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/plcwatch/plclogger/internal/dbwriter"
	"github.com/plcwatch/plclogger/internal/device"
	"github.com/plcwatch/plclogger/internal/device/ads"
	"github.com/plcwatch/plclogger/internal/device/modbustcp"
	"github.com/plcwatch/plclogger/internal/engine"
	"github.com/plcwatch/plclogger/internal/journal"
	"github.com/plcwatch/plclogger/internal/schema"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

// Session is one configured, ready-to-run logging session.
type Session struct {
	id     string
	doc    tagcfg.Document
	hash   string
	dbPath string

	dev     device.Session
	writer  *dbwriter.Writer
	jnl     *journal.Journal
	notif   engine.Notifier
	engCfg  engine.Config

	mu      sync.Mutex
	records int
}

// NewDevice builds the device session matching the connection settings.
func NewDevice(settings tagcfg.Settings) (device.Session, error) {
	switch settings.Mode {
	case tagcfg.ModeTCP:
		return modbustcp.New(modbustcp.Config{
			Host: settings.IP,
			Port: settings.Port,
		}), nil
	case tagcfg.ModeADS:
		return ads.New(ads.Config{
			IP:    settings.IP,
			NetID: settings.AMSNetID,
			Port:  settings.AMSPort,
		})
	default:
		return nil, fmt.Errorf("unknown connection mode %q", settings.Mode)
	}
}

// Option adjusts how a session is assembled.
type Option func(*options)

type options struct {
	dev device.Session
}

// WithDevice substitutes the device session, bypassing the connection
// settings. Used by harnesses driving the engine against a simulated PLC.
func WithDevice(dev device.Session) Option {
	return func(o *options) { o.dev = dev }
}

// New validates the document, resolves and prepares the database file, and
// opens the writer and device. jnl may be nil; notifier may be nil.
func New(logsDir string, doc tagcfg.Document, notifier engine.Notifier, jnl *journal.Journal, opts ...Option) (*Session, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("configuration rejected: %w", err)
	}

	hash, err := tagcfg.Hash(doc)
	if err != nil {
		return nil, err
	}
	dbPath, err := schema.ResolvePath(logsDir, doc, time.Now())
	if err != nil {
		return nil, err
	}
	if err := schema.EnsureSchema(dbPath, doc); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dev := o.dev
	if dev == nil {
		if dev, err = NewDevice(doc.Settings); err != nil {
			return nil, err
		}
	}

	writer, err := dbwriter.Open(dbPath)
	if err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier = engine.NopNotifier{}
	}

	return &Session{
		id:     uuid.NewString(),
		doc:    doc,
		hash:   hash,
		dbPath: dbPath,
		dev:    dev,
		writer: writer,
		jnl:    jnl,
		notif:  notifier,
		engCfg: engine.Config{
			Interval: time.Duration(doc.Settings.PollingInterval * float64(time.Second)),
		},
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// DatabasePath returns the resolved database file.
func (s *Session) DatabasePath() string { return s.dbPath }

// ConfigHash returns the configuration fingerprint the session runs under.
func (s *Session) ConfigHash() string { return s.hash }

// Run executes the polling engine until the context is cancelled or a fatal
// error stops it. The writer and device are released on every exit path and
// the journal entry is finalized with the outcome.
func (s *Session) Run(ctx context.Context) error {
	entry := &journal.Entry{
		ID:           s.id,
		Mode:         s.doc.Settings.Mode,
		DatabasePath: s.dbPath,
		ConfigHash:   s.hash,
		StartedAt:    time.Now(),
	}
	s.journalPut(entry)

	eng := engine.New(s.dev, s.writer, s.doc.Tags, &sessionNotifier{s: s, entry: entry}, s.engCfg)

	log.Info().
		Str("session", s.id).
		Str("mode", s.doc.Settings.Mode).
		Str("db", s.dbPath).
		Str("config_hash", s.hash).
		Msg("Logging session starting")

	runErr := eng.Run(ctx)

	if err := s.writer.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing persistence writer")
	}

	now := time.Now()
	entry.EndedAt = &now
	entry.RecordsLogged = s.recordCount()
	if runErr != nil {
		entry.LastError = runErr.Error()
	}
	s.journalPut(entry)

	log.Info().
		Str("session", s.id).
		Int("records", entry.RecordsLogged).
		Msg("Logging session finished")
	return runErr
}

func (s *Session) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *Session) journalPut(entry *journal.Entry) {
	if s.jnl == nil {
		return
	}
	if err := s.jnl.Put(entry); err != nil {
		log.Warn().Err(err).Msg("Failed to update session journal")
	}
}

// sessionNotifier fans engine events out to the host notifier while keeping
// the journal entry current.
type sessionNotifier struct {
	s     *Session
	entry *journal.Entry
}

func (n *sessionNotifier) OnConnected(source string) {
	n.s.notif.OnConnected(source)
}

func (n *sessionNotifier) OnDisconnected(err error) {
	n.entry.LastError = err.Error()
	n.s.journalPut(n.entry)
	n.s.notif.OnDisconnected(err)
}

func (n *sessionNotifier) OnRecord(record map[string]any) {
	n.s.mu.Lock()
	n.s.records++
	n.entry.RecordsLogged = n.s.records
	n.s.mu.Unlock()
	n.s.journalPut(n.entry)
	n.s.notif.OnRecord(record)
}

func (n *sessionNotifier) OnFatal(err error) {
	n.entry.LastError = err.Error()
	n.s.journalPut(n.entry)
	n.s.notif.OnFatal(err)
}
