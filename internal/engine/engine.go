// Package engine runs the polling loop at the heart of the logger: it
// detects the rising edge of the trigger bit, samples all enabled tags in
// one pass and hands the assembled record to the persistence writer.
// Sampling is edge-triggered, not continuous: one record per physical event
// signaled by the PLC, however often the loop polls.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/plcwatch/plclogger/internal/device"
	"github.com/plcwatch/plclogger/internal/schema"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

// Reconnect policy defaults.
const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = 10 * time.Second
)

// TimestampFormat is the wall-clock form stored in every record.
const TimestampFormat = "2006-01-02 15:04:05"

// RecordWriter persists one assembled record as a single row.
type RecordWriter interface {
	Log(table string, record map[string]any) error
}

// Config tunes the engine's loop.
type Config struct {
	Interval   time.Duration // poll cadence
	MaxRetries int           // consecutive failed connects before a fatal stop
	RetryDelay time.Duration // wait between reconnect attempts
	Now        func() time.Time
}

// Engine polls one device session and feeds one writer. It snapshots the
// enabled tags at construction; configuration edits take effect on the next
// engine start, never mid-session.
type Engine struct {
	session  device.Session
	writer   RecordWriter
	tags     []tagcfg.Tag
	notifier Notifier
	cfg      Config

	prevTrigger bool
}

// New creates an engine over the enabled tags of the given set.
func New(session device.Session, writer RecordWriter, tags []tagcfg.Tag, notifier Notifier, cfg Config) *Engine {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Interval == 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	enabled := make([]tagcfg.Tag, 0, len(tags))
	for _, t := range tags {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return &Engine{
		session:  session,
		writer:   writer,
		tags:     enabled,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run drives the poll loop until the context is cancelled (clean stop,
// returns nil) or the reconnect budget is exhausted (fatal, returns the
// error after notifying). The device session is closed on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.session.Close(); err != nil {
			log.Debug().Err(err).Msg("Closing device session on engine exit")
		}
	}()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Str("source", e.session.Source()).
		Dur("interval", e.cfg.Interval).
		Int("tags", len(e.tags)).
		Msg("Engine starting")

	retries := 0
	connected := false
	for {
		if ctx.Err() != nil {
			log.Info().Msg("Engine stopped")
			return nil
		}

		if !connected {
			if err := e.connect(ctx); err != nil {
				retries++
				log.Warn().Err(err).
					Int("attempt", retries).
					Int("max_attempts", e.cfg.MaxRetries).
					Msg("Connection attempt failed")
				if retries >= e.cfg.MaxRetries {
					fatal := fmt.Errorf("giving up after %d connection attempts: %w", retries, err)
					log.Error().Err(fatal).Msg("Engine stopping, retries exhausted")
					e.notifier.OnFatal(fatal)
					return fatal
				}
				if !sleep(ctx, e.cfg.RetryDelay) {
					log.Info().Msg("Engine stopped during retry wait")
					return nil
				}
				continue
			}
			connected = true
			retries = 0
			e.notifier.OnConnected(e.session.Source())
			log.Info().Str("source", e.session.Source()).Msg("Device connected")
		}

		if err := e.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Engine stopped")
				return nil
			}
			log.Warn().Err(err).Msg("Poll cycle failed, reconnecting")
			if cerr := e.session.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("Closing stale device session")
			}
			connected = false
			e.notifier.OnDisconnected(err)
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) connect(ctx context.Context) error {
	ctx, span := otel.Tracer("engine").Start(ctx, "engine.connect")
	defer span.End()
	return e.session.Open(ctx)
}

// cycle is one poll: read the trigger, detect the edge, and on an edge
// sample everything and hand the record off. The trigger state is stored
// for the next cycle whatever the outcome.
func (e *Engine) cycle(ctx context.Context) error {
	trigger, err := e.session.ReadTrigger(ctx)
	if err != nil {
		return err
	}
	rising := trigger && !e.prevTrigger
	e.prevTrigger = trigger
	if !rising {
		return nil
	}

	log.Info().Msg("Rising edge detected on trigger")
	ctx, span := otel.Tracer("engine").Start(ctx, "engine.sample")
	defer span.End()
	span.SetAttributes(attribute.Int("tags", len(e.tags)))

	raw, err := e.session.ReadValues(ctx, e.tags)
	if err != nil {
		return err
	}

	record := e.assemble(raw)
	if err := e.writer.Log(schema.TableName, record); err != nil {
		// A missed row is preferable to killing the session, but it must
		// stay visible to the operator.
		log.Error().Err(err).Interface("record", record).Msg("Failed to persist record, row skipped")
		return nil
	}
	e.notifier.OnRecord(record)
	log.Info().Str("timestamp", record["timestamp"].(string)).Msg("Record logged")
	return nil
}

// assemble decodes the raw values into one timestamped record. Missing
// values become nil so the row keeps its shape.
func (e *Engine) assemble(raw map[string]device.Raw) map[string]any {
	record := map[string]any{
		"timestamp": e.cfg.Now().Format(TimestampFormat),
		"source":    e.session.Source(),
	}
	for _, tag := range e.tags {
		col := tag.Column()
		r, ok := raw[tag.Name]
		if !ok || r.Missing {
			record[col] = nil
			continue
		}
		if tag.IsRegister() {
			record[col] = DecodeRegister(r.Words, tag.Scale)
		} else {
			record[col] = DecodeCoil(r.Bool)
		}
	}
	return record
}

// sleep waits for d or until ctx is cancelled; it reports false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
