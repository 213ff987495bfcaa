package ads

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/plcwatch/plclogger/internal/device"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

// DefaultTriggerSymbol is polled for the rising edge when no other symbol is
// configured.
const DefaultTriggerSymbol = "MAIN.ADS_Coil1"

// symbolPrefix is prepended to tag names that do not already carry a scope.
const symbolPrefix = "MAIN."

// Config holds the ADS connection parameters.
type Config struct {
	IP            string
	NetID         string        // target AMS net ID, e.g. "5.18.32.44.1.1"
	Port          int           // target AMS port, e.g. 851
	Timeout       time.Duration // defaults to 5s
	TriggerSymbol string        // defaults to DefaultTriggerSymbol
}

// Session is an ADS device session performing symbolic reads. There is no
// batch API: each tag is one read, and a failed symbol read degrades to a
// typed default instead of aborting the sample, so a PLC program change that
// lags the tag configuration costs single values, not whole records.
type Session struct {
	cfg    Config
	target NetID

	mu      sync.Mutex
	conn    *conn
	handles map[string]uint32
}

// New creates an ADS session. The net ID is validated here so a malformed
// one never reaches a live connection.
func New(cfg Config) (*Session, error) {
	target, err := ParseNetID(cfg.NetID)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TriggerSymbol == "" {
		cfg.TriggerSymbol = DefaultTriggerSymbol
	}
	return &Session{cfg: cfg, target: target}, nil
}

// Source implements device.Session.
func (s *Session) Source() string { return "ADS" }

// Open connects to the AMS router on the target host.
func (s *Session) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	c, err := dial(s.cfg.IP, s.target, uint16(s.cfg.Port), s.cfg.Timeout)
	if err != nil {
		return err
	}
	s.conn = c
	s.handles = make(map[string]uint32)
	log.Debug().Str("ip", s.cfg.IP).Str("net_id", s.target.String()).Msg("ADS connection opened")
	return nil
}

// Close releases cached symbol handles and the connection. Safe to call
// multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	for name, handle := range s.handles {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], handle)
		if err := s.conn.write(igSymReleaseHandle, 0, buf[:]); err != nil {
			log.Debug().Err(err).Str("symbol", name).Msg("Failed to release ADS symbol handle")
		}
	}
	s.handles = nil
	err := s.conn.close()
	s.conn = nil
	return err
}

// Healthy reads the trigger symbol once.
func (s *Session) Healthy(ctx context.Context) error {
	_, err := s.ReadTrigger(ctx)
	return err
}

// ReadTrigger reads the trigger symbol as a BOOL.
func (s *Session) ReadTrigger(ctx context.Context) (bool, error) {
	data, err := s.readSymbol(ctx, s.cfg.TriggerSymbol, 1)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// ReadValues reads each tag's symbol individually. Coils are read as BOOL,
// registers as DINT split into two 16-bit words (low word first) so decoding
// is uniform across protocols. A symbol-level failure yields the tag's
// default; a transport failure aborts the pass.
func (s *Session) ReadValues(ctx context.Context, tags []tagcfg.Tag) (map[string]device.Raw, error) {
	out := make(map[string]device.Raw, len(tags))
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := device.Raw{Kind: tag.Kind()}
		symbol := SymbolFor(tag)
		size := 1
		if tag.IsRegister() {
			size = 4
		}
		data, err := s.readSymbol(ctx, symbol, size)
		switch {
		case err == nil:
			if tag.IsRegister() {
				v := binary.LittleEndian.Uint32(data)
				raw.Words = [2]uint16{uint16(v), uint16(v >> 16)}
			} else {
				raw.Bool = data[0] != 0
			}
		case isSymbolError(err):
			log.Warn().Err(err).Str("tag", tag.Name).Str("symbol", symbol).
				Msg("ADS symbol read failed, recording default value")
			s.forgetHandle(symbol)
		default:
			return nil, err
		}
		out[tag.Name] = raw
	}
	return out, nil
}

// SymbolFor maps a tag to its PLC symbol name: the cleaned tag name, scoped
// under MAIN unless it already contains a dot.
func SymbolFor(tag tagcfg.Tag) string {
	name := tagcfg.CleanName(tag.Name)
	if strings.Contains(name, ".") {
		return name
	}
	return symbolPrefix + name
}

// readSymbol reads size bytes of a symbol's value via a cached handle.
func (s *Session) readSymbol(ctx context.Context, name string, size int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.current()
	if err != nil {
		return nil, err
	}
	handle, err := s.handle(c, name)
	if err != nil {
		return nil, err
	}
	data, err := c.read(igSymValByHandle, handle, size)
	if err != nil {
		if isSymbolError(err) {
			// Stale handle after a PLC program download; resolve again next time.
			s.forgetHandle(name)
		}
		return nil, err
	}
	return data, nil
}

// handle resolves and caches the symbol handle for name.
func (s *Session) handle(c *conn, name string) (uint32, error) {
	s.mu.Lock()
	if h, ok := s.handles[name]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	data, err := c.readWrite(igSymHandleByName, 0, 4, append([]byte(name), 0))
	if err != nil {
		return 0, err
	}
	h := binary.LittleEndian.Uint32(data)

	s.mu.Lock()
	if s.handles != nil {
		s.handles[name] = h
	}
	s.mu.Unlock()
	return h, nil
}

func (s *Session) forgetHandle(name string) {
	s.mu.Lock()
	delete(s.handles, name)
	s.mu.Unlock()
}

func (s *Session) current() (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, device.Connectivity("read", errors.New("session not open"))
	}
	return s.conn, nil
}

// isSymbolError reports whether err is an ADS result code, i.e. the device
// answered but rejected the operation.
func isSymbolError(err error) bool {
	var re ResultError
	return errors.As(err, &re)
}
