// Package device abstracts the two supported PLC protocols behind one
// capability set. Sessions do not retry internally; the reconnect policy
// belongs to the sampling engine.
package device

import (
	"context"

	"github.com/plcwatch/plclogger/internal/tagcfg"
)

// Raw is one tag's undecoded value as read from the device. Register values
// arrive as two 16-bit words, low word first; coil values as a single bit.
// Missing marks a tag whose address fell outside the block actually read.
type Raw struct {
	Kind    string
	Bool    bool
	Words   [2]uint16
	Missing bool
}

// Session is a live connection to a PLC.
type Session interface {
	// Open establishes the connection with a bounded timeout.
	Open(ctx context.Context) error

	// Close releases the connection. Safe to call multiple times.
	Close() error

	// Healthy performs one lightweight bounded read, independent of the
	// sampling path. Used by the diagnostics prober.
	Healthy(ctx context.Context) error

	// ReadTrigger reads the trigger bit.
	ReadTrigger(ctx context.Context) (bool, error)

	// ReadValues reads raw values for the given tags, batched where the
	// protocol allows, keyed by tag name.
	ReadValues(ctx context.Context, tags []tagcfg.Tag) (map[string]Raw, error)

	// Source identifies the protocol in logged records ("Modbus" or "ADS").
	Source() string
}
