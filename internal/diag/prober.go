// Package diag runs periodic connection health checks, independent of the
// logging session. Each probe is one bounded-timeout trigger read on a
// fresh device session, so a wedged probe can never stall sampling.
package diag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plcwatch/plclogger/internal/device"
)

const (
	pingHistoryLimit = 20
	errorHistoryLimit = 20
)

// Snapshot is the current health picture for the API and the UI.
type Snapshot struct {
	Connected      bool      `json:"connected"`
	LastPingMillis float64   `json:"last_ping_ms"`
	SuccessCount   int       `json:"success_count"`
	FailCount      int       `json:"fail_count"`
	SuccessRate    int       `json:"success_rate_pct"`
	PingHistory    []float64 `json:"ping_history_ms"`
	RecentErrors   []string  `json:"recent_errors"`
	LastProbe      time.Time `json:"last_probe"`
}

// Dialer produces a fresh short-lived session for one probe.
type Dialer func() (device.Session, error)

// Prober polls device health on its own cadence.
type Prober struct {
	dial     Dialer
	interval time.Duration

	mu        sync.Mutex
	pings     []float64
	errors    []string
	success   int
	fail      int
	connected bool
	lastProbe time.Time
	lastPing  float64
}

// New creates a prober probing via dial every interval.
func New(dial Dialer, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Prober{dial: dial, interval: interval}
}

// Run probes until the context is cancelled. The first probe fires
// immediately.
func (p *Prober) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Diagnostics prober starting")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Diagnostics prober stopped")
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	start := time.Now()
	err := p.check(ctx)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastProbe = time.Now()
	p.lastPing = elapsed
	p.pings = append(p.pings, elapsed)
	if len(p.pings) > pingHistoryLimit {
		p.pings = p.pings[1:]
	}
	if err != nil {
		p.fail++
		p.connected = false
		p.errors = append(p.errors, fmt.Sprintf("%s - %v", time.Now().Format("15:04:05"), err))
		if len(p.errors) > errorHistoryLimit {
			p.errors = p.errors[1:]
		}
		log.Debug().Err(err).Msg("Health probe failed")
	} else {
		p.success++
		p.connected = true
	}
}

func (p *Prober) check(ctx context.Context) error {
	session, err := p.dial()
	if err != nil {
		return err
	}
	defer session.Close()
	if err := session.Open(ctx); err != nil {
		return err
	}
	return session.Healthy(ctx)
}

// Snapshot returns a copy of the current health state.
func (p *Prober) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Connected:      p.connected,
		LastPingMillis: p.lastPing,
		SuccessCount:   p.success,
		FailCount:      p.fail,
		PingHistory:    append([]float64(nil), p.pings...),
		LastProbe:      p.lastProbe,
	}
	if total := p.success + p.fail; total > 0 {
		snap.SuccessRate = p.success * 100 / total
	}
	if n := len(p.errors); n > 5 {
		snap.RecentErrors = append([]string(nil), p.errors[n-5:]...)
	} else {
		snap.RecentErrors = append([]string(nil), p.errors...)
	}
	return snap
}

// Reset clears counters and history, the "test connection" action.
func (p *Prober) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings = nil
	p.errors = nil
	p.success = 0
	p.fail = 0
}
