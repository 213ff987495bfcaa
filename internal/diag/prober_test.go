package diag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcwatch/plclogger/internal/device"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

type fakeSession struct {
	openErr    error
	healthyErr error
	closed     bool
}

func (f *fakeSession) Open(ctx context.Context) error  { return f.openErr }
func (f *fakeSession) Close() error                    { f.closed = true; return nil }
func (f *fakeSession) Healthy(ctx context.Context) error { return f.healthyErr }
func (f *fakeSession) ReadTrigger(ctx context.Context) (bool, error) {
	return false, nil
}
func (f *fakeSession) ReadValues(ctx context.Context, tags []tagcfg.Tag) (map[string]device.Raw, error) {
	return nil, nil
}
func (f *fakeSession) Source() string { return "Fake" }

func TestProbe_SuccessUpdatesCounters(t *testing.T) {
	session := &fakeSession{}
	p := New(func() (device.Session, error) { return session, nil }, time.Second)

	p.probe(context.Background())

	snap := p.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, 1, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailCount)
	assert.Equal(t, 100, snap.SuccessRate)
	assert.Len(t, snap.PingHistory, 1)
	assert.Empty(t, snap.RecentErrors)
	assert.True(t, session.closed, "probe must close its session")
}

func TestProbe_FailureRecordsError(t *testing.T) {
	p := New(func() (device.Session, error) {
		return &fakeSession{openErr: errors.New("connection refused")}, nil
	}, time.Second)

	p.probe(context.Background())
	p.probe(context.Background())

	snap := p.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, 0, snap.SuccessCount)
	assert.Equal(t, 2, snap.FailCount)
	assert.Equal(t, 0, snap.SuccessRate)
	require.Len(t, snap.RecentErrors, 2)
	assert.Contains(t, snap.RecentErrors[0], "connection refused")
}

func TestProbe_DialErrorCountsAsFailure(t *testing.T) {
	p := New(func() (device.Session, error) {
		return nil, errors.New("no route to host")
	}, time.Second)

	p.probe(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, 1, snap.FailCount)
}

func TestProbe_UnhealthySessionCountsAsFailure(t *testing.T) {
	p := New(func() (device.Session, error) {
		return &fakeSession{healthyErr: errors.New("trigger read timeout")}, nil
	}, time.Second)

	p.probe(context.Background())

	snap := p.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, 1, snap.FailCount)
}

func TestSnapshot_SuccessRateMixed(t *testing.T) {
	failing := false
	p := New(func() (device.Session, error) {
		if failing {
			return nil, errors.New("down")
		}
		return &fakeSession{}, nil
	}, time.Second)

	for i := 0; i < 3; i++ {
		p.probe(context.Background())
	}
	failing = true
	p.probe(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, 3, snap.SuccessCount)
	assert.Equal(t, 1, snap.FailCount)
	assert.Equal(t, 75, snap.SuccessRate)
}

func TestSnapshot_HistoryBounded(t *testing.T) {
	p := New(func() (device.Session, error) {
		return nil, errors.New("down")
	}, time.Second)

	for i := 0; i < pingHistoryLimit+10; i++ {
		p.probe(context.Background())
	}

	snap := p.Snapshot()
	assert.Len(t, snap.PingHistory, pingHistoryLimit)
	assert.Len(t, snap.RecentErrors, 5)
	assert.Equal(t, pingHistoryLimit+10, snap.FailCount)
}

func TestReset_ClearsCountersAndHistory(t *testing.T) {
	p := New(func() (device.Session, error) {
		return &fakeSession{}, nil
	}, time.Second)

	p.probe(context.Background())
	p.Reset()

	snap := p.Snapshot()
	assert.Equal(t, 0, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailCount)
	assert.Empty(t, snap.PingHistory)
	assert.Empty(t, snap.RecentErrors)
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := New(func() (device.Session, error) {
		return &fakeSession{}, nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prober did not stop after cancel")
	}

	assert.GreaterOrEqual(t, p.Snapshot().SuccessCount, 2)
}
