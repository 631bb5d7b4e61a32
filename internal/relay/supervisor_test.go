package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterbot/internal/eventbus"
	logx "rosterbot/pkg/logx"
)

type sleepRecorder struct {
	mu     sync.Mutex
	waits  []time.Duration
	onCall func(n int)
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	n := len(r.waits)
	r.mu.Unlock()
	if r.onCall != nil {
		r.onCall(n)
	}
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// Scenario: table has (added, 42, Jane), the first connection drops after
// one delivery, and the replacement session picks up the next change.
func TestSupervisorReconnectsAfterConnectionLoss(t *testing.T) {
	t.Parallel()
	c1 := newFakeConn(eventRow("added", 42, "Jane"))
	c2 := newFakeConn(eventRow("removed", 42, "Jane"))
	conns := []*fakeConn{c1, c2}

	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		i := int(dials.Add(1)) - 1
		if i < len(conns) {
			return conns[i], nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	logs := &syncBuffer{}
	sender := newFakeSender()
	rec := &sleepRecorder{}
	bus := eventbus.New()
	delivered, unsub := bus.Subscribe(8, EventDelivered)
	defer unsub()

	sup := NewSupervisor(SupervisorConfig{Loop: LoopConfig{Target: testTarget}}, dialer, sender,
		logx.NewJSON(logs, "debug"), WithSleep(rec.sleep), WithBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, sup.Listening, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`LISTEN "roster_changes"`}, c1.Execs())

	c1.notify()
	m, ok := sender.next(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "✅ **ADDED TO ROSTER** ✅\n**#42** - Jane", m.Text)
	assert.Equal(t, testTarget, m.To)

	select {
	case e := <-delivered:
		d := e.Data.(Delivery)
		assert.Equal(t, "added", d.EventType)
		assert.EqualValues(t, 42, d.Number)
		assert.NotEmpty(t, d.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery event")
	}

	c1.broken <- errors.New("unexpected EOF")

	require.Eventually(t, func() bool { return len(c2.Execs()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`LISTEN "roster_changes"`}, c2.Execs())
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.Waits())
	assert.True(t, c1.Closed())
	assert.Contains(t, logs.String(), "relay session failed")
	assert.Contains(t, logs.String(), "unexpected EOF")

	require.Eventually(t, sup.Listening, 2*time.Second, 5*time.Millisecond)
	c2.notify()
	m, ok = sender.next(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "❌ **REMOVED FROM ROSTER** ❌\n**#42** - Jane", m.Text)

	snap := sup.Snapshot()
	assert.EqualValues(t, 2, snap.Sessions)
	assert.EqualValues(t, 2, snap.Notifications)
	assert.Contains(t, snap.LastError, "unexpected EOF")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.True(t, c2.Closed())
}

func TestSupervisorRetriesDialEveryFiveSeconds(t *testing.T) {
	t.Parallel()
	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{onCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	sup := NewSupervisor(SupervisorConfig{}, dialer, newFakeSender(), logx.Nop(), WithSleep(rec.sleep))

	err := sup.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 3, dials.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, rec.Waits())

	snap := sup.Snapshot()
	assert.Equal(t, "failed", snap.State)
	assert.Contains(t, snap.LastError, "connection refused")
}

func TestSupervisorRestartsAfterQueryFailure(t *testing.T) {
	t.Parallel()
	c1 := newFakeConn(fakeRow{err: errors.New("canceling statement due to statement timeout")})
	c2 := newFakeConn()
	conns := []*fakeConn{c1, c2}
	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		i := int(dials.Add(1)) - 1
		if i < len(conns) {
			return conns[i], nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	rec := &sleepRecorder{}
	sup := NewSupervisor(SupervisorConfig{}, dialer, newFakeSender(), logx.Nop(), WithSleep(rec.sleep))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	require.Eventually(t, func() bool { return len(c1.Execs()) == 1 }, 2*time.Second, 5*time.Millisecond)
	c1.notify()
	require.Eventually(t, func() bool { return len(c2.Execs()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.Waits())
	assert.Contains(t, sup.Snapshot().LastError, "statement timeout")
}
