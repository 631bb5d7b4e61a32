package relay

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	kit "rosterbot/internal/transport"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *int64:
			*p = r.vals[i].(int64)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func eventRow(typ string, number int64, name string) fakeRow {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return fakeRow{vals: []any{typ, number, name, at, at}}
}

// fakeConn is a scripted data-store connection. QueryRow hands out rows in
// order and repeats the last one; no rows means an empty table.
type fakeConn struct {
	frames chan Frame
	broken chan error

	mu      sync.Mutex
	execs   []string
	execErr error
	sqls    []string
	rows    []fakeRow
	queries int
	closed  bool
}

func newFakeConn(rows ...fakeRow) *fakeConn {
	return &fakeConn{
		frames: make(chan Frame, 16),
		broken: make(chan error, 1),
		rows:   rows,
	}
}

func (c *fakeConn) notify() {
	c.frames <- Frame{Kind: FrameNotification, Notification: Notification{Channel: DefaultChannel, ReceivedAt: time.Now()}}
}

func (c *fakeConn) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case err := <-c.broken:
		return Frame{}, err
	case f := <-c.frames:
		return f, nil
	}
}

func (c *fakeConn) Exec(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	return c.execErr
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sqls = append(c.sqls, sql)
	if len(c.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	i := min(c.queries, len(c.rows)-1)
	c.queries++
	return c.rows[i]
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type sentMsg struct {
	To   kit.ChatTarget
	Text string
}

// fakeSender records every attempt. errs[i] is returned for attempt i.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error
	sent  chan sentMsg
}

func newFakeSender(errs ...error) *fakeSender {
	return &fakeSender{errs: errs, sent: make(chan sentMsg, 32)}
}

func (s *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	s.mu.Unlock()

	s.sent <- sentMsg{To: to, Text: text}
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: 100 + i}, nil
}

func (s *fakeSender) next(timeout time.Duration) (sentMsg, bool) {
	select {
	case m := <-s.sent:
		return m, true
	case <-time.After(timeout):
		return sentMsg{}, false
	}
}

// syncBuffer is a log sink safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stallSender blocks its first send until ctx ends, then sends normally.
type stallSender struct {
	*fakeSender
	stalled chan struct{}
}

func newStallSender() *stallSender {
	return &stallSender{fakeSender: newFakeSender(), stalled: make(chan struct{}, 1)}
}

func (s *stallSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	select {
	case s.stalled <- struct{}{}:
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	default:
	}
	return s.fakeSender.SendText(ctx, to, text, opt)
}
