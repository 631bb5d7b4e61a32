package relay

import "context"

type FrameKind int

const (
	// FrameIdle means nothing arrived within the source's poll window.
	FrameIdle FrameKind = iota
	FrameNotification
)

// Frame is one asynchronous message read from the data store.
type Frame struct {
	Kind         FrameKind
	Notification Notification
}

// FrameSource yields frames until it fails. After the first error the
// source is finished; a new one comes only from a new connection.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// Row is a single-row query result. Scan must be called exactly once.
type Row interface {
	Scan(dest ...any) error
}

// Conn is one data-store connection as seen by a session. NextFrame is
// called only by the bridge; Exec and QueryRow only by the loop.
// Implementations must allow those two callers to run concurrently.
type Conn interface {
	FrameSource
	Exec(ctx context.Context, sql string) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Close(ctx context.Context) error
}

// Dialer opens a fresh connection for every session.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
