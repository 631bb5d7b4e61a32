package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by Queue.Recv after the bridge stopped. The
	// bridge's own error is wrapped alongside it.
	ErrQueueClosed = errors.New("relay: notification queue closed")
	ErrNoDialer    = errors.New("relay: no dialer configured")
	ErrNoSender    = errors.New("relay: no chat sender configured")
)

type ErrorKind int

const (
	KindConnection ErrorKind = iota + 1
	KindSubscribe
	KindQuery
	KindPost
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindSubscribe:
		return "subscribe"
	case KindQuery:
		return "query"
	case KindPost:
		return "post"
	default:
		return "unknown"
	}
}

// Error classifies a relay failure. Every kind except KindPost ends the
// session.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("relay %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("relay %s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// IsFatal reports whether err ends a session.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) != KindPost
}
