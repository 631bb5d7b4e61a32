package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects the backend. Driver "" or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means 5s
	// MaxRows caps the deliveries table; older rows are pruned. 0 keeps all.
	MaxRows int
}

// Delivery is one post attempt for one roster event.
type Delivery struct {
	ID        int64
	At        time.Time
	SessionID string
	EventType string
	Number    int64
	Name      string
	ChangedAt time.Time
	ChatID    int64
	ThreadID  int
	MessageID int
	OK        bool
	Error     string
}
