package relay

import (
	"time"

	kit "rosterbot/internal/transport"
)

// Notification is a payload-free wake-up from LISTEN. Channel and Payload
// are only logged.
type Notification struct {
	Channel    string
	Payload    string
	PID        uint32
	ReceivedAt time.Time
}

type EventType int

const (
	EventOther EventType = iota
	EventAdded
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "other"
	}
}

// ParseEventType maps the event_type column. Matching is exact, so
// "Added" or " added" are EventOther like any unknown value.
func ParseEventType(raw string) EventType {
	switch raw {
	case "added":
		return EventAdded
	case "removed":
		return EventRemoved
	default:
		return EventOther
	}
}

// RosterEvent is the newest roster_events row at fetch time.
type RosterEvent struct {
	Type      EventType
	RawType   string
	Number    int64
	Name      string
	CreatedAt time.Time // ao_datetime
	ChangedAt time.Time // event_time
}

type OutboundMessage struct {
	Target kit.ChatTarget
	Text   string
}
