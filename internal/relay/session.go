package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"rosterbot/internal/eventbus"
	rtsup "rosterbot/internal/runtime/supervisor"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateListening
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Bus event types published by the relay.
const (
	EventState      = "relay.state"
	EventDelivered  = "relay.delivered"
	EventPostFailed = "relay.post_failed"
)

// StateChange is the Data of an EventState bus event.
type StateChange struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

// Delivery is the Data of EventDelivered and EventPostFailed bus events.
type Delivery struct {
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Number    int64     `json:"number"`
	Name      string    `json:"name"`
	ChangedAt time.Time `json:"changed_at"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
}

// Stats are cumulative across sessions.
type Stats struct {
	Notifications atomic.Uint64
	Fetched       atomic.Uint64
	EmptyFetches  atomic.Uint64
	Posted        atomic.Uint64
	PostFailed    atomic.Uint64
}

// Session is one Connecting -> Subscribing -> Listening -> Failed run.
// It is not reusable.
type Session struct {
	ID string

	dialer Dialer
	sender kit.Sender
	cfg    LoopConfig
	log    logx.Logger
	bus    eventbus.Bus
	stats  *Stats

	state   atomic.Int32
	onState func(id string, st State, err error)
}

func newSession(dialer Dialer, sender kit.Sender, cfg LoopConfig, log logx.Logger, bus eventbus.Bus, stats *Stats) *Session {
	id := ulid.Make().String()
	if stats == nil {
		stats = &Stats{}
	}
	return &Session{
		ID:     id,
		dialer: dialer,
		sender: sender,
		cfg:    cfg,
		log:    log.With(logx.String("session", id)),
		bus:    bus,
		stats:  stats,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State, err error) {
	s.state.Store(int32(st))
	if s.onState != nil {
		s.onState(s.ID, st, err)
	}
	if s.bus != nil {
		sc := StateChange{SessionID: s.ID, State: st.String()}
		if err != nil {
			sc.Error = err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: EventState, Data: sc})
	}
}

// Run drives the session to Failed and returns the error that ended it.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() { s.setState(StateFailed, err) }()

	s.setState(StateConnecting, nil)
	if s.dialer == nil {
		return newError(KindConnection, "dial", ErrNoDialer)
	}
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return newError(KindConnection, "dial", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := conn.Close(cctx); cerr != nil {
			s.log.Debug("close connection", logx.Err(cerr))
		}
	}()

	s.setState(StateSubscribing, nil)

	queue := NewQueue()
	bridge := NewBridge(conn, queue, s.log.With(logx.String("comp", "relay.bridge")))
	loop := NewLoop(s.cfg, conn, queue, s.sender, s.log.With(logx.String("comp", "relay.loop")))
	loop.bus = s.bus
	loop.stats = s.stats
	loop.sessionID = s.ID
	loop.onListening = func() { s.setState(StateListening, nil) }

	// Whichever side fails first cancels the other; Wait returns after both
	// have stopped, so the connection is closed only once nobody uses it.
	sup := rtsup.New(ctx, rtsup.WithCancelOnError(true), rtsup.WithLogger(s.log))
	sup.Go("bridge", bridge.Run)
	sup.Go("loop", loop.Run)
	err = sup.Wait(context.Background())

	if err == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(KindConnection, "session", errors.New("stopped without error"))
	}
	if KindOf(err) == 0 {
		// A recovered panic.
		return newError(KindConnection, "session", err)
	}
	return err
}
