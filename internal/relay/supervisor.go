package relay

import (
	"context"
	"sync"
	"time"

	"rosterbot/internal/eventbus"
	"rosterbot/internal/runtime/backoff"
	rtsup "rosterbot/internal/runtime/supervisor"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

const DefaultRetryDelay = 5 * time.Second

type SupervisorConfig struct {
	Loop LoopConfig
	// Backoff between sessions. Default backoff.Constant(5s).
	Backoff backoff.Strategy
}

// Supervisor rebuilds the whole session after every failure, forever.
type Supervisor struct {
	cfg    SupervisorConfig
	dialer Dialer
	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus
	sleep  func(ctx context.Context, d time.Duration) error

	stats Stats

	mu        sync.Mutex
	state     State
	session   string
	sessions  uint64
	lastErr   string
	lastErrAt time.Time
	since     time.Time
}

type SupervisorOption func(*Supervisor)

func WithBus(bus eventbus.Bus) SupervisorOption {
	return func(s *Supervisor) { s.bus = bus }
}

// WithSleep replaces the wait between sessions (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SupervisorOption {
	return func(s *Supervisor) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func NewSupervisor(cfg SupervisorConfig, dialer Dialer, sender kit.Sender, log logx.Logger, opts ...SupervisorOption) *Supervisor {
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.Constant(DefaultRetryDelay)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		sender: sender,
		log:    log,
		sleep:  rtsup.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run loops until ctx ends; it has no other exit.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		sess := newSession(s.dialer, s.sender, s.cfg.Loop, s.log, s.bus, &s.stats)
		reachedListening := false
		sess.onState = func(id string, st State, err error) {
			if st == StateListening {
				reachedListening = true
			}
			s.noteState(id, st, err)
		}

		s.log.Info("relay session starting", logx.String("session", sess.ID))
		err := sess.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if reachedListening {
			attempt = 0
		}
		attempt++
		wait := s.cfg.Backoff.Next(attempt)
		s.log.Error("relay session failed",
			logx.String("session", sess.ID),
			logx.String("kind", KindOf(err).String()),
			logx.Err(err),
			logx.Duration("retry_in", wait),
		)
		if serr := s.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

func (s *Supervisor) noteState(id string, st State, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == StateConnecting {
		s.sessions++
	}
	s.session = id
	s.state = st
	s.since = now
	if err != nil {
		s.lastErr = err.Error()
		s.lastErrAt = now
	}
}

// Snapshot is a point-in-time view for health checks and status logs.
type Snapshot struct {
	State         string    `json:"state"`
	Session       string    `json:"session,omitempty"`
	Since         time.Time `json:"since,omitempty"`
	Sessions      uint64    `json:"sessions"`
	Notifications uint64    `json:"notifications"`
	Fetched       uint64    `json:"fetched"`
	EmptyFetches  uint64    `json:"empty_fetches"`
	Posted        uint64    `json:"posted"`
	PostFailed    uint64    `json:"post_failed"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:       s.state.String(),
		Session:     s.session,
		Since:       s.since,
		Sessions:    s.sessions,
		LastError:   s.lastErr,
		LastErrorAt: s.lastErrAt,
	}
	s.mu.Unlock()
	snap.Notifications = s.stats.Notifications.Load()
	snap.Fetched = s.stats.Fetched.Load()
	snap.EmptyFetches = s.stats.EmptyFetches.Load()
	snap.Posted = s.stats.Posted.Load()
	snap.PostFailed = s.stats.PostFailed.Load()
	return snap
}

// Listening reports whether the current session is in its steady state.
func (s *Supervisor) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateListening
}
