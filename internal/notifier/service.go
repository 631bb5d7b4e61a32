package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"rosterbot/internal/eventbus"
	"rosterbot/internal/relay"
	"rosterbot/internal/runtime/backoff"
	rtsup "rosterbot/internal/runtime/supervisor"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
	ErrDeduped  = errors.New("alert suppressed by dedup window")
)

const (
	DefaultDedupWindow = 15 * time.Minute
	defaultRetryMax    = 2
	defaultSendTimeout = 10 * time.Second
	dedupMaxEntries    = 256
)

type Config struct {
	// Target is the operator chat. A zero ChatID disables alerts.
	Target      kit.ChatTarget
	DedupWindow time.Duration
	RetryMax    int
	Retry       backoff.Strategy
	SendTimeout time.Duration
}

// HistoryItem is one alert that reached the chat.
type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

type Service struct {
	cfg    Config
	sender kit.Sender
	log    logx.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	mu    sync.Mutex
	dedup map[string]time.Time // key -> suppressed until

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	} else if cfg.RetryMax == 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.Retry == nil {
		cfg.Retry = backoff.Exponential{Min: time.Second, Max: 10 * time.Second, Jitter: 0.2}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log,
		sleep:  rtsup.Sleep,
		now:    time.Now,
		dedup:  map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool { return s != nil && s.cfg.Target.ChatID != 0 && s.sender != nil }

// Notify sends text unless the same text went out within the dedup window.
func (s *Service) Notify(ctx context.Context, text string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if !s.allow(dedupKey(s.cfg.Target, text)) {
		return ErrDeduped
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.Retry.Next(attempt)); err != nil {
				return err
			}
		}
		cctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		_, err := s.sender.SendText(cctx, s.cfg.Target, text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			s.appendHistory(text)
			return nil
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt+1))
	}
	return fmt.Errorf("alert not sent after %d attempts: %w", s.cfg.RetryMax+1, lastErr)
}

// Watch turns relay state events into alerts: one when a session fails and
// one when listening resumes after a failure. It returns when ctx ends or
// events closes.
func (s *Service) Watch(ctx context.Context, events <-chan eventbus.Event) {
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			sc, ok := e.Data.(relay.StateChange)
			if !ok {
				continue
			}
			var text string
			switch {
			case sc.State == relay.StateFailed.String():
				failing = true
				text = "⚠️ roster relay session failed: " + sc.Error
			case sc.State == relay.StateListening.String() && failing:
				failing = false
				text = "✅ roster relay listening again"
			default:
				continue
			}
			if err := s.Notify(ctx, text); err != nil && !errors.Is(err, ErrDeduped) && ctx.Err() == nil {
				s.log.Warn("alert dropped", logx.Err(err))
			}
		}
	}
}

// History returns the sent alerts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: s.now(), Text: text})
	if len(s.history) > 50 {
		s.history = s.history[len(s.history)-50:]
	}
}

func dedupKey(to kit.ChatTarget, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d|%s", to.ChatID, to.ThreadID, text)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) allow(key string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict the soonest-expiring entry when full.
	for len(s.dedup) >= dedupMaxEntries {
		var minKey string
		var minT time.Time
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	return true
}
