// Package decorate picks emoji reactions for chat messages.
package decorate

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

type Decorator struct {
	mu    sync.Mutex
	rules Rules
	rng   *rand.Rand
}

// New returns a decorator. A nil rng seeds one from the clock.
func New(rules Rules, rng *rand.Rand) *Decorator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Decorator{rules: rules, rng: rng}
}

// SetRules swaps the rule set; used on config reload.
func (d *Decorator) SetRules(r Rules) {
	d.mu.Lock()
	d.rules = r
	d.mu.Unlock()
}

func (d *Decorator) Rules() Rules {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rules
}

// Decide returns the reactions for text, or nil. Sequence rules are tried
// before random ones; the first match wins.
func (d *Decorator) Decide(text string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.rules.Enabled {
		return nil
	}
	lower := strings.ToLower(text)

	for _, s := range d.rules.Sequences {
		if containsAny(lower, s.Contains) {
			return append([]string(nil), s.Emojis...)
		}
	}
	for _, r := range d.rules.Random {
		if matchWord(lower, r.Words) || containsAny(lower, r.Contains) {
			return d.pick(r)
		}
	}
	return nil
}

// DecideMessage is Decide for incoming messages; bots get nothing.
func (d *Decorator) DecideMessage(m kit.Message) []string {
	if m.FromBot || strings.TrimSpace(m.Text) == "" {
		return nil
	}
	return d.Decide(m.Text)
}

// pick runs with d.mu held.
func (d *Decorator) pick(r RandomRule) []string {
	lo, hi := max(r.Min, 0), min(r.Max, len(r.Pool))
	if lo > hi {
		lo = hi
	}
	n := lo
	if hi > lo {
		n += d.rng.IntN(hi - lo + 1)
	}

	var out []string
	for _, idx := range d.rng.Perm(len(r.Pool))[:n] {
		out = append(out, r.Pool[idx]...)
	}

	if r.ActivatedChance > 0 && d.rng.Float64() < r.ActivatedChance {
		out = append(out, d.rules.sequence(d.rules.Activated)...)
	} else if r.BonusChance > 0 && d.rng.Float64() < r.BonusChance {
		out = append(out, r.Bonus...)
	}
	return out
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func matchWord(lower string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, f := range strings.Fields(lower) {
		w := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) })
		for _, want := range words {
			if w == strings.ToLower(want) {
				return true
			}
		}
	}
	return false
}

// Serve reacts to every update from in until ctx ends or in is closed.
// React failures are logged and skipped.
func (d *Decorator) Serve(ctx context.Context, in <-chan kit.Update, r kit.Reactor, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	for {
		var up kit.Update
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-in:
			if !ok {
				return nil
			}
			up = u
		}
		if up.Message == nil {
			continue
		}
		emojis := d.DecideMessage(*up.Message)
		if len(emojis) == 0 {
			continue
		}
		if err := r.React(ctx, up.Message.Ref(), emojis); err != nil {
			log.Warn("react failed",
				logx.Int64("chat_id", up.Message.ChatID),
				logx.Int("message_id", up.Message.ID),
				logx.Err(err),
			)
			continue
		}
		log.Debug("reacted", logx.Int64("chat_id", up.Message.ChatID), logx.Any("emojis", emojis))
	}
}
