package decorate

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

func testRules() Rules {
	r := DefaultRules()
	r.Enabled = true
	return r
}

func TestDefaultRulesDecorate(t *testing.T) {
	t.Parallel()
	d := New(DefaultRules(), seeded())
	if got := d.Decide("we are ACTIVATED"); len(got) != 5 {
		t.Fatalf("Decide with defaults = %v, want the full sequence", got)
	}
}

func seeded() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestDecideSequences(t *testing.T) {
	t.Parallel()
	d := New(testRules(), seeded())
	full := DefaultRules().Sequences[0].Emojis

	tests := []struct {
		text string
		want int
	}{
		{"Account ACTIVATED!", len(full)},
		{"please activate it", len(full) - 1},
		{"nothing to see", 0},
	}
	for _, tc := range tests {
		got := d.Decide(tc.text)
		if len(got) != tc.want {
			t.Fatalf("Decide(%q) = %v, want %d emojis", tc.text, got, tc.want)
		}
	}
}

func TestDecideWordMatch(t *testing.T) {
	t.Parallel()
	d := New(testRules(), seeded())

	for _, text := range []string{"hi Madi!", "(madi)", "is madi parsons here"} {
		if got := d.Decide(text); len(got) == 0 {
			t.Fatalf("Decide(%q) returned nothing", text)
		}
	}
	for _, text := range []string{"madison square", "nomadic"} {
		if got := d.Decide(text); got != nil {
			t.Fatalf("Decide(%q) = %v, want nil", text, got)
		}
	}
}

func TestRandomPickBounds(t *testing.T) {
	t.Parallel()
	rules := Rules{
		Enabled: true,
		Random: []RandomRule{{
			Name:  "r",
			Words: []string{"go"},
			Pool:  [][]string{{"a"}, {"b"}, {"c"}, {"d"}},
			Min:   2,
			Max:   3,
		}},
	}
	d := New(rules, seeded())
	for range 200 {
		got := d.Decide("go")
		if len(got) < 2 || len(got) > 3 {
			t.Fatalf("picked %d entries: %v", len(got), got)
		}
		seen := map[string]bool{}
		for _, e := range got {
			if seen[e] {
				t.Fatalf("duplicate pick in %v", got)
			}
			seen[e] = true
		}
	}
}

func TestRandomMultiEmojiEntryStaysTogether(t *testing.T) {
	t.Parallel()
	rules := Rules{
		Enabled: true,
		Random: []RandomRule{{
			Name: "r", Words: []string{"yes"},
			Pool: [][]string{{"🇾", "🇪", "🇸"}},
			Min:  1, Max: 1,
		}},
	}
	got := New(rules, seeded()).Decide("yes")
	if len(got) != 3 || got[0] != "🇾" || got[2] != "🇸" {
		t.Fatalf("got %v", got)
	}
}

func TestRandomActivatedAndBonus(t *testing.T) {
	t.Parallel()
	base := testRules()
	base.Random[0].Min, base.Random[0].Max = 1, 1

	act := base
	act.Random = []RandomRule{base.Random[0]}
	act.Random[0].ActivatedChance = 1
	act.Random[0].BonusChance = 1
	got := New(act, seeded()).Decide("madi")
	full := base.Sequences[0].Emojis
	if len(got) != 1+len(full) || got[len(got)-1] != full[len(full)-1] {
		t.Fatalf("activated: got %v", got)
	}

	bonus := base
	bonus.Random = []RandomRule{base.Random[0]}
	bonus.Random[0].ActivatedChance = 0
	bonus.Random[0].BonusChance = 1
	got = New(bonus, seeded()).Decide("madi")
	if len(got) != 2 || got[1] != "🔪" {
		t.Fatalf("bonus: got %v", got)
	}

	plain := base
	plain.Random = []RandomRule{base.Random[0]}
	plain.Random[0].ActivatedChance = 0
	plain.Random[0].BonusChance = 0
	if got = New(plain, seeded()).Decide("madi"); len(got) != 1 {
		t.Fatalf("plain: got %v", got)
	}
}

func TestDisabledAndBots(t *testing.T) {
	t.Parallel()
	off := DefaultRules()
	off.Enabled = false
	if got := New(off, seeded()).Decide("activated"); got != nil {
		t.Fatalf("disabled rules reacted: %v", got)
	}
	d := New(testRules(), seeded())
	if got := d.DecideMessage(kit.Message{Text: "activated", FromBot: true}); got != nil {
		t.Fatalf("bot message reacted: %v", got)
	}
	if got := d.DecideMessage(kit.Message{Text: "activated"}); got == nil {
		t.Fatal("user message got no reaction")
	}
}

func TestSetRules(t *testing.T) {
	t.Parallel()
	d := New(Rules{}, seeded())
	if d.Decide("activated") != nil {
		t.Fatal("empty rules reacted")
	}
	d.SetRules(testRules())
	if d.Decide("activated") == nil {
		t.Fatal("new rules not applied")
	}
}

type fakeReactor struct {
	mu    sync.Mutex
	calls []kit.MessageRef
	err   error
}

func (f *fakeReactor) React(ctx context.Context, ref kit.MessageRef, emojis []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	return f.err
}

func (f *fakeReactor) Calls() []kit.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.MessageRef(nil), f.calls...)
}

func TestServe(t *testing.T) {
	t.Parallel()
	d := New(testRules(), seeded())
	r := &fakeReactor{err: errors.New("REACTION_INVALID")}
	in := make(chan kit.Update, 4)
	in <- kit.Update{Message: &kit.Message{ID: 1, ChatID: 10, Text: "activated"}}
	in <- kit.Update{}
	in <- kit.Update{Message: &kit.Message{ID: 2, ChatID: 10, Text: "hello"}}
	in <- kit.Update{Message: &kit.Message{ID: 3, ChatID: 10, Text: "activate"}}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Serve(ctx, in, r, logx.Nop()); err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	calls := r.Calls()
	if len(calls) != 2 || calls[0].MessageID != 1 || calls[1].MessageID != 3 {
		t.Fatalf("react calls = %+v", calls)
	}
}
