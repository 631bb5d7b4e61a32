package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortIsUntouched(t *testing.T) {
	t.Parallel()
	in := "✅ **ADDED TO ROSTER** ✅\n**#42** - Jane"
	got := splitText(in, textLimit)
	if len(got) != 1 || got[0] != in {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 7)
	in := strings.Join([]string{line, line, line, line}, "\n")
	got := splitText(in, 16)
	for _, chunk := range got {
		if utf8.RuneCountInString(chunk) > 16 {
			t.Fatalf("chunk too long: %q", chunk)
		}
		if strings.HasPrefix(chunk, "\n") || strings.HasSuffix(chunk, "\n") {
			t.Fatalf("chunk has stray newline: %q", chunk)
		}
	}
	if strings.Join(got, "\n") != in {
		t.Fatalf("rejoined chunks differ: %q", got)
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("❌", 10)
	got := splitText(in, 4)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (%q)", len(got), got)
	}
	if got[2] != "❌❌" {
		t.Fatalf("last chunk = %q", got[2])
	}
}
