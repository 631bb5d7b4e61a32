package relay

import (
	"strconv"
	"strings"

	kit "rosterbot/internal/transport"
)

type headline struct {
	glyph string
	text  string
}

var headlines = map[EventType]headline{
	EventAdded:   {glyph: "✅", text: "ADDED TO ROSTER"},
	EventRemoved: {glyph: "❌", text: "REMOVED FROM ROSTER"},
	EventOther:   {glyph: "ℹ️", text: "ROSTER CHANGE"},
}

// Format renders ev as
//
//	{glyph} **{headline}** {glyph}
//	**#{number}** - {name}
func Format(ev RosterEvent) string {
	h, ok := headlines[ev.Type]
	if !ok {
		h = headlines[EventOther]
	}
	var b strings.Builder
	b.WriteString(h.glyph)
	b.WriteString(" **")
	b.WriteString(h.text)
	b.WriteString("** ")
	b.WriteString(h.glyph)
	b.WriteString("\n**#")
	b.WriteString(strconv.FormatInt(ev.Number, 10))
	b.WriteString("** - ")
	b.WriteString(ev.Name)
	return b.String()
}

func Message(target kit.ChatTarget, ev RosterEvent) OutboundMessage {
	return OutboundMessage{Target: target, Text: Format(ev)}
}
