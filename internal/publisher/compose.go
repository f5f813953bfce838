package publisher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxShortText is the length cap of a composed message.
	MaxShortText = 250
	// MinURLReserve is the room always kept for the link line.
	MinURLReserve = 24
)

// ComposeShortText fits text plus a newline and url into MaxShortText runes,
// cutting text with a trailing "…" when needed. Only a url longer than the
// cap on its own can push the result past it.
func ComposeShortText(text, url string) string {
	reserve := max(MinURLReserve, utf8.RuneCountInString(url)+1)
	budget := max(MaxShortText-reserve, 0)

	t := strings.TrimSpace(text)
	switch {
	case utf8.RuneCountInString(t) <= budget:
	case budget == 0:
		t = ""
	default:
		cut := []rune(t)[:budget-1]
		t = strings.TrimRightFunc(string(cut), unicode.IsSpace) + "…"
	}
	return t + "\n" + url
}
