package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnscored(t *testing.T) {
	s := Unscored()
	assert.False(t, s.Scored)
	assert.Equal(t, float64(Unset), s.Proximity)
	assert.Equal(t, Unset, s.Freshness)
	assert.Equal(t, Unset, s.Impact)
	assert.Equal(t, Unset, s.Uniqueness)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2025, time.March, 10, 1, 30, 0, 0, loc)

	start, end := DayBounds(ts)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, loc), end)

	// 23:00 UTC on the 9th is already the 10th in UTC+3.
	assert.True(t, SameDay(time.Date(2025, time.March, 9, 23, 0, 0, 0, time.UTC), ts))
	assert.False(t, SameDay(time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC), ts))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("abcdef", 3))
	assert.Equal(t, "ab", Prefix("ab", 3))
	assert.Equal(t, "Mbap", Prefix("Mbappé scores", 4))
	assert.Equal(t, "Mbappé", Prefix("Mbappé scores", 6))
	assert.Equal(t, "", Prefix("x", 0))
}

func TestJudgedAtFallsBackToReceived(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewArticle("https://x", "t", "feed", "", time.Time{}, now)
	assert.Equal(t, now, a.JudgedAt())

	pub := now.Add(-time.Hour)
	a.PublishedAt = pub
	assert.Equal(t, pub, a.JudgedAt())
}

func TestPostHistoryLine(t *testing.T) {
	assert.Equal(t, "caption", Post{Caption: "caption", Title: "title"}.HistoryLine())
	assert.Equal(t, "title", Post{Title: "title"}.HistoryLine())
}

func TestOutputModeValid(t *testing.T) {
	for _, m := range []OutputMode{OutputTelegram, OutputTwitter, OutputBoth, OutputNone} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, OutputMode("fax").Valid())
}
