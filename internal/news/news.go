package news

import (
	"time"
	"unicode/utf8"
)

// Reason tags why a post was published.
type Reason string

const (
	ReasonInstant   Reason = "instant"
	ReasonNonUrgent Reason = "non-urgent"
)

// OutputMode selects the channels a post is dispatched to.
type OutputMode string

const (
	OutputTelegram OutputMode = "telegram"
	OutputTwitter  OutputMode = "twitter"
	OutputBoth     OutputMode = "both"
	OutputNone     OutputMode = "none"
)

// Valid reports whether m is one of the known output modes.
func (m OutputMode) Valid() bool {
	switch m {
	case OutputTelegram, OutputTwitter, OutputBoth, OutputNone:
		return true
	}
	return false
}

// Unset is the stored value of a score that has not been judged.
const Unset = -1

// Scores is the judgment of a single article.
// Scored is false when the oracle was never asked or failed; the numeric
// fields then hold Unset.
type Scores struct {
	Scored     bool    `json:"scored"`
	Proximity  float64 `json:"proximity"`
	Freshness  int     `json:"freshness"`
	Impact     int     `json:"impact"`
	Uniqueness int     `json:"uniqueness"`
}

// Unscored returns the unknown judgment.
func Unscored() Scores {
	return Scores{
		Proximity:  Unset,
		Freshness:  Unset,
		Impact:     Unset,
		Uniqueness: Unset,
	}
}

// Article is a feed item tracked by URL.
type Article struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	PublishedRaw   string    `json:"published_raw"`
	PublishedAt    time.Time `json:"published_at"`
	ReceivedAt     time.Time `json:"received_at"`
	Content        string    `json:"content"`
	ContentFetched bool      `json:"content_fetched"`
	FetchAttempts  int       `json:"fetch_attempts"`
	Scores         Scores    `json:"scores"`
	Virality       int       `json:"virality"` // reserved, never judged
	Posted         bool      `json:"posted"`
}

// NewArticle builds an unscored, unposted article received at now.
func NewArticle(url, title, source, publishedRaw string, publishedAt, now time.Time) Article {
	return Article{
		URL:          url,
		Title:        title,
		Source:       source,
		PublishedRaw: publishedRaw,
		PublishedAt:  publishedAt,
		ReceivedAt:   now,
		Scores:       Unscored(),
		Virality:     Unset,
	}
}

// JudgedAt is the time the oracle is told the article arrived: the feed
// timestamp when present, otherwise the time it was stored.
func (a Article) JudgedAt() time.Time {
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt
	}
	return a.ReceivedAt
}

// Post is a published (or attempted) social message for an article.
type Post struct {
	ID                int64     `json:"id"`
	ArticleID         int64     `json:"article_id"`
	Title             string    `json:"title"`
	Caption           string    `json:"caption"`
	ShortText         string    `json:"short_text"`
	Reason            Reason    `json:"reason"`
	TelegramPublished bool      `json:"telegram_published"`
	TwitterPublished  bool      `json:"twitter_published"`
	CreatedAt         time.Time `json:"created_at"`
}

// HistoryLine is what the uniqueness judgment compares against.
func (p Post) HistoryLine() string {
	if p.Caption != "" {
		return p.Caption
	}
	return p.Title
}

// ClassifyRequest is sent to the judgment oracle for topical scoring.
type ClassifyRequest struct {
	Title         string
	ContentPrefix string
	Now           time.Time
	ReceivedAt    time.Time
}

// Classification is the oracle's topical judgment.
type Classification struct {
	Relevant  bool    `json:"soccer_relevance"`
	Proximity float64 `json:"proximity"`
	Freshness int     `json:"freshness"`
	Impact    int     `json:"impact"`
}

// DayBounds returns the start of t's calendar day and the start of the next
// one, both in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// SameDay reports whether a falls on day's calendar day in day's location.
func SameDay(a, day time.Time) bool {
	start, end := DayBounds(day)
	a = a.In(day.Location())
	return !a.Before(start) && a.Before(end)
}

// Prefix returns at most n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
