package rss

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

// DefaultFeeds are polled when the configuration names none.
var DefaultFeeds = []string{
	"https://www.espn.com/espn/rss/news",
	"https://www.skysports.com/rss/12040",
	"https://feeds.bbci.co.uk/sport/football/rss.xml",
	"https://www.fourfourtwo.com/feeds.xml",
}

// DefaultMaxAge drops entries published longer ago than this.
const DefaultMaxAge = 12 * time.Hour

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg.Feeds, nil
}

// Entry is one feed item worth looking at.
type Entry struct {
	Title        string
	URL          string
	PublishedRaw string
	PublishedAt  time.Time
	Feed         string
}

// Source polls a fixed list of feeds.
type Source struct {
	feeds  []string
	parser *gofeed.Parser
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewSource(feeds []string, maxAge time.Duration, logger *slog.Logger) *Source {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		maxAge: maxAge,
		now:    time.Now,
		logger: logger,
	}
}

// Fetch downloads every feed in order. A feed that fails is logged and
// skipped. Entries older than the max age are dropped; entries without a
// parseable date are stamped with the current time.
func (s *Source) Fetch(ctx context.Context) []Entry {
	var entries []Entry
	ok := 0

	for _, url := range s.feeds {
		if ctx.Err() != nil {
			break
		}
		feed, err := s.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			s.logger.Warn("error parsing RSS", "feed", url, "error", err)
			continue
		}
		ok++

		now := s.now()
		kept := 0
		for _, item := range feed.Items {
			e, fresh := s.entry(url, item, now)
			if !fresh {
				continue
			}
			entries = append(entries, e)
			kept++
		}
		s.logger.Debug("loaded feed", "feed", url, "items", len(feed.Items), "fresh", kept)
	}

	s.logger.Info("processed RSS feeds", "ok", ok, "total", len(s.feeds), "entries", len(entries))
	return entries
}

func (s *Source) entry(feedURL string, item *gofeed.Item, now time.Time) (Entry, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return Entry{}, false
	}

	published := now
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
		if now.Sub(published) > s.maxAge {
			return Entry{}, false
		}
	}

	return Entry{
		Title:        strings.TrimSpace(item.Title),
		URL:          link,
		PublishedRaw: item.Published,
		PublishedAt:  published,
		Feed:         feedURL,
	}, true
}
