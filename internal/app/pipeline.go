package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/deusflow/sportsdesk/internal/metrics"
	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/policy"
	"github.com/deusflow/sportsdesk/internal/rss"
	"github.com/deusflow/sportsdesk/internal/scoring"
	"github.com/deusflow/sportsdesk/internal/storage"
)

type FeedSource interface {
	Fetch(ctx context.Context) []rss.Entry
}

type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type ArticleScorer interface {
	Score(ctx context.Context, in scoring.Input) news.Scores
	ScoreAll(ctx context.Context, inputs []scoring.Input, history []string) []news.Scores
}

type ArticlePublisher interface {
	Publish(ctx context.Context, a news.Article, reason news.Reason) error
}

// Options tune a Pipeline. Zero values fall back to the stock behaviour.
type Options struct {
	Policy           policy.Config
	MinContentChars  int
	MaxFetchAttempts int
	RescoreUnscored  bool
	// Parallel scores a cycle's new articles together against one history
	// snapshot instead of one at a time.
	Parallel bool
	Location *time.Location
	Rand     *rand.Rand
	Now      func() time.Time
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	ID            string
	Started       time.Time
	Duration      time.Duration
	Entries       int
	New           int
	Duplicates    int
	FetchFailures int
	ShortContent  int
	Scored        int
	ScoreFailures int
	Instant       int
	Batch         int
	PostedToday   int
	Errors        []string
}

type Pipeline struct {
	feeds     FeedSource
	fetcher   ContentFetcher
	store     storage.Store
	scorer    ArticleScorer
	publisher ArticlePublisher
	opts      Options
	logger    *slog.Logger

	mu sync.Mutex
}

func NewPipeline(feeds FeedSource, fetcher ContentFetcher, store storage.Store, scorer ArticleScorer, pub ArticlePublisher, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Policy == (policy.Config{}) {
		opts.Policy = policy.DefaultConfig()
	}
	if opts.MinContentChars <= 0 {
		opts.MinContentChars = 400
	}
	if opts.MaxFetchAttempts <= 0 {
		opts.MaxFetchAttempts = 3
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Rand == nil {
		opts.Rand = policy.NewRand(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		feeds:     feeds,
		fetcher:   fetcher,
		store:     store,
		scorer:    scorer,
		publisher: pub,
		opts:      opts,
		logger:    logger,
	}
}

func (p *Pipeline) today() time.Time {
	return p.opts.Now().In(p.opts.Location)
}

// RunCycle runs the ingestion phase then the batch phase. Each phase
// recovers on its own; a failing phase never stops the other. Calls are
// serialised.
func (p *Pipeline) RunCycle(ctx context.Context) CycleReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := CycleReport{ID: uuid.NewString(), Started: time.Now()}
	log := p.logger.With("cycle_id", report.ID)
	log.Info("cycle started")

	p.phase(ctx, log, &report, "ingest", p.ingest)
	p.phase(ctx, log, &report, "batch", p.batch)

	if n, err := p.store.CountTodayPosts(ctx, p.today()); err == nil {
		report.PostedToday = n
	}
	report.Duration = time.Since(report.Started)
	metrics.ObserveCycle(report.Duration, report.PostedToday)
	if len(report.Errors) == 0 {
		metrics.Global.SetLastRun()
	} else {
		metrics.Global.SetError(strings.Join(report.Errors, "; "))
	}

	log.Info("cycle finished",
		"duration", report.Duration,
		"entries", report.Entries,
		"new", report.New,
		"scored", report.Scored,
		"instant", report.Instant,
		"batch", report.Batch,
		"posted_today", report.PostedToday,
		"errors", len(report.Errors))
	return report
}

func (p *Pipeline) phase(ctx context.Context, log *slog.Logger, report *CycleReport, name string, fn func(context.Context, *slog.Logger, *CycleReport) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("phase panicked", "phase", name, "panic", r, "stack", string(debug.Stack()))
			metrics.RecordError(name)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: panic: %v", name, r))
		}
	}()

	if err := fn(ctx, log.With("phase", name), report); err != nil {
		log.Error("phase failed", "phase", name, "error", err)
		metrics.RecordError(name)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
	}
}

// candidate is an article with usable content, ready to be judged.
type candidate struct {
	article news.Article
	// instant is false for articles that are only being re-judged
	instant bool
}

func (p *Pipeline) ingest(ctx context.Context, log *slog.Logger, report *CycleReport) error {
	entries := p.feeds.Fetch(ctx)
	report.Entries = len(entries)

	var pending []candidate
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c, ok := p.prepare(ctx, log, e, report)
		if !ok {
			continue
		}
		if p.opts.Parallel {
			pending = append(pending, c)
			continue
		}

		history, err := p.store.TodayPostCaptions(ctx, p.today())
		if err != nil {
			log.Error("failed to load post history", "error", err)
			continue
		}
		scores := p.scorer.Score(ctx, input(c.article, history))
		p.afterScore(ctx, log, report, c, scores)
	}

	if len(pending) == 0 {
		return ctx.Err()
	}

	history, err := p.store.TodayPostCaptions(ctx, p.today())
	if err != nil {
		return fmt.Errorf("load post history: %w", err)
	}
	inputs := make([]scoring.Input, len(pending))
	for i, c := range pending {
		inputs[i] = input(c.article, nil)
	}
	all := p.scorer.ScoreAll(ctx, inputs, history)
	for i, c := range pending {
		p.afterScore(ctx, log, report, c, all[i])
	}
	return ctx.Err()
}

func input(a news.Article, history []string) scoring.Input {
	return scoring.Input{
		URL:        a.URL,
		Title:      a.Title,
		Content:    a.Content,
		History:    history,
		ReceivedAt: a.JudgedAt(),
	}
}

// prepare stores a feed entry and makes sure its content is fetched. It
// reports false when the entry needs no judgment this cycle.
func (p *Pipeline) prepare(ctx context.Context, log *slog.Logger, e rss.Entry, report *CycleReport) (candidate, bool) {
	a, inserted, err := p.store.InsertArticle(ctx, news.NewArticle(e.URL, e.Title, e.Feed, e.PublishedRaw, e.PublishedAt, p.opts.Now()))
	if err != nil {
		log.Error("failed to store article", "url", e.URL, "error", err)
		return candidate{}, false
	}
	log = log.With("url", a.URL)

	if inserted {
		report.New++
		metrics.RecordArticle(metrics.OutcomeNew)
		log.Info("new article", "title", a.Title)
	} else {
		switch {
		case a.Posted:
			return p.duplicate(log, report)
		case a.ContentFetched:
			if p.opts.RescoreUnscored && !a.Scores.Scored && p.longEnough(a.Content) {
				log.Info("re-judging unscored article")
				return candidate{article: a}, true
			}
			return p.duplicate(log, report)
		case a.FetchAttempts >= p.opts.MaxFetchAttempts:
			metrics.RecordArticle(metrics.OutcomeGaveUp)
			return p.duplicate(log, report)
		}
		log.Info("retrying content fetch", "attempts", a.FetchAttempts)
	}

	content, err := p.fetcher.Fetch(ctx, a.URL)
	if err != nil {
		report.FetchFailures++
		metrics.RecordArticle(metrics.OutcomeFetchFail)
		log.Warn("content fetch failed", "error", err)
		if err := p.store.RecordFetchFailure(ctx, a.URL); err != nil {
			log.Error("failed to record fetch failure", "error", err)
		}
		return candidate{}, false
	}
	if err := p.store.UpdateContent(ctx, a.URL, content); err != nil {
		log.Error("failed to store content", "error", err)
	}
	a.Content = content
	a.ContentFetched = true

	if !p.longEnough(content) {
		report.ShortContent++
		metrics.RecordArticle(metrics.OutcomeShort)
		log.Info("content too short", "chars", utf8.RuneCountInString(strings.TrimSpace(content)))
		return candidate{}, false
	}
	return candidate{article: a, instant: true}, true
}

func (p *Pipeline) duplicate(log *slog.Logger, report *CycleReport) (candidate, bool) {
	report.Duplicates++
	metrics.RecordArticle(metrics.OutcomeDuplicate)
	log.Debug("already processed")
	return candidate{}, false
}

func (p *Pipeline) longEnough(content string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(content)) >= p.opts.MinContentChars
}

// afterScore counts the judgment and runs the instant check once.
func (p *Pipeline) afterScore(ctx context.Context, log *slog.Logger, report *CycleReport, c candidate, scores news.Scores) {
	if !scores.Scored {
		report.ScoreFailures++
		return
	}
	report.Scored++
	if !c.instant {
		return
	}

	posted, err := p.store.CountTodayPosts(ctx, p.today())
	if err != nil {
		log.Error("failed to count today's posts", "error", err)
		return
	}
	if !policy.ShouldPublishInstant(scores, posted, p.opts.Policy) {
		return
	}

	a := c.article
	a.Scores = scores
	if err := p.publisher.Publish(ctx, a, news.ReasonInstant); err != nil {
		if errors.Is(err, storage.ErrAlreadyPosted) {
			log.Debug("already posted", "url", a.URL)
			return
		}
		log.Error("instant publish failed", "url", a.URL, "error", err)
		return
	}
	report.Instant++
}

func (p *Pipeline) batch(ctx context.Context, log *slog.Logger, report *CycleReport) error {
	today := p.today()

	candidates, err := p.store.TodayUnpostedScored(ctx, today)
	if err != nil {
		return fmt.Errorf("load candidates: %w", err)
	}
	posted, err := p.store.CountTodayPosts(ctx, today)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}

	ids := policy.SelectBatch(candidates, posted, p.opts.Policy, p.opts.Rand)
	log.Info("batch selection",
		"candidates", len(candidates),
		"posted_today", posted,
		"remaining", policy.Remaining(posted, p.opts.Policy),
		"selected", len(ids))

	byID := make(map[int64]news.Article, len(candidates))
	for _, a := range candidates {
		byID[a.ID] = a
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a, ok := byID[id]
		if !ok {
			continue
		}
		if err := p.publisher.Publish(ctx, a, news.ReasonNonUrgent); err != nil {
			if errors.Is(err, storage.ErrAlreadyPosted) {
				continue
			}
			log.Error("batch publish failed", "url", a.URL, "error", err)
			continue
		}
		report.Batch++
	}
	return nil
}
