// Package scoring asks the judgment oracle about fetched articles and stores
// the resulting scores.
package scoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/sportsdesk/internal/metrics"
	"github.com/deusflow/sportsdesk/internal/news"
)

// DefaultContentPrefix is how much of the body the classifier sees.
const DefaultContentPrefix = 500

// Judge is the judgment oracle.
type Judge interface {
	Classify(ctx context.Context, req news.ClassifyRequest) (news.Classification, error)
	Uniqueness(ctx context.Context, title string, history []string) (int, error)
}

// ScoreWriter persists a judgment.
type ScoreWriter interface {
	UpdateScores(ctx context.Context, url string, s news.Scores) error
}

type Input struct {
	URL        string
	Title      string
	Content    string
	History    []string
	ReceivedAt time.Time
}

type Scorer struct {
	judge         Judge
	store         ScoreWriter
	contentPrefix int
	workers       int
	now           func() time.Time
	logger        *slog.Logger

	locks keyedMutex
}

type Option func(*Scorer)

func WithContentPrefix(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.contentPrefix = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Scorer) { s.workers = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

func New(judge Judge, store ScoreWriter, logger *slog.Logger, opts ...Option) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scorer{
		judge:         judge,
		store:         store,
		contentPrefix: DefaultContentPrefix,
		workers:       1,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score judges one article. A failed judgment returns news.Unscored() and
// leaves the store untouched; a failed write is logged and the scores are
// still returned.
func (s *Scorer) Score(ctx context.Context, in Input) news.Scores {
	start := time.Now()
	defer func() { metrics.ObserveScoring(time.Since(start)) }()

	c, err := s.judge.Classify(ctx, news.ClassifyRequest{
		Title:         in.Title,
		ContentPrefix: news.Prefix(in.Content, s.contentPrefix),
		Now:           s.now(),
		ReceivedAt:    in.ReceivedAt,
	})
	if err != nil {
		s.logger.Warn("classification failed", "url", in.URL, "error", err)
		metrics.RecordScore(false)
		return news.Unscored()
	}

	u, err := s.judge.Uniqueness(ctx, in.Title, in.History)
	if err != nil {
		s.logger.Warn("uniqueness check failed", "url", in.URL, "error", err)
		metrics.RecordScore(false)
		return news.Unscored()
	}

	scores := news.Scores{
		Scored:     true,
		Proximity:  c.Proximity,
		Freshness:  c.Freshness,
		Impact:     c.Impact,
		Uniqueness: u,
	}
	metrics.RecordScore(true)

	unlock := s.locks.lock(in.URL)
	err = s.store.UpdateScores(ctx, in.URL, scores)
	unlock()
	if err != nil {
		s.logger.Error("failed to store scores", "url", in.URL, "error", err)
	}

	s.logger.Debug("scored",
		"url", in.URL,
		"relevant", c.Relevant,
		"proximity", scores.Proximity,
		"freshness", scores.Freshness,
		"impact", scores.Impact,
		"uniqueness", scores.Uniqueness)
	return scores
}

// ScoreAll judges inputs concurrently against one shared history and returns
// scores in input order. Each input's own History is replaced by history.
func (s *Scorer) ScoreAll(ctx context.Context, inputs []Input, history []string) []news.Scores {
	out := make([]news.Scores, len(inputs))
	if s.workers <= 1 {
		for i, in := range inputs {
			in.History = history
			out[i] = s.Score(ctx, in)
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, in := range inputs {
		in.History = history
		g.Go(func() error {
			out[i] = s.Score(gctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
