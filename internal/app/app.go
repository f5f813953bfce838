// Package app wires the configured components into the poll pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/deusflow/sportsdesk/internal/cache"
	"github.com/deusflow/sportsdesk/internal/config"
	"github.com/deusflow/sportsdesk/internal/gemini"
	"github.com/deusflow/sportsdesk/internal/llm"
	"github.com/deusflow/sportsdesk/internal/logger"
	"github.com/deusflow/sportsdesk/internal/metrics"
	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/openai"
	"github.com/deusflow/sportsdesk/internal/policy"
	"github.com/deusflow/sportsdesk/internal/publisher"
	"github.com/deusflow/sportsdesk/internal/ratelimit"
	"github.com/deusflow/sportsdesk/internal/rss"
	"github.com/deusflow/sportsdesk/internal/scoring"
	"github.com/deusflow/sportsdesk/internal/scraper"
	"github.com/deusflow/sportsdesk/internal/storage"
	"github.com/deusflow/sportsdesk/internal/telegram"
	"github.com/deusflow/sportsdesk/internal/twitter"
)

const scrapeTimeout = 15 * time.Second

// App owns every long-lived component built from a Config.
type App struct {
	cfg      *config.Config
	store    storage.Store
	limiter  *ratelimit.Limiter
	pipeline *Pipeline
	runner   *Runner

	closers []io.Closer
}

// New builds the application. Each component logs through its own
// logger.Component. On error everything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store, err = openStore(ctx, cfg.Storage, logger.Component("storage")); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	completer, err := openCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, completer)

	a.limiter = ratelimit.New(cfg.LLM.Provider, cfg.LLM.RequestsPerMinute, cfg.LLM.DailyBudget, logger.Component("ratelimit"))
	oracle := llm.NewOracle(completer, a.limiter, logger.Component("llm"))

	var captioner publisher.Captioner = oracle
	captionCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if captionCache != nil {
		a.closers = append(a.closers, captionCache)
		captioner = publisher.NewCachingCaptioner(oracle, captionCache, cfg.Cache.TTL, a.limiter, logger.Component("caption_cache"))
	}

	channels := buildChannels(cfg)
	pub := publisher.New(a.store, captioner, channels, time.Now, logger.Component("publisher"))

	scorer := scoring.New(oracle, a.store, logger.Component("scoring"),
		scoring.WithContentPrefix(cfg.Scoring.ContentPrefix),
		scoring.WithWorkers(cfg.Scoring.Workers))

	a.pipeline = NewPipeline(
		rss.NewSource(cfg.Feeds, cfg.FeedMaxAge, logger.Component("rss")),
		scraper.New(scrapeTimeout),
		a.store,
		scorer,
		pub,
		Options{
			Policy:           cfg.Policy,
			MinContentChars:  cfg.MinContentChars,
			MaxFetchAttempts: cfg.MaxFetchAttempts,
			RescoreUnscored:  cfg.RescoreUnscored,
			Parallel:         cfg.Scoring.Workers > 1,
			Location:         cfg.Location(),
			Rand:             policy.NewRand(cfg.Seed),
		},
		logger.Component("pipeline"),
	)
	a.runner = NewRunner(a.pipeline, cfg.PollInterval, logger.Component("runner"))

	logger.Info("application ready",
		"storage", cfg.Storage.Driver,
		"llm", cfg.LLM.Provider,
		"cache", cfg.Cache.Driver,
		"output_mode", cfg.OutputMode,
		"channels", len(channels),
		"feeds", len(cfg.Feeds))
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.DSN, log)
	case "badger":
		return storage.NewBadgerStore(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenReadOnlyStore opens the configured store for reporting. Badger is
// opened read-only and cannot share its directory with a running poller;
// query the monitor's /stats endpoint in that case.
func OpenReadOnlyStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == "badger" {
		return storage.OpenBadgerReadOnly(cfg.BadgerPath)
	}
	return openStore(ctx, cfg, logger.Component("storage"))
}

type closingCompleter interface {
	llm.Completer
	io.Closer
}

func openCompleter(ctx context.Context, cfg config.LLMConfig) (closingCompleter, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewClient(ctx, cfg.APIKey, cfg.Model, cfg.Timeout)
	case "openai":
		return openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// openCache returns nil when caching is off.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(time.Hour), nil
	case "redis":
		return cache.NewRedis(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func buildChannels(cfg *config.Config) []publisher.Channel {
	var tg, tw publisher.Channel
	if cfg.OutputMode == news.OutputTelegram || cfg.OutputMode == news.OutputBoth {
		tg = telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.BaseURL, logger.Component("telegram"))
	}
	if cfg.OutputMode == news.OutputTwitter || cfg.OutputMode == news.OutputBoth {
		tw = twitter.NewClient(cfg.Twitter.BearerToken, cfg.Twitter.BaseURL, logger.Component("twitter"))
	}
	return publisher.SelectChannels(cfg.OutputMode, tg, tw)
}

// Run polls until ctx ends.
func (a *App) Run(ctx context.Context) error {
	return a.runner.Run(ctx)
}

// RunOnce runs a single cycle.
func (a *App) RunOnce(ctx context.Context) CycleReport {
	return a.pipeline.RunCycle(ctx)
}

// Summary describes the current day.
type Summary struct {
	Day        string           `json:"day"`
	Posted     int              `json:"posted"`
	Remaining  int              `json:"remaining"`
	Candidates int              `json:"candidates"`
	LLM        *ratelimit.Stats `json:"llm,omitempty"`
}

// Summarize reads today's counts straight from store; it needs no LLM or
// channel clients.
func Summarize(ctx context.Context, store storage.Store, cfg *config.Config, now time.Time) (Summary, error) {
	day := now.In(cfg.Location())
	posted, err := store.CountTodayPosts(ctx, day)
	if err != nil {
		return Summary{}, err
	}
	candidates, err := store.TodayUnpostedScored(ctx, day)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Day:        day.Format(time.DateOnly),
		Posted:     posted,
		Remaining:  policy.Remaining(posted, cfg.Policy),
		Candidates: len(candidates),
	}, nil
}

// Today is Summarize plus the LLM budget counters.
func (a *App) Today(ctx context.Context) (Summary, error) {
	s, err := Summarize(ctx, a.store, a.cfg, time.Now())
	if err != nil {
		return Summary{}, err
	}
	stats := a.limiter.GetStats()
	s.LLM = &stats
	return s, nil
}

// Stats merges the process counters with today's summary.
func (a *App) Stats(ctx context.Context) map[string]any {
	stats := metrics.Global.GetStats()
	if s, err := a.Today(ctx); err != nil {
		stats["today_error"] = err.Error()
	} else {
		stats["today"] = s
	}
	return stats
}

// Close releases everything in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
