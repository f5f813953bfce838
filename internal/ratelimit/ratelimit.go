package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned once the daily call budget is spent.
var ErrBudgetExhausted = errors.New("daily AI call budget exhausted")

// Limiter paces calls to a language model and caps how many are made per day.
type Limiter struct {
	pace *rate.Limiter

	mu          sync.Mutex
	name        string
	count       int
	maxDaily    int
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
	now         func() time.Time
	logger      *slog.Logger
}

// New builds a limiter allowing perMinute calls a minute (0 means unpaced)
// and maxDaily calls a day (0 means unlimited).
func New(name string, perMinute, maxDaily int, logger *slog.Logger) *Limiter {
	pace := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		pace = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		pace:     pace,
		name:     name,
		maxDaily: maxDaily,
		now:      time.Now,
		logger:   logger,
	}
	l.resetTime = l.now().Add(24 * time.Hour)
	return l
}

// Acquire waits for the pacer and charges one call against the budget.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.use(); err != nil {
		return err
	}
	return l.pace.Wait(ctx)
}

func (l *Limiter) use() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()

	if l.maxDaily > 0 && l.count >= l.maxDaily {
		l.logger.Warn("AI budget reached", "client", l.name, "used", l.count, "limit", l.maxDaily)
		return ErrBudgetExhausted
	}
	l.count++
	l.cacheMisses++
	l.logger.Debug("AI usage", "client", l.name, "used", l.count, "limit", l.maxDaily)
	return nil
}

// RecordCacheHit counts a call that a cache answered instead.
func (l *Limiter) RecordCacheHit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheHits++
}

// Stats is a snapshot of the limiter counters.
type Stats struct {
	Client       string    `json:"client"`
	Used         int       `json:"used"`
	Limit        int       `json:"limit"`
	CacheHits    int       `json:"cache_hits"`
	CacheMisses  int       `json:"cache_misses"`
	CacheHitRate float64   `json:"cache_hit_rate"`
	ResetTime    time.Time `json:"reset_time"`
}

// GetStats returns the current counters.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Client:      l.name,
		Used:        l.count,
		Limit:       l.maxDaily,
		CacheHits:   l.cacheHits,
		CacheMisses: l.cacheMisses,
		ResetTime:   l.resetTime,
	}
	if total := l.cacheHits + l.cacheMisses; total > 0 {
		s.CacheHitRate = float64(l.cacheHits) / float64(total) * 100
	}
	return s
}

// checkReset starts a new day once the reset time has passed.
func (l *Limiter) checkReset() {
	now := l.now()
	if now.Before(l.resetTime) {
		return
	}
	l.logger.Info("resetting AI usage counters",
		"client", l.name, "used", l.count, "cache_hits", l.cacheHits)
	l.count = 0
	l.cacheHits = 0
	l.cacheMisses = 0
	l.resetTime = now.Add(24 * time.Hour)
}
