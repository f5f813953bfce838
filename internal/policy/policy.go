// Package policy decides which scored articles get published: immediately
// after scoring, or in the per-cycle batch pass.
package policy

import (
	"math/rand/v2"
	"time"

	"github.com/deusflow/sportsdesk/internal/news"
)

// Thresholds are inclusive lower bounds on a judgment. Uniqueness is an
// exact match.
type Thresholds struct {
	Proximity  float64 `yaml:"proximity"`
	Freshness  int     `yaml:"freshness"`
	Impact     int     `yaml:"impact"`
	Uniqueness int     `yaml:"uniqueness"`
}

// Met reports whether s passes every bound. Unscored never passes.
func (t Thresholds) Met(s news.Scores) bool {
	if !s.Scored {
		return false
	}
	return s.Freshness >= t.Freshness &&
		s.Impact >= t.Impact &&
		s.Uniqueness == t.Uniqueness &&
		s.Proximity >= t.Proximity
}

// Config is the publishing policy.
type Config struct {
	DailyQuota int        `yaml:"daily_quota"`
	Instant    Thresholds `yaml:"instant"`
	Batch      Thresholds `yaml:"batch"`
	ImpactTier int        `yaml:"impact_tier"`
}

// DefaultConfig returns the stock policy: 25 posts a day, instant at
// freshness 8 / impact 7 / unique / proximity 0.8, batch at freshness 6.
func DefaultConfig() Config {
	return Config{
		DailyQuota: 25,
		Instant:    Thresholds{Proximity: 0.8, Freshness: 8, Impact: 7, Uniqueness: 1},
		Batch:      Thresholds{Proximity: 0.8, Freshness: 6, Impact: 0, Uniqueness: 1},
		ImpactTier: 7,
	}
}

// Instant is the instant-publish predicate on its own.
func Instant(s news.Scores, t Thresholds) bool {
	return t.Met(s)
}

// ShouldPublishInstant applies the predicate only while today's post count
// is below the quota.
func ShouldPublishInstant(s news.Scores, postedToday int, cfg Config) bool {
	if postedToday >= cfg.DailyQuota {
		return false
	}
	return Instant(s, cfg.Instant)
}

// Remaining is the quota left for today.
func Remaining(postedToday int, cfg Config) int {
	return max(0, cfg.DailyQuota-postedToday)
}

// SelectBatch picks article IDs for the batch pass. High-impact candidates
// are exhausted before any low-impact one is drawn; within a tier the draw is
// uniform. The result never exceeds the remaining quota.
func SelectBatch(candidates []news.Article, postedToday int, cfg Config, rng *rand.Rand) []int64 {
	remaining := Remaining(postedToday, cfg)
	if remaining == 0 {
		return nil
	}

	var high, low []news.Article
	for _, a := range candidates {
		if a.Posted || !cfg.Batch.Met(a.Scores) {
			continue
		}
		if a.Scores.Impact >= cfg.ImpactTier {
			high = append(high, a)
		} else {
			low = append(low, a)
		}
	}

	selected := make([]int64, 0, min(remaining, len(high)+len(low)))
	for _, a := range sample(high, remaining, rng) {
		selected = append(selected, a.ID)
	}
	remaining -= len(selected)
	if remaining > 0 {
		for _, a := range sample(low, remaining, rng) {
			selected = append(selected, a.ID)
		}
	}
	return selected
}

func sample(pool []news.Article, k int, rng *rand.Rand) []news.Article {
	k = min(k, len(pool))
	if k == 0 {
		return nil
	}
	out := make([]news.Article, len(pool))
	copy(out, pool)
	// partial Fisher-Yates: the first k slots end up a uniform k-subset
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:k]
}

// NewRand returns the batch sampler. A zero seed draws from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
