package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "articles_total",
			Help:      "Feed entries seen, by ingestion outcome",
		},
		[]string{"outcome"},
	)

	ScoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "scores_total",
			Help:      "Oracle judgments, by status",
		},
		[]string{"status"},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sportsdesk",
			Name:      "scoring_duration_seconds",
			Help:      "Time spent judging one article",
			Buckets:   prometheus.DefBuckets,
		},
	)

	PostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "posts_total",
			Help:      "Posts created, by reason",
		},
		[]string{"reason"},
	)

	ChannelSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "channel_sends_total",
			Help:      "Dispatch attempts, by channel and status",
		},
		[]string{"channel", "status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sportsdesk",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full poll cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "errors_total",
			Help:      "Errors, by operation",
		},
		[]string{"operation"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sportsdesk",
			Name:      "caption_cache_lookups_total",
			Help:      "Caption cache lookups, by result",
		},
		[]string{"result"},
	)

	PostsToday = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sportsdesk",
			Name:      "posts_today",
			Help:      "Posts created so far today",
		},
	)
)

// Ingestion outcomes.
const (
	OutcomeNew       = "new"
	OutcomeDuplicate = "duplicate"
	OutcomeShort     = "short"
	OutcomeFetchFail = "fetch_failed"
	OutcomeGaveUp    = "gave_up"
)

func RecordArticle(outcome string) {
	ArticlesTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeNew:
		Global.IncrementArticlesProcessed()
	case OutcomeDuplicate:
		Global.IncrementDuplicatesFiltered()
	}
}

func RecordScore(ok bool) {
	if ok {
		ScoresTotal.WithLabelValues("ok").Inc()
		Global.IncrementScored(true)
		return
	}
	ScoresTotal.WithLabelValues("failed").Inc()
	Global.IncrementScored(false)
}

func ObserveScoring(d time.Duration) {
	ScoringDuration.Observe(d.Seconds())
}

func RecordPost(reason string) {
	PostsTotal.WithLabelValues(reason).Inc()
	PostsToday.Inc()
}

func RecordSend(channel string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	ChannelSendsTotal.WithLabelValues(channel, status).Inc()
	if ok {
		Global.IncrementMessagesSent()
	}
}

func RecordError(operation string) {
	ErrorsTotal.WithLabelValues(operation).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObserveCycle records a finished cycle in both the histogram and the
// health snapshot.
func ObserveCycle(d time.Duration, postedToday int) {
	CycleDuration.Observe(d.Seconds())
	PostsToday.Set(float64(postedToday))
	Global.RecordProcessingTime(d)
}
