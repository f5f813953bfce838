package metrics

import (
	"sync"
	"time"
)

// Metrics is the health snapshot served on /health and /stats.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesProcessed  int64
	DuplicatesFiltered int64
	ScoredOK           int64
	ScoreFailures      int64
	MessagesSent       int64

	// Timings
	LastCycleTime    time.Duration
	AverageCycleTime time.Duration
	TotalCycleTime   time.Duration
	CycleCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementArticlesProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesProcessed++
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementScored(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.ScoredOK++
	} else {
		m.ScoreFailures++
	}
}

func (m *Metrics) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleTime = duration
	m.TotalCycleTime += duration
	m.CycleCount++
	m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.CycleCount)
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"articles_processed":    m.ArticlesProcessed,
		"duplicates_filtered":   m.DuplicatesFiltered,
		"scored_ok":             m.ScoredOK,
		"score_failures":        m.ScoreFailures,
		"messages_sent":         m.MessagesSent,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"cycles":                m.CycleCount,
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
