package scheduler

import (
	"sync"
	"time"
)

// historySize bounds the retained cycle results. Oldest are evicted.
const historySize = 100

// CycleResult is the outcome of one scheduler cycle.
type CycleResult struct {
	CycleID             string        `json:"cycleId"`
	Type                CycleType     `json:"type"`
	Timestamp           time.Time     `json:"timestamp"`
	Duration            time.Duration `json:"duration"`
	UsersProcessed      int           `json:"usersProcessed"`
	OpportunitiesFound  int           `json:"opportunitiesFound"`
	EngagementsExecuted int           `json:"engagementsExecuted"`
	Status              string        `json:"status"` // "completed" or "failed"
	Errors              []string      `json:"errors,omitempty"`
}

// Metrics is a read-only aggregate snapshot derived from the cycle
// history. It is never independently mutated.
type Metrics struct {
	TotalCycles           int64   `json:"totalCycles"`
	FailedCycles          int64   `json:"failedCycles"`
	TotalOpportunities    int64   `json:"totalOpportunities"`
	TotalEngagements      int64   `json:"totalEngagements"`
	AvgDurationMs         float64 `json:"avgDurationMs"`
	AvgUsersProcessed     float64 `json:"avgUsersProcessed"`
	AvgOpportunities      float64 `json:"avgOpportunities"`
	AvgEngagements        float64 `json:"avgEngagements"`
	ErrorRate             float64 `json:"errorRate"`
	EngagementSuccessRate float64 `json:"engagementSuccessRate"`
}

// Analytics aggregates performance over a requested time window.
type Analytics struct {
	Window              time.Duration `json:"window"`
	Cycles              int           `json:"cycles"`
	UsersProcessed      int           `json:"usersProcessed"`
	OpportunitiesFound  int           `json:"opportunitiesFound"`
	EngagementsExecuted int           `json:"engagementsExecuted"`
	ErrorRate           float64       `json:"errorRate"`
	EngagementRate      float64       `json:"engagementRate"`
	AvgDurationMs       float64       `json:"avgDurationMs"`
}

// Collector aggregates cycle outcomes. Rolling averages are updated
// incrementally; history is a bounded FIFO ring.
type Collector struct {
	mu sync.Mutex

	totalCycles        int64
	failedCycles       int64
	totalOpportunities int64
	totalEngagements   int64

	avgDurationMs     float64
	avgUsersProcessed float64
	avgOpportunities  float64
	avgEngagements    float64

	history []CycleResult
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record folds one cycle result into the aggregates.
func (c *Collector) Record(res CycleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalCycles++
	if res.Status != StatusCompleted {
		c.failedCycles++
	}
	c.totalOpportunities += int64(res.OpportunitiesFound)
	c.totalEngagements += int64(res.EngagementsExecuted)

	n := float64(c.totalCycles)
	c.avgDurationMs += (float64(res.Duration.Milliseconds()) - c.avgDurationMs) / n
	c.avgUsersProcessed += (float64(res.UsersProcessed) - c.avgUsersProcessed) / n
	c.avgOpportunities += (float64(res.OpportunitiesFound) - c.avgOpportunities) / n
	c.avgEngagements += (float64(res.EngagementsExecuted) - c.avgEngagements) / n

	c.history = append(c.history, res)
	if len(c.history) > historySize {
		c.history = c.history[1:]
	}
}

// Snapshot returns the current aggregates.
func (c *Collector) Snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		TotalCycles:        c.totalCycles,
		FailedCycles:       c.failedCycles,
		TotalOpportunities: c.totalOpportunities,
		TotalEngagements:   c.totalEngagements,
		AvgDurationMs:      c.avgDurationMs,
		AvgUsersProcessed:  c.avgUsersProcessed,
		AvgOpportunities:   c.avgOpportunities,
		AvgEngagements:     c.avgEngagements,
	}
	if c.totalCycles > 0 {
		m.ErrorRate = float64(c.failedCycles) / float64(c.totalCycles)
	}
	if c.totalOpportunities > 0 {
		m.EngagementSuccessRate = float64(c.totalEngagements) / float64(c.totalOpportunities)
	}
	return m
}

// Recent returns up to n most recent cycle results, newest last.
func (c *Collector) Recent(n int) []CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.history) {
		n = len(c.history)
	}
	out := make([]CycleResult, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// Aggregate computes analytics over the retained history limited to the
// given window ending now.
func (c *Collector) Aggregate(window time.Duration, now time.Time) Analytics {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-window)
	a := Analytics{Window: window}
	failed := 0
	var totalDurationMs float64
	for _, res := range c.history {
		if res.Timestamp.Before(cutoff) {
			continue
		}
		a.Cycles++
		a.UsersProcessed += res.UsersProcessed
		a.OpportunitiesFound += res.OpportunitiesFound
		a.EngagementsExecuted += res.EngagementsExecuted
		totalDurationMs += float64(res.Duration.Milliseconds())
		if res.Status != StatusCompleted {
			failed++
		}
	}
	if a.Cycles > 0 {
		a.ErrorRate = float64(failed) / float64(a.Cycles)
		a.AvgDurationMs = totalDurationMs / float64(a.Cycles)
	}
	if a.OpportunitiesFound > 0 {
		a.EngagementRate = float64(a.EngagementsExecuted) / float64(a.OpportunitiesFound)
	}
	return a
}
