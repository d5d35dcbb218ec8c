package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/executor"
	"github.com/quietpage/proactive-engagement/pkg/guard"
	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

// CycleType identifies one of the scheduler's periodic jobs.
type CycleType string

const (
	CycleMain      CycleType = "main"
	CycleImmediate CycleType = "immediate"
	CycleAnalytics CycleType = "analytics"
	CycleCleanup   CycleType = "cleanup"
)

// RunState is the scheduler lifecycle state.
type RunState string

const (
	StateStopped  RunState = "stopped"
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateError    RunState = "error"
)

// Cycle statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// UserDirectory lists the users the scheduler considers.
type UserDirectory interface {
	// ActiveUsers returns the IDs of users with recent journal activity.
	ActiveUsers(ctx context.Context) ([]string, error)
}

// Config holds the scheduler's static run configuration.
type Config struct {
	MainInterval      time.Duration
	ImmediateInterval time.Duration
	AnalyticsInterval time.Duration
	// CleanupSchedule is a standard 5-field cron expression.
	CleanupSchedule string

	// MaxUsersPerCycle bounds both the users picked up per main tick
	// and the concurrent per-user fan-out.
	MaxUsersPerCycle int
	// TopK bounds the ranked opportunities kept per user per cycle.
	TopK int

	ImmediateEnabled  bool
	ImmediateUserCap  int
	ImmediateLookback time.Duration

	// Retention bounds the engagement record history kept by cleanup.
	Retention time.Duration
	// AnalyticsWindow is the default window for the analytics job.
	AnalyticsWindow time.Duration
}

// DefaultConfig returns the standard scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MainInterval:      5 * time.Minute,
		ImmediateInterval: time.Minute,
		AnalyticsInterval: 15 * time.Minute,
		CleanupSchedule:   "0 3 * * *",
		MaxUsersPerCycle:  50,
		TopK:              3,
		ImmediateEnabled:  true,
		ImmediateUserCap:  10,
		ImmediateLookback: 10 * time.Minute,
		Retention:         90 * 24 * time.Hour,
		AnalyticsWindow:   24 * time.Hour,
	}
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name     CycleType `json:"name"`
	NextFire time.Time `json:"nextFire"`
	Running  bool      `json:"running"`
}

// Status is the scheduler's observable state.
type Status struct {
	RunState     RunState      `json:"runState"`
	Jobs         []JobStatus   `json:"jobs"`
	Metrics      Metrics       `json:"metrics"`
	RecentCycles []CycleResult `json:"recentCycles"`
}

// job is one periodic job with a single-flight guard: overlapping runs
// of the same job are never allowed, overlapping ticks coalesce.
type job struct {
	name     CycleType
	interval time.Duration // zero for the cron-scheduled cleanup job
	run      func(ctx context.Context) CycleResult

	mu       sync.Mutex // held for the duration of a run
	stateMu  sync.Mutex
	running  bool
	lastFire time.Time
}

// Scheduler drives the four periodic engagement jobs and fans per-user
// processing out across active users.
type Scheduler struct {
	cfg     Config
	builder *profile.Builder
	det     *detector.Detector
	grd     *guard.Guard
	exec    *executor.Executor
	entries journal.Store
	records record.Store
	users   UserDirectory

	collector *Collector
	prom      *promMetrics

	mu      sync.Mutex
	state   RunState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	jobs    map[CycleType]*job
	cron    *cron.Cron
	cronJob cron.EntryID

	inFlightMu sync.Mutex
	inFlight   map[string]bool
}

// New creates a scheduler. The policy table is validated here so that an
// invalid tier/level configuration blocks the RUNNING state up front.
func New(cfg Config, table *policy.Table, builder *profile.Builder, det *detector.Detector,
	grd *guard.Guard, exec *executor.Executor, entries journal.Store, records record.Store,
	users UserDirectory) (*Scheduler, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if cfg.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
			return nil, fmt.Errorf("configuration error: invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
	}

	s := &Scheduler{
		cfg:       cfg,
		builder:   builder,
		det:       det,
		grd:       grd,
		exec:      exec,
		entries:   entries,
		records:   records,
		users:     users,
		collector: NewCollector(),
		prom:      newPromMetrics(),
		state:     StateStopped,
		inFlight:  make(map[string]bool),
	}

	s.jobs = map[CycleType]*job{
		CycleMain:      {name: CycleMain, interval: cfg.MainInterval, run: s.mainCycle},
		CycleImmediate: {name: CycleImmediate, interval: cfg.ImmediateInterval, run: s.immediateCycle},
		CycleAnalytics: {name: CycleAnalytics, interval: cfg.AnalyticsInterval, run: s.analyticsCycle},
		CycleCleanup:   {name: CycleCleanup, run: s.cleanupCycle},
	}
	return s, nil
}

// RegisterMetrics registers the scheduler's Prometheus collectors on a
// registry.
func (s *Scheduler) RegisterMetrics(reg prometheus.Registerer) {
	s.prom.Register(reg)
}

// Start transitions the scheduler to RUNNING and registers the four
// jobs. Starting from any state other than STOPPED is a no-op that
// reports "already_running": the job goroutines and cron runner stay
// alive through ERROR, so only a stopped scheduler may start.
func (s *Scheduler) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		logrus.Warnf("scheduler in state %s, ignoring start", s.state)
		return "already_running", nil
	}

	s.state = StateStarting
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, j := range []*job{s.jobs[CycleMain], s.jobs[CycleImmediate], s.jobs[CycleAnalytics]} {
		if j.name == CycleImmediate && !s.cfg.ImmediateEnabled {
			continue
		}
		s.wg.Add(1)
		go s.runTickerJob(runCtx, j)
	}

	s.cron = cron.New()
	cleanup := s.jobs[CycleCleanup]
	id, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
		s.fire(runCtx, cleanup)
	})
	if err != nil {
		// Cancel unwinds the ticker goroutines already launched above;
		// the scheduler returns to STOPPED so a later start can retry.
		cancel()
		s.state = StateStopped
		return string(StateError), fmt.Errorf("failed to register cleanup job: %w", err)
	}
	s.cronJob = id
	s.cron.Start()

	s.state = StateRunning
	s.prom.runState.Set(1)
	logrus.Infof("engagement scheduler started with %d jobs (main=%v immediate=%v analytics=%v cleanup=%q)",
		len(s.jobs), s.cfg.MainInterval, s.cfg.ImmediateInterval, s.cfg.AnalyticsInterval, s.cfg.CleanupSchedule)
	return "started", nil
}

// Stop drains in-flight jobs and transitions to STOPPED. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() string {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return "already_stopped"
	}
	cancel := s.cancel
	cronRunner := s.cron
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cronRunner != nil {
		// cron.Stop returns a context that completes once running cron
		// jobs drain.
		<-cronRunner.Stop().Done()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.prom.runState.Set(0)
	logrus.Info("engagement scheduler stopped")
	return "stopped"
}

// TriggerCycle runs one cycle out of band. It fails when the cycle type
// is unknown or that job is already running.
func (s *Scheduler) TriggerCycle(ctx context.Context, cycleType CycleType) (CycleResult, error) {
	j, ok := s.jobs[cycleType]
	if !ok {
		return CycleResult{}, fmt.Errorf("unknown cycle type: %s", cycleType)
	}

	if !j.mu.TryLock() {
		return CycleResult{}, fmt.Errorf("%s cycle already running", cycleType)
	}
	defer j.mu.Unlock()

	res := s.runGuarded(ctx, j)
	return res, nil
}

// GetStatus reports run state, per-job next-fire times, rolling metrics,
// and recent cycle results. Disabled jobs are omitted.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	state := s.state
	cronRunner := s.cron
	cronID := s.cronJob
	s.mu.Unlock()

	var jobs []JobStatus
	for _, name := range []CycleType{CycleMain, CycleImmediate, CycleAnalytics, CycleCleanup} {
		if name == CycleImmediate && !s.cfg.ImmediateEnabled {
			continue
		}
		j := s.jobs[name]
		js := JobStatus{Name: name}

		j.stateMu.Lock()
		js.Running = j.running
		last := j.lastFire
		j.stateMu.Unlock()

		if name == CycleCleanup {
			if cronRunner != nil {
				js.NextFire = cronRunner.Entry(cronID).Next
			}
		} else if state == StateRunning && !last.IsZero() {
			js.NextFire = last.Add(j.interval)
		}
		jobs = append(jobs, js)
	}

	return Status{
		RunState:     state,
		Jobs:         jobs,
		Metrics:      s.collector.Snapshot(),
		RecentCycles: s.collector.Recent(10),
	}
}

// GetAnalytics aggregates performance over the given window.
func (s *Scheduler) GetAnalytics(window time.Duration) Analytics {
	if window <= 0 {
		window = s.cfg.AnalyticsWindow
	}
	return s.collector.Aggregate(window, time.Now())
}

// runTickerJob drives one ticker-based job. Runs happen inside the loop
// goroutine, so the same job never overlaps itself; a tick arriving
// mid-run is coalesced by the ticker.
func (s *Scheduler) runTickerJob(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.stateMu.Lock()
	j.lastFire = time.Now()
	j.stateMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

// fire runs a job once under its single-flight guard. A job busy with an
// out-of-band trigger skips the tick.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	if !j.mu.TryLock() {
		logrus.Debugf("%s cycle still running, coalescing tick", j.name)
		return
	}
	defer j.mu.Unlock()

	s.runGuarded(ctx, j)
}

// runGuarded executes a job run, catching panics and recording the
// result. A failing cycle flips the scheduler to ERROR; the next
// completed cycle flips it back. The scheduler itself is never crashed.
func (s *Scheduler) runGuarded(ctx context.Context, j *job) CycleResult {
	j.stateMu.Lock()
	j.running = true
	j.lastFire = time.Now()
	j.stateMu.Unlock()

	res := s.runSafely(ctx, j)

	j.stateMu.Lock()
	j.running = false
	j.stateMu.Unlock()

	s.collector.Record(res)
	s.prom.observe(res)
	s.noteOutcome(res)
	return res
}

func (s *Scheduler) runSafely(ctx context.Context, j *job) (res CycleResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("%s cycle panicked: %v", j.name, r)
			res = CycleResult{
				CycleID:   res.CycleID,
				Type:      j.name,
				Timestamp: start,
				Duration:  time.Since(start),
				Status:    StatusFailed,
				Errors:    []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()
	return j.run(ctx)
}

// noteOutcome tracks RUNNING <-> ERROR transitions from cycle outcomes.
func (s *Scheduler) noteOutcome(res CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case res.Status == StatusFailed && s.state == StateRunning:
		s.state = StateError
		logrus.Warnf("%s cycle failed, scheduler entering error state: %v", res.Type, res.Errors)
	case res.Status == StatusCompleted && s.state == StateError:
		s.state = StateRunning
		logrus.Infof("%s cycle recovered, scheduler back to running", res.Type)
	}
}

// markInFlight claims the per-user execution slot. At most one execution
// pipeline runs per user at a time across all cycles.
func (s *Scheduler) markInFlight(userID string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *Scheduler) clearInFlight(userID string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, userID)
}
