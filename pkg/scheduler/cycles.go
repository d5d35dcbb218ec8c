package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// detectionWindow is the entry lookback for opportunity detection.
const detectionWindow = 3 * 24 * time.Hour

// mainCycle processes up to MaxUsersPerCycle active users: profile,
// detection, bombardment filtering, and at most one execution per user.
func (s *Scheduler) mainCycle(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{
		CycleID:   uuid.NewString(),
		Type:      CycleMain,
		Timestamp: start,
		Status:    StatusCompleted,
	}

	users, err := s.users.ActiveUsers(ctx)
	if err != nil {
		// A cycle-level failure aborts only this tick; the scheduler
		// keeps running and retries on the next one.
		logrus.Errorf("main cycle %s: failed to list active users: %v", res.CycleID, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}
	if len(users) > s.cfg.MaxUsersPerCycle {
		users = users[:s.cfg.MaxUsersPerCycle]
	}

	s.processUsers(ctx, users, start, &res)
	res.Duration = time.Since(start)
	logrus.Infof("main cycle %s completed: users=%d opportunities=%d engagements=%d duration=%v",
		res.CycleID, res.UsersProcessed, res.OpportunitiesFound, res.EngagementsExecuted, res.Duration)
	return res
}

// immediateCycle gives fast follow-ups to a capped set of users who
// interacted with AI output in the last few minutes. It runs the same
// pipeline as the main cycle, just on a shorter tick.
func (s *Scheduler) immediateCycle(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{
		CycleID:   uuid.NewString(),
		Type:      CycleImmediate,
		Timestamp: start,
		Status:    StatusCompleted,
	}

	users, err := s.records.RecentlyEngagedUsers(ctx, start.Add(-s.cfg.ImmediateLookback), s.cfg.ImmediateUserCap)
	if err != nil {
		logrus.Errorf("immediate cycle %s: failed to list recently engaged users: %v", res.CycleID, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	s.processUsers(ctx, users, start, &res)
	res.Duration = time.Since(start)
	if res.UsersProcessed > 0 {
		logrus.Debugf("immediate cycle %s completed: users=%d engagements=%d",
			res.CycleID, res.UsersProcessed, res.EngagementsExecuted)
	}
	return res
}

// processUsers fans per-user processing out concurrently, bounded by
// MaxUsersPerCycle. Per-user failures are isolated: they are recorded on
// the result but never abort the batch.
func (s *Scheduler) processUsers(ctx context.Context, users []string, now time.Time, res *CycleResult) {
	sem := make(chan struct{}, s.cfg.MaxUsersPerCycle)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			found, executed, err := s.processUser(ctx, userID, now)

			mu.Lock()
			defer mu.Unlock()
			res.UsersProcessed++
			res.OpportunitiesFound += found
			res.EngagementsExecuted += executed
			if err != nil {
				res.Errors = append(res.Errors, userID+": "+err.Error())
			}
		}(userID)
	}
	wg.Wait()
}

// processUser runs the full decision pipeline for one user and executes
// at most one opportunity that is already due. The per-user in-flight
// guard keeps executions for one user strictly sequential.
func (s *Scheduler) processUser(ctx context.Context, userID string, now time.Time) (found, executed int, err error) {
	if !s.markInFlight(userID) {
		logrus.Debugf("user %s already in flight, skipping", userID)
		return 0, 0, nil
	}
	defer s.clearInFlight(userID)

	prof, err := s.builder.Build(ctx, userID, now)
	if err != nil {
		logrus.Errorf("failed to build profile for user %s: %v", userID, err)
		return 0, 0, err
	}

	entries, err := s.entries.RecentEntries(ctx, userID, now.Add(-detectionWindow))
	if err != nil {
		logrus.Errorf("failed to fetch entries for user %s: %v", userID, err)
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}

	entryIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		entryIDs = append(entryIDs, e.ID)
	}
	existing, err := s.records.Existing(ctx, userID, entryIDs)
	if err != nil {
		logrus.Errorf("failed to fetch existing records for user %s: %v", userID, err)
		return 0, 0, err
	}

	opps := s.det.Detect(prof, entries, existing, now)
	found = len(opps)
	if len(opps) > s.cfg.TopK {
		opps = opps[:s.cfg.TopK]
	}

	opps, err = s.grd.Filter(ctx, prof, opps, now)
	if err != nil {
		logrus.Errorf("bombardment filter failed for user %s: %v", userID, err)
		return found, 0, err
	}

	// Execute the best opportunity whose remaining delay has run down
	// to zero; anything still carrying a delay is re-derived on a
	// later tick.
	for _, opp := range opps {
		if opp.Delay > 0 {
			continue
		}
		if s.exec.Execute(ctx, opp) {
			executed = 1
		}
		break
	}
	return found, executed, nil
}

// analyticsCycle refreshes the windowed analytics aggregates.
func (s *Scheduler) analyticsCycle(ctx context.Context) CycleResult {
	start := time.Now()
	a := s.collector.Aggregate(s.cfg.AnalyticsWindow, start)
	logrus.Infof("analytics: window=%v cycles=%d users=%d opportunities=%d engagements=%d error_rate=%.3f engagement_rate=%.3f",
		a.Window, a.Cycles, a.UsersProcessed, a.OpportunitiesFound, a.EngagementsExecuted, a.ErrorRate, a.EngagementRate)

	return CycleResult{
		CycleID:   uuid.NewString(),
		Type:      CycleAnalytics,
		Timestamp: start,
		Duration:  time.Since(start),
		Status:    StatusCompleted,
	}
}

// cleanupCycle prunes engagement records past retention.
func (s *Scheduler) cleanupCycle(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{
		CycleID:   uuid.NewString(),
		Type:      CycleCleanup,
		Timestamp: start,
		Status:    StatusCompleted,
	}

	removed, err := s.records.PruneBefore(ctx, start.Add(-s.cfg.Retention))
	if err != nil {
		logrus.Errorf("cleanup cycle %s failed: %v", res.CycleID, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
	} else {
		logrus.Infof("cleanup cycle %s removed %d records", res.CycleID, removed)
	}
	res.Duration = time.Since(start)
	return res
}
