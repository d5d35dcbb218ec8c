package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/executor"
	"github.com/quietpage/proactive-engagement/pkg/guard"
	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/probability"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

// alwaysRand fires every probability draw, removing randomness from the
// pipeline under test.
type alwaysRand struct{}

func (alwaysRand) Float64() float64 { return 0.0 }
func (alwaysRand) Intn(n int) int   { return 0 }
func (alwaysRand) Perm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

type fakeGenerator struct {
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, req executor.GenerateRequest) (*executor.GenerateResponse, error) {
	f.calls++
	return &executor.GenerateResponse{Text: "generated response", Confidence: 0.8}, nil
}

type testHarness struct {
	sched   *Scheduler
	client  *redis.Client
	entries *journal.RedisStore
	records *record.RedisStore
	gen     *fakeGenerator
}

func setupTestScheduler(t *testing.T) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	table := policy.Default()
	rng := alwaysRand{}
	entries := journal.NewRedisStore(client)
	records := record.NewRedisStore(client, time.UTC, time.Hour)
	builder := profile.NewBuilder(entries, records, profile.NewRedisTierStore(client), time.UTC)
	det := detector.New(detector.DefaultConfig(), table, probability.NewEngine(table, rng), rng, time.UTC)
	grd := guard.New(guard.DefaultConfig(), records, table)
	gen := &fakeGenerator{}
	exec := executor.New(executor.DefaultConfig(), entries, records, gen)

	// Intervals are long so that ticker fires never race with triggered
	// cycles in tests.
	cfg := DefaultConfig()
	cfg.MainInterval = time.Hour
	cfg.ImmediateInterval = time.Hour
	cfg.AnalyticsInterval = time.Hour

	sched, err := New(cfg, table, builder, det, grd, exec, entries, records, entries)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testHarness{sched: sched, client: client, entries: entries, records: records, gen: gen}
}

func (h *testHarness) seedUser(t *testing.T, userID, tier, level string, entryAge time.Duration) {
	t.Helper()
	ctx := context.Background()

	if err := h.client.HSet(ctx, "quietpage:users:tier:"+userID, "tier", tier, "level", level).Err(); err != nil {
		t.Fatal(err)
	}
	err := h.entries.AddEntry(ctx, journal.EntrySnapshot{
		ID:        "entry-" + userID,
		UserID:    userID,
		Content:   "quiet evening reading a novel",
		MoodScore: 5, EnergyScore: 5, StressScore: 5,
		CreatedAt: time.Now().Add(-entryAge),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	h := setupTestScheduler(t)

	cfg := DefaultConfig()
	cfg.CleanupSchedule = "not a cron expression"
	_, err := New(cfg, policy.Default(), nil, nil, nil, nil, h.entries, h.records, h.entries)
	if err == nil {
		t.Fatal("New() accepted an invalid cleanup schedule")
	}
	if !strings.Contains(err.Error(), "configuration error") {
		t.Errorf("error = %v, expected a configuration error", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	h := setupTestScheduler(t)
	ctx := context.Background()

	msg, err := h.sched.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if msg != "started" {
		t.Errorf("Start() = %q, expected started", msg)
	}
	if state := h.sched.GetStatus().RunState; state != StateRunning {
		t.Errorf("RunState = %s, expected running", state)
	}

	msg, err = h.sched.Start(ctx)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if msg != "already_running" {
		t.Errorf("second Start() = %q, expected already_running", msg)
	}

	if msg := h.sched.Stop(); msg != "stopped" {
		t.Errorf("Stop() = %q, expected stopped", msg)
	}
	if state := h.sched.GetStatus().RunState; state != StateStopped {
		t.Errorf("RunState after stop = %s, expected stopped", state)
	}
	if msg := h.sched.Stop(); msg != "already_stopped" {
		t.Errorf("second Stop() = %q, expected already_stopped", msg)
	}
}

func TestStartAfterCycleFailureIsNoOp(t *testing.T) {
	h := setupTestScheduler(t)
	ctx := context.Background()

	if _, err := h.sched.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.sched.Stop()

	h.sched.jobs[CycleAnalytics].run = func(ctx context.Context) CycleResult {
		return CycleResult{
			CycleID: "forced", Type: CycleAnalytics, Timestamp: time.Now(),
			Status: StatusFailed, Errors: []string{"forced failure"},
		}
	}
	if _, err := h.sched.TriggerCycle(ctx, CycleAnalytics); err != nil {
		t.Fatal(err)
	}
	if state := h.sched.GetStatus().RunState; state != StateError {
		t.Fatalf("RunState = %s, expected error after a failed cycle", state)
	}

	// The job goroutines and cron runner from the first start are still
	// alive, so starting again must not spawn a second set.
	msg, err := h.sched.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if msg != "already_running" {
		t.Errorf("Start() in error state = %q, expected already_running", msg)
	}

	if msg := h.sched.Stop(); msg != "stopped" {
		t.Errorf("Stop() = %q, expected stopped", msg)
	}
}

func TestStatusOmitsDisabledImmediateJob(t *testing.T) {
	h := setupTestScheduler(t)

	cfg := DefaultConfig()
	cfg.ImmediateEnabled = false
	sched, err := New(cfg, policy.Default(), nil, nil, nil, nil, h.entries, h.records, h.entries)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, js := range sched.GetStatus().Jobs {
		if js.Name == CycleImmediate {
			t.Errorf("status reports the disabled immediate job: %+v", js)
		}
	}

	found := false
	for _, js := range h.sched.GetStatus().Jobs {
		if js.Name == CycleImmediate {
			found = true
		}
	}
	if !found {
		t.Error("status omits the immediate job even though it is enabled")
	}
}

func TestTriggerUnknownCycle(t *testing.T) {
	h := setupTestScheduler(t)

	if _, err := h.sched.TriggerCycle(context.Background(), CycleType("bogus")); err == nil {
		t.Fatal("TriggerCycle() accepted an unknown cycle type")
	}
}

func TestMainCycleEngagesActiveUser(t *testing.T) {
	h := setupTestScheduler(t)
	h.seedUser(t, "user-1", "premium", "high", time.Hour)

	res, err := h.sched.TriggerCycle(context.Background(), CycleMain)
	if err != nil {
		t.Fatalf("TriggerCycle() error = %v", err)
	}

	if res.Status != StatusCompleted {
		t.Fatalf("cycle status = %s, errors = %v", res.Status, res.Errors)
	}
	if res.UsersProcessed != 1 {
		t.Errorf("UsersProcessed = %d, expected 1", res.UsersProcessed)
	}
	if res.OpportunitiesFound == 0 {
		t.Error("OpportunitiesFound = 0, expected at least one")
	}
	if res.EngagementsExecuted != 1 {
		t.Errorf("EngagementsExecuted = %d, expected 1", res.EngagementsExecuted)
	}
	if h.gen.calls != 1 {
		t.Errorf("generator called %d times, expected 1", h.gen.calls)
	}

	count, err := h.records.CountToday(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("persisted records = %d, expected 1", count)
	}
}

func TestMainCycleSpacingBlocksSecondRun(t *testing.T) {
	h := setupTestScheduler(t)
	h.seedUser(t, "user-1", "premium", "high", time.Hour)
	ctx := context.Background()

	first, err := h.sched.TriggerCycle(ctx, CycleMain)
	if err != nil {
		t.Fatal(err)
	}
	if first.EngagementsExecuted != 1 {
		t.Fatalf("first cycle executed %d engagements, expected 1", first.EngagementsExecuted)
	}

	second, err := h.sched.TriggerCycle(ctx, CycleMain)
	if err != nil {
		t.Fatal(err)
	}
	if second.EngagementsExecuted != 0 {
		t.Errorf("second cycle executed %d engagements inside the spacing window, expected 0", second.EngagementsExecuted)
	}

	count, err := h.records.CountToday(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("persisted records = %d, expected spacing to hold at 1", count)
	}
}

func TestMainCycleDefersTrimmedDelay(t *testing.T) {
	h := setupTestScheduler(t)
	h.seedUser(t, "user-1", "premium", "moderate", 2*time.Hour)
	ctx := context.Background()

	// A 26-minute-old engagement leaves 4 minutes of the spacing window
	// outstanding; the cycle must not execute the trimmed opportunity
	// early, however long its own interval is.
	prior := record.Record{
		ID: "r-prior", EntryID: "entry-user-1", UserID: "user-1",
		PersonaUsed: "pulse", CreatedAt: time.Now().Add(-26 * time.Minute),
	}
	if err := h.records.Append(ctx, prior); err != nil {
		t.Fatal(err)
	}

	res, err := h.sched.TriggerCycle(ctx, CycleMain)
	if err != nil {
		t.Fatal(err)
	}
	if res.OpportunitiesFound == 0 {
		t.Fatal("OpportunitiesFound = 0, expected the responded entry to surface one")
	}
	if res.EngagementsExecuted != 0 {
		t.Errorf("EngagementsExecuted = %d inside the spacing window, expected 0", res.EngagementsExecuted)
	}
	if h.gen.calls != 0 {
		t.Errorf("generator called %d times, expected 0", h.gen.calls)
	}

	count, err := h.records.CountSince(ctx, "user-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("records in the last hour = %d, expected spacing to hold at 1", count)
	}
}

func TestMainCycleNoActiveUsers(t *testing.T) {
	h := setupTestScheduler(t)

	res, err := h.sched.TriggerCycle(context.Background(), CycleMain)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCompleted || res.UsersProcessed != 0 {
		t.Errorf("empty cycle = %s users=%d, expected completed with 0 users", res.Status, res.UsersProcessed)
	}
}

func TestImmediateCycleRespectsSpacing(t *testing.T) {
	h := setupTestScheduler(t)
	h.seedUser(t, "user-1", "premium", "high", time.Hour)
	ctx := context.Background()

	if _, err := h.sched.TriggerCycle(ctx, CycleMain); err != nil {
		t.Fatal(err)
	}

	res, err := h.sched.TriggerCycle(ctx, CycleImmediate)
	if err != nil {
		t.Fatal(err)
	}
	if res.UsersProcessed != 1 {
		t.Errorf("UsersProcessed = %d, expected the engaged user to be picked up", res.UsersProcessed)
	}
	if res.EngagementsExecuted != 0 {
		t.Errorf("EngagementsExecuted = %d, expected 0 inside the spacing window", res.EngagementsExecuted)
	}
}

func TestCleanupCyclePrunes(t *testing.T) {
	h := setupTestScheduler(t)
	ctx := context.Background()

	old := record.Record{
		ID: "r-old", EntryID: "e-old", UserID: "user-1",
		PersonaUsed: "sage", CreatedAt: time.Now().Add(-100 * 24 * time.Hour),
	}
	if err := h.records.Append(ctx, old); err != nil {
		t.Fatal(err)
	}

	res, err := h.sched.TriggerCycle(ctx, CycleCleanup)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("cleanup status = %s, errors = %v", res.Status, res.Errors)
	}

	if _, err := h.records.LastTimestamp(ctx, "user-1"); err == nil {
		t.Error("record older than retention survived cleanup")
	}
}

func TestCyclePanicIsContained(t *testing.T) {
	h := setupTestScheduler(t)
	h.sched.jobs[CycleMain].run = func(ctx context.Context) CycleResult {
		panic("boom")
	}

	res, err := h.sched.TriggerCycle(context.Background(), CycleMain)
	if err != nil {
		t.Fatalf("TriggerCycle() error = %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("cycle status = %s, expected failed after panic", res.Status)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "panic") {
		t.Errorf("errors = %v, expected the panic message", res.Errors)
	}
}

func TestInFlightGuard(t *testing.T) {
	h := setupTestScheduler(t)

	if !h.sched.markInFlight("user-1") {
		t.Fatal("first claim failed")
	}
	if h.sched.markInFlight("user-1") {
		t.Error("second claim succeeded while first still held")
	}
	h.sched.clearInFlight("user-1")
	if !h.sched.markInFlight("user-1") {
		t.Error("claim failed after clear")
	}
}
