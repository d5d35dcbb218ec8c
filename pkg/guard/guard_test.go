package guard

import (
	"context"
	"testing"
	"time"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

type fakeRecords struct {
	record.Store

	timestamps []time.Time // engagement times for the user under test
	loc        *time.Location
	now        time.Time
}

func (f *fakeRecords) LastTimestamp(ctx context.Context, userID string) (time.Time, error) {
	var last time.Time
	for _, ts := range f.timestamps {
		if ts.After(last) {
			last = ts
		}
	}
	if last.IsZero() {
		return time.Time{}, record.ErrNoRecords
	}
	return last, nil
}

func (f *fakeRecords) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	n := 0
	for _, ts := range f.timestamps {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) CountToday(ctx context.Context, userID string) (int, error) {
	day := f.now.In(f.loc)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, f.loc)
	return f.CountSince(ctx, userID, dayStart)
}

func testProfile(tier policy.Tier, level policy.InteractionLevel) *profile.Profile {
	return &profile.Profile{UserID: "user-1", Tier: tier, Level: level}
}

func opp(id string, priority int, delay time.Duration) detector.Opportunity {
	return detector.Opportunity{EntryID: id, UserID: "user-1", Priority: priority, Delay: delay}
}

func TestSpacingGateTrimsAndDelays(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	records := &fakeRecords{timestamps: []time.Time{now.Add(-10 * time.Minute)}, loc: time.UTC, now: now}
	g := New(DefaultConfig(), records, policy.Default())

	opps := []detector.Opportunity{
		opp("e1", 6, 5*time.Minute),
		opp("e2", 5, 10*time.Minute),
	}

	kept, err := g.Filter(context.Background(), testProfile(policy.TierPremium, policy.LevelModerate), opps, now)
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("got %d opportunities, expected spacing gate to keep 1", len(kept))
	}
	if kept[0].EntryID != "e1" {
		t.Errorf("kept %s, expected the top-priority opportunity e1", kept[0].EntryID)
	}
	if kept[0].Delay != 20*time.Minute {
		t.Errorf("Delay = %v, expected 20m (window remainder)", kept[0].Delay)
	}
}

func TestSpacingGatePassesOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	records := &fakeRecords{timestamps: []time.Time{now.Add(-45 * time.Minute)}, loc: time.UTC, now: now}
	g := New(DefaultConfig(), records, policy.Default())

	opps := []detector.Opportunity{opp("e1", 6, 5*time.Minute), opp("e2", 5, 10*time.Minute)}

	kept, err := g.Filter(context.Background(), testProfile(policy.TierPremium, policy.LevelModerate), opps, now)
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(kept) != 2 {
		t.Errorf("got %d opportunities, expected all to pass outside the window", len(kept))
	}
}

func TestSpacingGateNoHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	records := &fakeRecords{loc: time.UTC, now: now}
	g := New(DefaultConfig(), records, policy.Default())

	opps := []detector.Opportunity{opp("e1", 6, 5*time.Minute)}

	kept, err := g.Filter(context.Background(), testProfile(policy.TierPremium, policy.LevelModerate), opps, now)
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("got %d opportunities, expected a never-engaged user to pass", len(kept))
	}
}

func TestSpacingOverride(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		timestamps    []time.Time
		expectedDelay time.Duration
	}{
		{
			name:          "fresh override passes with original delay",
			timestamps:    []time.Time{now.Add(-10 * time.Minute)},
			expectedDelay: 5 * time.Minute,
		},
		{
			name:          "spent override is delayed",
			timestamps:    []time.Time{now.Add(-25 * time.Minute), now.Add(-10 * time.Minute)},
			expectedDelay: 20 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := &fakeRecords{timestamps: tt.timestamps, loc: time.UTC, now: now}
			g := New(DefaultConfig(), records, policy.Default())

			opps := []detector.Opportunity{
				opp("e1", 8, 5*time.Minute),
				opp("e2", 6, 10*time.Minute),
			}

			kept, err := g.Filter(context.Background(), testProfile(policy.TierPremium, policy.LevelHigh), opps, now)
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			if len(kept) != 1 {
				t.Fatalf("got %d opportunities, expected 1", len(kept))
			}
			if kept[0].EntryID != "e1" {
				t.Errorf("kept %s, expected the priority-8 opportunity e1", kept[0].EntryID)
			}
			if kept[0].Delay != tt.expectedDelay {
				t.Errorf("Delay = %v, expected %v", kept[0].Delay, tt.expectedDelay)
			}
		})
	}
}

func TestDailyCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tier       policy.Tier
		level      policy.InteractionLevel
		today      int
		expectKept bool
	}{
		{name: "under cap passes", tier: policy.TierFree, level: policy.LevelMinimal, today: 0, expectKept: true},
		{name: "at cap drops", tier: policy.TierFree, level: policy.LevelMinimal, today: 1, expectKept: false},
		{name: "over cap drops", tier: policy.TierPremium, level: policy.LevelModerate, today: 5, expectKept: false},
		{name: "high level soft cap passes", tier: policy.TierPremium, level: policy.LevelHigh, today: 6, expectKept: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// All of today's engagements placed well outside the spacing
			// window so only the daily-cap gate is exercised.
			var timestamps []time.Time
			for i := 0; i < tt.today; i++ {
				timestamps = append(timestamps, now.Add(-time.Duration(i+2)*time.Hour))
			}
			records := &fakeRecords{timestamps: timestamps, loc: time.UTC, now: now}
			g := New(DefaultConfig(), records, policy.Default())

			kept, err := g.Filter(context.Background(), testProfile(tt.tier, tt.level), []detector.Opportunity{opp("e1", 6, 5*time.Minute)}, now)
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			if tt.expectKept && len(kept) != 1 {
				t.Errorf("got %d opportunities, expected 1 kept", len(kept))
			}
			if !tt.expectKept && len(kept) != 0 {
				t.Errorf("got %d opportunities, expected all dropped at the cap", len(kept))
			}
		})
	}
}

func TestFilterEmptyInput(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	g := New(DefaultConfig(), &fakeRecords{loc: time.UTC, now: now}, policy.Default())

	kept, err := g.Filter(context.Background(), testProfile(policy.TierFree, policy.LevelMinimal), nil, now)
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if kept != nil {
		t.Errorf("Filter(nil) = %v, expected nil", kept)
	}
}
