package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

const (
	activityWindow = 7 * 24 * time.Hour

	streakTarget      = 8
	weeklyTarget      = 10
	interactionTarget = 15
)

// TierStore resolves a user's paid tier and interaction level.
type TierStore interface {
	TierAndLevel(ctx context.Context, userID string) (policy.Tier, policy.InteractionLevel, error)
}

// Profile is a per-user engagement snapshot, recomputed every cycle from
// stored data. It is never persisted as mutable state.
type Profile struct {
	UserID            string
	Tier              policy.Tier
	Level             policy.InteractionLevel
	LastJournalAt     time.Time
	LastInteractionAt time.Time
	DailyStreak       int
	WeeklyEntryCount  int
	EngagementScore   float64
}

// Builder derives engagement profiles. It holds no cache: every Build
// reflects the latest store writes.
type Builder struct {
	entries journal.Store
	records record.Store
	tiers   TierStore
	loc     *time.Location
}

// NewBuilder creates a profile builder. loc defines calendar days for
// the streak walk.
func NewBuilder(entries journal.Store, records record.Store, tiers TierStore, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{entries: entries, records: records, tiers: tiers, loc: loc}
}

// Build computes the engagement profile for a user.
func (b *Builder) Build(ctx context.Context, userID string, now time.Time) (*Profile, error) {
	tier, level, err := b.tiers.TierAndLevel(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier for user %s: %w", userID, err)
	}

	entries, err := b.entries.RecentEntries(ctx, userID, now.Add(-activityWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entries for user %s: %w", userID, err)
	}

	interactions, err := b.records.CountSince(ctx, userID, now.Add(-activityWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions for user %s: %w", userID, err)
	}

	lastInteraction, err := b.records.LastTimestamp(ctx, userID)
	if err != nil && !errors.Is(err, record.ErrNoRecords) {
		return nil, fmt.Errorf("failed to fetch last interaction for user %s: %w", userID, err)
	}

	p := &Profile{
		UserID:            userID,
		Tier:              tier,
		Level:             level,
		LastInteractionAt: lastInteraction,
		DailyStreak:       dailyStreak(entries, now, b.loc),
		WeeklyEntryCount:  len(entries),
	}
	for _, e := range entries {
		if e.CreatedAt.After(p.LastJournalAt) {
			p.LastJournalAt = e.CreatedAt
		}
	}
	p.EngagementScore = engagementScore(p.DailyStreak, p.WeeklyEntryCount, interactions)

	logrus.Debugf("built profile for user %s: tier=%s level=%s streak=%d weekly=%d score=%.2f",
		userID, tier, level, p.DailyStreak, p.WeeklyEntryCount, p.EngagementScore)
	return p, nil
}

// dailyStreak counts consecutive calendar days with at least one entry,
// walking backward from today in loc.
func dailyStreak(entries []journal.EntrySnapshot, now time.Time, loc *time.Location) int {
	days := make(map[string]bool)
	for _, e := range entries {
		days[e.CreatedAt.In(loc).Format("2006-01-02")] = true
	}

	streak := 0
	day := now.In(loc)
	for days[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// engagementScore blends streak, weekly volume, and AI interaction
// volume into a [0,10] score.
func engagementScore(streak, weekly, interactions int) float64 {
	score := 4*capped(streak, streakTarget) +
		3*capped(weekly, weeklyTarget) +
		3*capped(interactions, interactionTarget)
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func capped(n, target int) float64 {
	frac := float64(n) / float64(target)
	if frac > 1 {
		return 1
	}
	return frac
}
