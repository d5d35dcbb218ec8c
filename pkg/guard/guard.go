package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

// Config holds the bombardment limits.
type Config struct {
	// Window is the minimum spacing between executed engagements for
	// one user.
	Window time.Duration
	// OverridePriority lets one opportunity at or above this priority
	// pass the spacing gate per window without delay adjustment.
	OverridePriority int
}

// DefaultConfig returns the standard bombardment limits.
func DefaultConfig() Config {
	return Config{
		Window:           30 * time.Minute,
		OverridePriority: 8,
	}
}

// Guard enforces minimum spacing and daily caps over a ranked
// opportunity list. Both gates are independent and both applied; spacing
// state is always derived from the durable record store at use time.
type Guard struct {
	cfg     Config
	records record.Store
	table   *policy.Table
}

// New creates a bombardment guard.
func New(cfg Config, records record.Store, table *policy.Table) *Guard {
	return &Guard{cfg: cfg, records: records, table: table}
}

// Filter applies the spacing gate then the daily-cap gate to a ranked
// opportunity list and returns the survivors.
func (g *Guard) Filter(ctx context.Context, prof *profile.Profile, opps []detector.Opportunity, now time.Time) ([]detector.Opportunity, error) {
	if len(opps) == 0 {
		return nil, nil
	}

	kept, err := g.applySpacing(ctx, prof.UserID, opps, now)
	if err != nil {
		return nil, err
	}

	return g.applyDailyCap(ctx, prof, kept)
}

// applySpacing trims the list to the single highest-priority opportunity
// when the user was engaged inside the window, pushing its delay out to
// the window boundary. A single high-priority override per window is
// allowed through with its original delay.
func (g *Guard) applySpacing(ctx context.Context, userID string, opps []detector.Opportunity, now time.Time) ([]detector.Opportunity, error) {
	last, err := g.records.LastTimestamp(ctx, userID)
	if errors.Is(err, record.ErrNoRecords) {
		return opps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last engagement for user %s: %w", userID, err)
	}

	elapsed := now.Sub(last)
	if elapsed >= g.cfg.Window {
		return opps, nil
	}

	top := opps[0]
	for _, opp := range opps[1:] {
		if opp.Priority > top.Priority {
			top = opp
		}
	}

	if top.Priority >= g.cfg.OverridePriority {
		spent, err := g.overrideSpent(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if !spent {
			logrus.Debugf("spacing override for user %s: priority %d opportunity passes", userID, top.Priority)
			return []detector.Opportunity{top}, nil
		}
	}

	top.Delay = g.cfg.Window - elapsed
	logrus.Debugf("spacing gate for user %s: kept 1 of %d opportunities, delay pushed to %v",
		userID, len(opps), top.Delay)
	return []detector.Opportunity{top}, nil
}

// overrideSpent reports whether an override was already used inside the
// current window. Two or more records within the window imply one of
// them already jumped the spacing gate.
func (g *Guard) overrideSpent(ctx context.Context, userID string, now time.Time) (bool, error) {
	n, err := g.records.CountSince(ctx, userID, now.Add(-g.cfg.Window))
	if err != nil {
		return false, fmt.Errorf("failed to count window engagements for user %s: %w", userID, err)
	}
	return n >= 2, nil
}

// applyDailyCap empties the list when today's engagement count is at or
// over the tier cap. High interaction level treats the cap as soft.
func (g *Guard) applyDailyCap(ctx context.Context, prof *profile.Profile, opps []detector.Opportunity) ([]detector.Opportunity, error) {
	if len(opps) == 0 {
		return nil, nil
	}

	levelPolicy, err := g.table.Level(prof.Tier, prof.Level)
	if err != nil {
		return nil, err
	}

	count, err := g.records.CountToday(ctx, prof.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's engagements for user %s: %w", prof.UserID, err)
	}

	if count >= levelPolicy.DailyCap {
		if prof.Level == policy.LevelHigh {
			logrus.Debugf("daily cap reached for user %s (%d/%d) but level is high, soft cap applies",
				prof.UserID, count, levelPolicy.DailyCap)
			return opps, nil
		}
		logrus.Debugf("daily cap reached for user %s (%d/%d), dropping %d opportunities",
			prof.UserID, count, levelPolicy.DailyCap, len(opps))
		return nil, nil
	}

	return opps, nil
}
