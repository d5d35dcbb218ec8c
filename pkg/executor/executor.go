package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

const (
	// historyLimit bounds the entries handed to the generator as context.
	historyLimit = 10
	// fetchWindow bounds the lookback when re-fetching the target entry.
	fetchWindow = 7 * 24 * time.Hour
)

// Config holds the per-call timeouts for external collaborators.
type Config struct {
	GenerateTimeout time.Duration
	PersistTimeout  time.Duration
}

// DefaultConfig returns the standard executor timeouts.
func DefaultConfig() Config {
	return Config{
		GenerateTimeout: 30 * time.Second,
		PersistTimeout:  5 * time.Second,
	}
}

// Executor runs one chosen opportunity against the external generator
// and persists the outcome. Failures are isolated: a failed opportunity
// never aborts other opportunities or users in the cycle.
type Executor struct {
	cfg       Config
	entries   journal.Store
	records   record.Store
	generator Generator
}

// New creates an engagement executor.
func New(cfg Config, entries journal.Store, records record.Store, generator Generator) *Executor {
	return &Executor{cfg: cfg, entries: entries, records: records, generator: generator}
}

// Execute runs a single opportunity. It returns true only when the
// generated response was persisted. The target entry and its history are
// re-fetched so the generator sees the latest data; a vanished entry
// fails closed with no record.
func (x *Executor) Execute(ctx context.Context, opp detector.Opportunity) bool {
	entry, history, err := x.fetchContext(ctx, opp)
	if err != nil {
		logrus.Warnf("failed to fetch context for entry %s (user %s): %v", opp.EntryID, opp.UserID, err)
		return false
	}
	if entry == nil {
		logrus.Debugf("entry %s vanished before execution (user %s), dropping opportunity", opp.EntryID, opp.UserID)
		return false
	}

	genCtx, cancel := context.WithTimeout(ctx, x.cfg.GenerateTimeout)
	defer cancel()

	resp, err := x.generator.Generate(genCtx, GenerateRequest{
		UserID:      opp.UserID,
		Entry:       *entry,
		History:     history,
		Persona:     opp.Persona,
		ContextNote: contextNote(opp),
	})
	if err != nil {
		logrus.Warnf("generation failed for entry %s (user %s, persona %s): %v",
			opp.EntryID, opp.UserID, opp.Persona, err)
		return false
	}

	rec := record.Record{
		ID:           uuid.NewString(),
		EntryID:      opp.EntryID,
		UserID:       opp.UserID,
		PersonaUsed:  opp.Persona,
		ResponseText: resp.Text,
		Confidence:   resp.Confidence,
		TopicFlags:   mergeFlags(resp.TopicFlags, opp),
		CreatedAt:    time.Now(),
	}

	persistCtx, cancel := context.WithTimeout(ctx, x.cfg.PersistTimeout)
	defer cancel()

	if err := x.records.Append(persistCtx, rec); err != nil {
		logrus.Errorf("failed to persist engagement for entry %s (user %s): %v", opp.EntryID, opp.UserID, err)
		return false
	}

	logrus.Infof("executed %s engagement for user %s (entry %s, persona %s)",
		opp.Reason, opp.UserID, opp.EntryID, opp.Persona)
	return true
}

// fetchContext re-fetches the target entry plus its most recent history.
// A nil entry with nil error means the entry is gone.
func (x *Executor) fetchContext(ctx context.Context, opp detector.Opportunity) (*journal.EntrySnapshot, []journal.EntrySnapshot, error) {
	entries, err := x.entries.RecentEntries(ctx, opp.UserID, time.Now().Add(-fetchWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	var target *journal.EntrySnapshot
	var history []journal.EntrySnapshot
	for i := range entries {
		if entries[i].ID == opp.EntryID {
			target = &entries[i]
		} else {
			history = append(history, entries[i])
		}
	}
	if target == nil {
		return nil, nil, nil
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}
	return target, history, nil
}

// contextNote summarizes the scheduling decision for the generator.
func contextNote(opp detector.Opportunity) string {
	note := fmt.Sprintf("proactive engagement: reason=%s strategy=%s expected_score=%.1f",
		opp.Reason, opp.Strategy, opp.ExpectedScore)
	if len(opp.RelatedEntryIDs) > 0 {
		note += " related_entries=" + strings.Join(opp.RelatedEntryIDs, ",")
	}
	return note
}

// mergeFlags combines generator topic flags with the engagement metadata
// that marks this record as proactive.
func mergeFlags(flags map[string]interface{}, opp detector.Opportunity) map[string]interface{} {
	merged := make(map[string]interface{}, len(flags)+5)
	for k, v := range flags {
		merged[k] = v
	}
	merged["proactive"] = true
	merged["reason"] = string(opp.Reason)
	merged["strategy"] = opp.Strategy
	merged["delay"] = opp.Delay.String()
	if len(opp.RelatedEntryIDs) > 0 {
		merged["related_entries"] = opp.RelatedEntryIDs
	}
	return merged
}
