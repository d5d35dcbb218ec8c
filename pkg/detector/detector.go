package detector

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/probability"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

// Detector finds candidate engagement moments for a user. It is a pure
// function of its inputs plus the injected random source: two runs over
// identical input under the same seed yield identical opportunities.
type Detector struct {
	cfg    Config
	table  *policy.Table
	engine *probability.Engine
	rng    probability.Rand
	loc    *time.Location
}

// New creates a detector.
func New(cfg Config, table *policy.Table, engine *probability.Engine, rng probability.Rand, loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{cfg: cfg, table: table, engine: engine, rng: rng, loc: loc}
}

// Detect evaluates all candidate rules over the user's recent entries
// and existing engagement records. The rules are independent and may
// co-fire for one entry. The result is sorted by (priority desc,
// expected score desc); the caller truncates to its top-K.
func (d *Detector) Detect(prof *profile.Profile, entries []journal.EntrySnapshot, existing []record.Record, now time.Time) []Opportunity {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]journal.EntrySnapshot, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	byEntry := make(map[string][]record.Record)
	for _, rec := range existing {
		byEntry[rec.EntryID] = append(byEntry[rec.EntryID], rec)
	}

	var opps []Opportunity
	for _, entry := range sorted {
		age := now.Sub(entry.CreatedAt)
		if age < d.cfg.MinInitialDelay {
			continue
		}

		responses := byEntry[entry.ID]

		if len(responses) == 0 {
			if opp, ok := d.initialComment(prof, entry, sorted, responses, now); ok {
				opps = append(opps, opp)
			}
		}
		if len(responses) >= 1 && prof.Level == policy.LevelHigh && age >= d.cfg.CollaborativeDelay {
			if opp, ok := d.collaborativeResponse(prof, entry, responses); ok {
				opps = append(opps, opp)
			}
		}
		if len(responses) == 1 && age >= d.cfg.SecondPerspectiveDelay {
			if opp, ok := d.additionalPerspective(prof, entry, responses); ok {
				opps = append(opps, opp)
			}
		}
	}

	if d.cfg.PatternDetection {
		for _, cluster := range d.relatedClusters(sorted) {
			if opp, ok := d.patternFollowUp(prof, cluster, sorted, byEntry, now); ok {
				opps = append(opps, opp)
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Priority != opps[j].Priority {
			return opps[i].Priority > opps[j].Priority
		}
		return opps[i].ExpectedScore > opps[j].ExpectedScore
	})

	logrus.Debugf("detected %d opportunities for user %s", len(opps), prof.UserID)
	return opps
}

func (d *Detector) initialComment(prof *profile.Profile, entry journal.EntrySnapshot, all []journal.EntrySnapshot, responses []record.Record, now time.Time) (Opportunity, bool) {
	ordinal := journal.EntryOrdinal(entry, all, d.loc)
	drawn, err := d.engine.ReplyingPersonas(prof.Tier, prof.Level, ordinal)
	if err != nil {
		logrus.Errorf("reply draw failed for user %s: %v", prof.UserID, err)
		return Opportunity{}, false
	}

	lead, personas := d.leadPersona(drawn, respondedSet(responses), entry)
	if lead == "" {
		return Opportunity{}, false
	}

	return Opportunity{
		EntryID:       entry.ID,
		UserID:        prof.UserID,
		Reason:        ReasonInitialComment,
		Persona:       lead,
		Personas:      personas,
		Priority:      priorityInitialComment,
		Delay:         remaining(d.initialDelay(prof.Level), now.Sub(entry.CreatedAt)),
		Strategy:      strategyOpenConversation,
		ExpectedScore: expectedScore(prof, entry, 0),
	}, true
}

func (d *Detector) collaborativeResponse(prof *profile.Profile, entry journal.EntrySnapshot, responses []record.Record) (Opportunity, bool) {
	drawn, err := d.engine.ReactingPersonas(prof.Tier, prof.Level)
	if err != nil {
		logrus.Errorf("react draw failed for user %s: %v", prof.UserID, err)
		return Opportunity{}, false
	}

	lead, personas := d.leadPersona(drawn, respondedSet(responses), entry)
	if lead == "" {
		return Opportunity{}, false
	}

	return Opportunity{
		EntryID:       entry.ID,
		UserID:        prof.UserID,
		Reason:        ReasonCollaborativeResponse,
		Persona:       lead,
		Personas:      personas,
		Priority:      priorityCollaborativeResponse,
		Delay:         0, // the age gate already covers the collaborative wait
		Strategy:      strategyJoinThread,
		ExpectedScore: expectedScore(prof, entry, 0),
	}, true
}

func (d *Detector) additionalPerspective(prof *profile.Profile, entry journal.EntrySnapshot, responses []record.Record) (Opportunity, bool) {
	drawn, err := d.engine.ReactingPersonas(prof.Tier, prof.Level)
	if err != nil {
		logrus.Errorf("react draw failed for user %s: %v", prof.UserID, err)
		return Opportunity{}, false
	}

	lead, personas := d.leadPersona(drawn, respondedSet(responses), entry)
	if lead == "" {
		return Opportunity{}, false
	}

	return Opportunity{
		EntryID:       entry.ID,
		UserID:        prof.UserID,
		Reason:        ReasonAdditionalPerspective,
		Persona:       lead,
		Personas:      personas,
		Priority:      priorityAdditionalPerspective,
		Delay:         0,
		Strategy:      strategyOfferContrast,
		ExpectedScore: expectedScore(prof, entry, 0),
	}, true
}

// patternFollowUp emits one opportunity per related cluster, anchored on
// the newest cluster entry that is old enough. Clusters spanning three
// or more entries surface as recurring_pattern instead.
func (d *Detector) patternFollowUp(prof *profile.Profile, cluster, all []journal.EntrySnapshot, byEntry map[string][]record.Record, now time.Time) (Opportunity, bool) {
	var anchor journal.EntrySnapshot
	found := false
	for i := len(cluster) - 1; i >= 0; i-- {
		if now.Sub(cluster[i].CreatedAt) >= d.cfg.MinInitialDelay {
			anchor = cluster[i]
			found = true
			break
		}
	}
	if !found {
		return Opportunity{}, false
	}

	// The reply decay runs over the anchor's position in the whole day,
	// not its position inside the cluster.
	ordinal := journal.EntryOrdinal(anchor, all, d.loc)
	drawn, err := d.engine.ReplyingPersonas(prof.Tier, prof.Level, ordinal)
	if err != nil {
		logrus.Errorf("reply draw failed for user %s: %v", prof.UserID, err)
		return Opportunity{}, false
	}

	lead, personas := d.leadPersona(drawn, respondedSet(byEntry[anchor.ID]), anchor)
	if lead == "" {
		return Opportunity{}, false
	}

	related := make([]string, 0, len(cluster))
	for _, e := range cluster {
		related = append(related, e.ID)
	}

	reason := ReasonPatternFollowUp
	strategy := strategyConnectTheDots
	if len(cluster) >= 3 {
		reason = ReasonRecurringPattern
		strategy = strategySurfaceRecurrence
	}

	return Opportunity{
		EntryID:         anchor.ID,
		UserID:          prof.UserID,
		Reason:          reason,
		Persona:         lead,
		Personas:        personas,
		Priority:        priorityPatternFollowUp,
		Delay:           remaining(d.initialDelay(prof.Level), now.Sub(anchor.CreatedAt)),
		Strategy:        strategy,
		ExpectedScore:   expectedScore(prof, anchor, 1.0),
		RelatedEntryIDs: related,
	}, true
}

// remaining converts a target wait measured from entry creation into the
// delay still outstanding at detection time.
func remaining(target, age time.Duration) time.Duration {
	if age >= target {
		return 0
	}
	return target - age
}

// initialDelay scales inversely with interaction level inside the
// configured bounds.
func (d *Detector) initialDelay(level policy.InteractionLevel) time.Duration {
	switch level {
	case policy.LevelHigh:
		return d.cfg.InitialDelayMin
	case policy.LevelMinimal:
		return d.cfg.InitialDelayMax
	default:
		return (d.cfg.InitialDelayMin + d.cfg.InitialDelayMax) / 2
	}
}

// expectedScore estimates engagement value for an opportunity, anchored
// at 5.0 and pulled by profile engagement plus acute entry signals.
func expectedScore(prof *profile.Profile, entry journal.EntrySnapshot, bonus float64) float64 {
	score := 5.0 + 0.5*(prof.EngagementScore-5.0) + bonus
	if entry.StressScore >= highStressThreshold {
		score += 1.0
	}
	if entry.MoodScore <= lowMoodThreshold {
		score += 1.0
	}
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func respondedSet(responses []record.Record) map[string]bool {
	set := make(map[string]bool, len(responses))
	for _, rec := range responses {
		set[rec.PersonaUsed] = true
	}
	return set
}
