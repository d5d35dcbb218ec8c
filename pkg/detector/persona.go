package detector

import (
	"github.com/quietpage/proactive-engagement/pkg/journal"
)

const (
	highStressThreshold = 7
	lowMoodThreshold    = 3
)

// biasTopic maps an entry's dominant signal to the topic bucket used for
// persona affinity lookups. High stress wants a grounding persona, low
// mood an energizing one, work content a strategic one.
func biasTopic(entry journal.EntrySnapshot) string {
	if entry.StressScore >= highStressThreshold {
		return journal.TopicAnxiety
	}
	if entry.MoodScore <= lowMoodThreshold {
		return journal.TopicGratitude
	}
	for _, topic := range journal.Topics(entry.Content) {
		if topic == journal.TopicWorkStress {
			return journal.TopicWorkStress
		}
	}
	return ""
}

// leadPersona picks the persona the executor will generate for, from the
// drawn set minus personas that already responded to the entry. Selection
// takes the highest affinity for the entry's bias topic, falling back to
// draw order, with ties broken through the injected random source so the
// choice is deterministic under a fixed seed.
func (d *Detector) leadPersona(drawn []string, responded map[string]bool, entry journal.EntrySnapshot) (string, []string) {
	available := make([]string, 0, len(drawn))
	for _, p := range drawn {
		if !responded[p] {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return "", nil
	}

	topic := biasTopic(entry)
	if topic == "" {
		return available[0], available
	}

	best := []string{available[0]}
	bestWeight := d.table.Affinity(available[0], topic)
	for _, p := range available[1:] {
		w := d.table.Affinity(p, topic)
		switch {
		case w > bestWeight:
			best = []string{p}
			bestWeight = w
		case w == bestWeight:
			best = append(best, p)
		}
	}

	if len(best) == 1 {
		return best[0], available
	}
	return best[d.rng.Intn(len(best))], available
}
