package probability

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/policy"
)

// Engine decides which personas act for a given (tier, interaction
// level) pair. Draws are independent per persona, walked in roster order
// so that a fixed-seed source yields reproducible outcomes.
type Engine struct {
	table *policy.Table
	rng   Rand
}

// NewEngine creates a probability engine over a validated policy table.
func NewEngine(table *policy.Table, rng Rand) *Engine {
	return &Engine{table: table, rng: rng}
}

// ReactingPersonas draws the persona set for a REACT: every available
// persona independently draws against the base probability, then the set
// is uniformly subsampled down to max_personas when it overshoots.
func (e *Engine) ReactingPersonas(tier policy.Tier, level policy.InteractionLevel) ([]string, error) {
	p, err := e.table.Level(tier, level)
	if err != nil {
		return nil, err
	}

	selected := e.draw(p.React.Personas, p.React.BaseProbability)
	return e.subsample(selected, p.React.MaxPersonas), nil
}

// ReplyingPersonas draws the persona set for a REPLY on the user's
// entryNumber-th journal entry of the current calendar day (1-based).
// The draw probability follows the decay table, and premium tiers with a
// configured minimum get a first-entry top-up from the unselected pool.
func (e *Engine) ReplyingPersonas(tier policy.Tier, level policy.InteractionLevel, entryNumber int) ([]string, error) {
	if entryNumber < 1 {
		return nil, fmt.Errorf("entry number must be >= 1, got %d", entryNumber)
	}

	p, err := e.table.Level(tier, level)
	if err != nil {
		return nil, err
	}

	idx := entryNumber - 1
	if idx >= len(p.Reply.DecayRates) {
		idx = len(p.Reply.DecayRates) - 1
	}
	prob := p.Reply.DecayRates[idx]

	selected := e.draw(p.Reply.Personas, prob)

	if entryNumber == 1 && len(selected) < p.Reply.MinPersonasFirstEntry {
		selected = e.topUp(selected, p.Reply.Personas, p.Reply.MinPersonasFirstEntry)
		logrus.Debugf("first-entry minimum applied for tier=%s level=%s: %d personas", tier, level, len(selected))
	}

	return e.subsample(selected, p.Reply.MaxPersonas), nil
}

// draw performs one independent Bernoulli draw per persona in roster order.
func (e *Engine) draw(personas []string, prob float64) []string {
	var selected []string
	for _, persona := range personas {
		if e.rng.Float64() < prob {
			selected = append(selected, persona)
		}
	}
	return selected
}

// subsample uniformly reduces selected down to max, preserving roster order.
func (e *Engine) subsample(selected []string, max int) []string {
	if len(selected) <= max {
		return selected
	}

	perm := e.rng.Perm(len(selected))[:max]
	sort.Ints(perm)
	kept := make([]string, 0, max)
	for _, i := range perm {
		kept = append(kept, selected[i])
	}
	return kept
}

// topUp randomly samples additional personas from the unselected pool
// until min is reached.
func (e *Engine) topUp(selected, roster []string, min int) []string {
	chosen := make(map[string]bool, len(selected))
	for _, p := range selected {
		chosen[p] = true
	}

	var pool []string
	for _, p := range roster {
		if !chosen[p] {
			pool = append(pool, p)
		}
	}

	for _, i := range e.rng.Perm(len(pool)) {
		if len(selected) >= min {
			break
		}
		selected = append(selected, pool[i])
	}
	return selected
}
