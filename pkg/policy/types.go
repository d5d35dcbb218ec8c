package policy

import "fmt"

// Tier is the paid tier of a user account.
type Tier string

// InteractionLevel is the per-user configured engagement intensity.
// It is independent of the paid tier.
type InteractionLevel string

// ResponseType distinguishes low-commitment reactions from coordinated replies.
type ResponseType string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"

	LevelMinimal  InteractionLevel = "minimal"
	LevelModerate InteractionLevel = "moderate"
	LevelHigh     InteractionLevel = "high"

	ResponseReact ResponseType = "react"
	ResponseReply ResponseType = "reply"
)

// Tiers and Levels enumerate all valid values, used for validation.
var (
	Tiers  = []Tier{TierFree, TierPremium}
	Levels = []InteractionLevel{LevelMinimal, LevelModerate, LevelHigh}
)

// ParseTier converts a raw string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown tier: %q", s)
}

// ParseLevel converts a raw string into an InteractionLevel.
func ParseLevel(s string) (InteractionLevel, error) {
	switch InteractionLevel(s) {
	case LevelMinimal, LevelModerate, LevelHigh:
		return InteractionLevel(s), nil
	}
	return "", fmt.Errorf("unknown interaction level: %q", s)
}

// ReactPolicy governs independent low-commitment reactions.
type ReactPolicy struct {
	BaseProbability float64  `yaml:"base_probability"`
	MaxPersonas     int      `yaml:"max_personas"`
	Personas        []string `yaml:"personas"`
}

// ReplyPolicy governs coordinated multi-persona replies. The draw
// probability for a given entry is decay_rates[min(n-1, len-1)] where n
// is the user's entry ordinal for the current calendar day.
type ReplyPolicy struct {
	DecayRates  []float64 `yaml:"decay_rates"`
	MaxPersonas int       `yaml:"max_personas"`
	Personas    []string  `yaml:"personas"`

	// MinPersonasFirstEntry guarantees a floor of replying personas on
	// the first entry of the day. Zero disables the guarantee.
	MinPersonasFirstEntry int `yaml:"min_personas_first_entry"`
}

// LevelPolicy is the full policy for one (tier, interaction level) pair.
type LevelPolicy struct {
	React    ReactPolicy `yaml:"react"`
	Reply    ReplyPolicy `yaml:"reply"`
	DailyCap int         `yaml:"daily_cap"`
}

// Key identifies one (tier, interaction level) policy slot.
type Key struct {
	Tier  Tier
	Level InteractionLevel
}

// Table holds the complete engagement policy: per-pair level policies
// plus the persona topic-affinity weights used for persona selection.
type Table struct {
	levels   map[Key]LevelPolicy
	affinity map[string]map[string]float64
}

// Level returns the policy for a (tier, level) pair. The table is
// validated at construction, so a missing pair is a programming error.
func (t *Table) Level(tier Tier, level InteractionLevel) (LevelPolicy, error) {
	p, ok := t.levels[Key{Tier: tier, Level: level}]
	if !ok {
		return LevelPolicy{}, fmt.Errorf("no policy for tier=%s level=%s", tier, level)
	}
	return p, nil
}

// Affinity returns the topic-affinity weight of a persona for a topic
// bucket. Unknown pairs weigh zero.
func (t *Table) Affinity(persona, topic string) float64 {
	return t.affinity[persona][topic]
}

// Validate checks the table for structural errors. A table that fails
// validation blocks scheduler startup.
func (t *Table) Validate() error {
	for _, tier := range Tiers {
		for _, level := range Levels {
			p, ok := t.levels[Key{Tier: tier, Level: level}]
			if !ok {
				return fmt.Errorf("missing policy for tier=%s level=%s", tier, level)
			}
			if err := validateLevel(p); err != nil {
				return fmt.Errorf("policy tier=%s level=%s: %w", tier, level, err)
			}
		}
	}
	return nil
}

func validateLevel(p LevelPolicy) error {
	if p.React.BaseProbability < 0 || p.React.BaseProbability > 1 {
		return fmt.Errorf("react base_probability %v out of [0,1]", p.React.BaseProbability)
	}
	if p.React.MaxPersonas < 1 || p.React.MaxPersonas > len(p.React.Personas) {
		return fmt.Errorf("react max_personas %d invalid for %d personas", p.React.MaxPersonas, len(p.React.Personas))
	}
	if len(p.Reply.DecayRates) == 0 {
		return fmt.Errorf("reply decay_rates empty")
	}
	prev := 1.0
	for i, r := range p.Reply.DecayRates {
		if r < 0 || r > 1 {
			return fmt.Errorf("reply decay_rates[%d]=%v out of [0,1]", i, r)
		}
		if r > prev {
			return fmt.Errorf("reply decay_rates must be non-increasing, got %v after %v", r, prev)
		}
		prev = r
	}
	if p.Reply.MaxPersonas < 1 || p.Reply.MaxPersonas > len(p.Reply.Personas) {
		return fmt.Errorf("reply max_personas %d invalid for %d personas", p.Reply.MaxPersonas, len(p.Reply.Personas))
	}
	if p.Reply.MinPersonasFirstEntry < 0 || p.Reply.MinPersonasFirstEntry > p.Reply.MaxPersonas {
		return fmt.Errorf("reply min_personas_first_entry %d exceeds max_personas %d",
			p.Reply.MinPersonasFirstEntry, p.Reply.MaxPersonas)
	}
	if p.DailyCap < 1 {
		return fmt.Errorf("daily_cap must be positive, got %d", p.DailyCap)
	}
	return nil
}
