package policy

// Persona names. Each persona has a distinct tone and topic affinity;
// the personality content itself lives in the response generator.
const (
	PersonaPulse = "pulse" // energizing, short check-ins
	PersonaHaven = "haven" // grounding, calming
	PersonaAtlas = "atlas" // strategic, work and planning
	PersonaSage  = "sage"  // reflective default
)

// DefaultPersonas is the full roster in default preference order.
var DefaultPersonas = []string{PersonaPulse, PersonaSage, PersonaHaven, PersonaAtlas}

// Default returns the compiled-in policy table. It is used when no
// policy file is configured and as the base that a policy file overlays.
func Default() *Table {
	return &Table{
		levels: map[Key]LevelPolicy{
			{TierFree, LevelMinimal}: {
				React:    ReactPolicy{BaseProbability: 0.5, MaxPersonas: 1, Personas: []string{PersonaPulse}},
				Reply:    ReplyPolicy{DecayRates: []float64{0.3, 0.15, 0.05}, MaxPersonas: 1, Personas: []string{PersonaSage}},
				DailyCap: 1,
			},
			{TierFree, LevelModerate}: {
				React:    ReactPolicy{BaseProbability: 0.6, MaxPersonas: 2, Personas: []string{PersonaPulse, PersonaSage}},
				Reply:    ReplyPolicy{DecayRates: []float64{0.5, 0.25, 0.1}, MaxPersonas: 2, Personas: []string{PersonaSage, PersonaHaven}},
				DailyCap: 2,
			},
			{TierFree, LevelHigh}: {
				React:    ReactPolicy{BaseProbability: 0.7, MaxPersonas: 2, Personas: []string{PersonaPulse, PersonaSage}},
				Reply:    ReplyPolicy{DecayRates: []float64{0.7, 0.4, 0.2, 0.1}, MaxPersonas: 2, Personas: []string{PersonaSage, PersonaHaven, PersonaPulse}},
				DailyCap: 3,
			},
			{TierPremium, LevelMinimal}: {
				React:    ReactPolicy{BaseProbability: 0.6, MaxPersonas: 2, Personas: []string{PersonaPulse, PersonaSage}},
				Reply:    ReplyPolicy{DecayRates: []float64{0.5, 0.3, 0.15}, MaxPersonas: 2, Personas: []string{PersonaSage, PersonaHaven}},
				DailyCap: 2,
			},
			{TierPremium, LevelModerate}: {
				React: ReactPolicy{BaseProbability: 0.8, MaxPersonas: 3, Personas: []string{PersonaPulse, PersonaSage, PersonaHaven}},
				Reply: ReplyPolicy{
					DecayRates:            []float64{1.0, 0.6, 0.3, 0.15},
					MaxPersonas:           3,
					Personas:              DefaultPersonas,
					MinPersonasFirstEntry: 2,
				},
				DailyCap: 4,
			},
			{TierPremium, LevelHigh}: {
				React: ReactPolicy{BaseProbability: 0.9, MaxPersonas: 3, Personas: []string{PersonaPulse, PersonaSage, PersonaHaven}},
				Reply: ReplyPolicy{
					DecayRates:            []float64{1.0, 0.7, 0.4, 0.2},
					MaxPersonas:           3,
					Personas:              DefaultPersonas,
					MinPersonasFirstEntry: 2,
				},
				DailyCap: 6,
			},
		},
		affinity: defaultAffinity(),
	}
}

// defaultAffinity holds hand-tuned persona topic weights. Treat as a
// replaceable static table; a policy file can overlay individual entries.
func defaultAffinity() map[string]map[string]float64 {
	return map[string]map[string]float64{
		PersonaPulse: {
			"gratitude": 0.8,
			"health":    0.7,
			"sleep":     0.4,
		},
		PersonaHaven: {
			"anxiety":     0.9,
			"work_stress": 0.7,
			"sleep":       0.6,
		},
		PersonaAtlas: {
			"work_stress":   0.9,
			"relationships": 0.3,
		},
		PersonaSage: {
			"relationships": 0.8,
			"gratitude":     0.6,
			"anxiety":       0.5,
		},
	}
}
