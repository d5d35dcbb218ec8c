package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default table failed validation: %v", err)
	}
}

func TestValidateRejectsMissingPair(t *testing.T) {
	table := Default()
	delete(table.levels, Key{Tier: TierPremium, Level: LevelHigh})

	if err := table.Validate(); err == nil {
		t.Fatal("expected validation error for missing (premium, high) policy")
	}
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LevelPolicy)
	}{
		{
			name: "increasing decay rates",
			mutate: func(p *LevelPolicy) {
				p.Reply.DecayRates = []float64{0.5, 0.8}
			},
		},
		{
			name: "probability above one",
			mutate: func(p *LevelPolicy) {
				p.React.BaseProbability = 1.5
			},
		},
		{
			name: "max personas above roster",
			mutate: func(p *LevelPolicy) {
				p.React.MaxPersonas = len(p.React.Personas) + 1
			},
		},
		{
			name: "min above max",
			mutate: func(p *LevelPolicy) {
				p.Reply.MinPersonasFirstEntry = p.Reply.MaxPersonas + 1
			},
		},
		{
			name: "zero daily cap",
			mutate: func(p *LevelPolicy) {
				p.DailyCap = 0
			},
		},
		{
			name: "empty decay rates",
			mutate: func(p *LevelPolicy) {
				p.Reply.DecayRates = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Default()
			key := Key{Tier: TierFree, Level: LevelModerate}
			p := table.levels[key]
			tt.mutate(&p)
			table.levels[key] = p

			if err := table.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseTierAndLevel(t *testing.T) {
	if _, err := ParseTier("gold"); err == nil {
		t.Error("expected error for unknown tier")
	}
	if _, err := ParseLevel("extreme"); err == nil {
		t.Error("expected error for unknown level")
	}
	tier, err := ParseTier("premium")
	if err != nil || tier != TierPremium {
		t.Errorf("ParseTier(premium) = %v, %v", tier, err)
	}
	level, err := ParseLevel("high")
	if err != nil || level != LevelHigh {
		t.Errorf("ParseLevel(high) = %v, %v", level, err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
tiers:
  free:
    minimal:
      react:
        base_probability: 0.25
        max_personas: 1
        personas: [pulse]
      reply:
        decay_rates: [0.2, 0.1]
        max_personas: 1
        personas: [sage]
      daily_cap: 1
affinity:
  pulse:
    sleep: 0.9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p, err := table.Level(TierFree, LevelMinimal)
	if err != nil {
		t.Fatal(err)
	}
	if p.React.BaseProbability != 0.25 {
		t.Errorf("overlay not applied: base_probability = %v", p.React.BaseProbability)
	}

	// Untouched pairs keep defaults.
	def, err := table.Level(TierPremium, LevelModerate)
	if err != nil {
		t.Fatal(err)
	}
	if def.Reply.MinPersonasFirstEntry != 2 {
		t.Errorf("default (premium, moderate) policy lost: min = %d", def.Reply.MinPersonasFirstEntry)
	}

	if got := table.Affinity(PersonaPulse, "sleep"); got != 0.9 {
		t.Errorf("affinity overlay not applied: %v", got)
	}
	if got := table.Affinity(PersonaHaven, "anxiety"); got == 0 {
		t.Errorf("default affinity lost for haven/anxiety")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_REACT_PROB", "0.75")

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
tiers:
  free:
    high:
      react:
        base_probability: ${TEST_REACT_PROB:0.5}
        max_personas: 1
        personas: [pulse]
      reply:
        decay_rates: [0.5]
        max_personas: 1
        personas: [sage]
      daily_cap: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, err := table.Level(TierFree, LevelHigh)
	if err != nil {
		t.Fatal(err)
	}
	if p.React.BaseProbability != 0.75 {
		t.Errorf("env expansion failed: base_probability = %v", p.React.BaseProbability)
	}
}
