package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileTable is the YAML shape of a policy file. Entries overlay the
// compiled-in defaults, so a file only needs to name what it changes.
type fileTable struct {
	Tiers    map[string]map[string]LevelPolicy     `yaml:"tiers"`    // tier -> level -> policy
	Affinity map[string]map[string]float64         `yaml:"affinity"` // persona -> topic -> weight
}

// Load reads a policy table from a YAML file, overlaying the defaults.
// Supports environment variable expansion in the form ${VAR} or ${VAR:default}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var file fileTable
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	table := Default()
	for tierStr, levels := range file.Tiers {
		tier, err := ParseTier(tierStr)
		if err != nil {
			return nil, fmt.Errorf("policy file: %w", err)
		}
		for levelStr, p := range levels {
			level, err := ParseLevel(levelStr)
			if err != nil {
				return nil, fmt.Errorf("policy file tier %s: %w", tier, err)
			}
			table.levels[Key{Tier: tier, Level: level}] = p
		}
	}
	for persona, weights := range file.Affinity {
		if table.affinity[persona] == nil {
			table.affinity[persona] = make(map[string]float64)
		}
		for topic, w := range weights {
			table.affinity[persona][topic] = w
		}
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy table: %w", err)
	}

	return table, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
