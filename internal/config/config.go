package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"alchemist/internal/domain"
)

// Config models alchemist.yml.
type Config struct {
	Checks  Checks                       `yaml:"checks"`
	Weights domain.PrioritizationWeights `yaml:"weights"`
	Rules   []domain.RuleDoc             `yaml:"rules"`
	Ingest  struct {
		FillMissingIDs bool `yaml:"fill_missing_ids"`
	} `yaml:"ingest"`
}

// Checks holds the thresholds used by the consistency checks.
type Checks struct {
	Priority struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"priority"`
	// MaxLoadWarning is the max-load-per-phase above which a worker is flagged as suspicious.
	MaxLoadWarning int `yaml:"max_load_warning"`
	// ImbalanceFactor is the multiple of the mean potential workload that triggers an info finding.
	ImbalanceFactor float64 `yaml:"imbalance_factor"`
	MaxHoursPerDay  float64 `yaml:"max_hours_per_day"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with alch config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Checks.Priority.Min < 0 || c.Checks.Priority.Max < c.Checks.Priority.Min {
		return fmt.Errorf("checks.priority must satisfy 0 <= min <= max")
	}
	if c.Checks.MaxLoadWarning < 1 {
		return fmt.Errorf("checks.max_load_warning must be at least 1")
	}
	if c.Checks.ImbalanceFactor <= 0 {
		return fmt.Errorf("checks.imbalance_factor must be positive")
	}
	if c.Checks.MaxHoursPerDay <= 0 {
		return fmt.Errorf("checks.max_hours_per_day must be positive")
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	seen := map[string]bool{}
	for i, doc := range c.Rules {
		if _, err := doc.Rule(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		if seen[doc.ID] {
			return fmt.Errorf("rules[%d]: duplicate rule id %s", i, doc.ID)
		}
		seen[doc.ID] = true
	}
	return nil
}

// BusinessRules converts the configured rule documents. Validate must have passed.
func (c *Config) BusinessRules() ([]domain.BusinessRule, error) {
	out := make([]domain.BusinessRule, 0, len(c.Rules))
	for i, doc := range c.Rules {
		r, err := doc.Rule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "alchemist.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from data
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// RulesFromFile reads a standalone rules file: either a list of rule documents or
// an object with a top-level rules key. Files ending in .json use the camelCase
// wire keys written by export; everything else is read as YAML.
func RulesFromFile(path string) ([]domain.BusinessRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var envelope struct {
			Rules []domain.BusinessRule `json:"rules"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			var list []domain.BusinessRule
			if err2 := json.Unmarshal(data, &list); err2 != nil {
				return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
			}
			return list, nil
		}
		return envelope.Rules, nil
	}
	var docs []domain.RuleDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		var wrapped struct {
			Rules []domain.RuleDoc `yaml:"rules"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
		}
		docs = wrapped.Rules
	}
	cfg := Config{Rules: docs}
	return cfg.BusinessRules()
}

const defaultTemplate = `checks:
  priority:
    min: 1
    max: 5
  max_load_warning: 10
  imbalance_factor: 2.0
  max_hours_per_day: 24

weights:
  priority_level: 30
  fulfillment: 25
  fairness: 20
  efficiency: 15
  skill_match: 10

ingest:
  fill_missing_ids: false

rules: []
`
