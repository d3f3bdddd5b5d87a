package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Adidier/agents/internal/logger"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when COORDINATOR_CONFIG is unset.
const DefaultPath = "coordinator.yml"

// Config represents the top-level coordinator.yml configuration
type Config struct {
	Version        string               `yaml:"version"`
	Instance       string               `yaml:"instance"` // Namespace for Redis keys
	Server         ServerConfig         `yaml:"server"`
	Polling        PollingConfig        `yaml:"polling"`
	Registry       RegistryConfig       `yaml:"registry"`
	Persistence    PersistenceConfig    `yaml:"persistence"`
	Recommendation RecommendationConfig `yaml:"recommendation"`
	Categories     Categories           `yaml:"categories"`
	Logging        logger.Config        `yaml:"logging"`
}

// ServerConfig controls the registration API listener
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// PollingConfig controls the aggregation cadence
type PollingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	CycleDeadline time.Duration `yaml:"cycle_deadline"`
	StatusPath    string        `yaml:"status_path"` // Appended to each participant address
}

// RegistryConfig controls participant expiry and audit dumps
type RegistryConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	AuditInterval time.Duration `yaml:"audit_interval"`
}

// PersistenceConfig addresses the primary sink and the fallback file
type PersistenceConfig struct {
	RedisURL     string        `yaml:"redis_url"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	FallbackPath string        `yaml:"fallback_path"`
}

// RecommendationConfig holds the rule thresholds. SOC thresholds are percentages.
type RecommendationConfig struct {
	ChargeThreshold    float64          `yaml:"charge_threshold"`
	DischargeThreshold float64          `yaml:"discharge_threshold"`
	FullThreshold      float64          `yaml:"full_threshold"`
	PriceTiers         PriceTiersConfig `yaml:"price_tiers"`
}

// PriceTiersConfig holds price ratio boundaries (price / average price)
type PriceTiersConfig struct {
	LowMax    float64 `yaml:"low_max"`
	MediumMax float64 `yaml:"medium_max"`
	HighMax   float64 `yaml:"high_max"`
}

// Category maps participant capabilities to the fields a status response must carry
type Category struct {
	Name           string   `yaml:"-"`
	Capabilities   []string `yaml:"capabilities"`
	RequiredFields []string `yaml:"required_fields"`
}

// Categories keeps the order in which categories appear in the file.
// The first category whose capabilities match a participant wins.
type Categories []Category

// UnmarshalYAML decodes a mapping of name → category preserving source order.
func (c *Categories) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("categories must be a mapping, got line %d", value.Line)
	}

	out := make(Categories, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var cat Category
		if err := value.Content[i+1].Decode(&cat); err != nil {
			return fmt.Errorf("category '%s': %w", value.Content[i].Value, err)
		}
		cat.Name = value.Content[i].Value
		out = append(out, cat)
	}
	*c = out
	return nil
}

// Lookup returns the category with the given name.
func (c Categories) Lookup(name string) (Category, bool) {
	for _, cat := range c {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

// DefaultCategories returns the built-in producer categories.
func DefaultCategories() Categories {
	return Categories{
		{Name: "battery", Capabilities: []string{"battery"}, RequiredFields: []string{"soc"}},
		{Name: "price", Capabilities: []string{"price"}, RequiredFields: []string{"price"}},
		{Name: "load", Capabilities: []string{"load"}, RequiredFields: []string{"current_load_kw"}},
		{Name: "solar", Capabilities: []string{"solar"}, RequiredFields: []string{"power_kw"}},
		{Name: "weather", Capabilities: []string{"weather"}, RequiredFields: []string{"temperature"}},
	}
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	return &Config{
		Version:  "1.0",
		Instance: "default",
		Server:   ServerConfig{Listen: ":8001"},
		Polling: PollingConfig{
			Interval:      10 * time.Second,
			FetchTimeout:  3 * time.Second,
			CycleDeadline: 8 * time.Second,
			StatusPath:    "/status",
		},
		Registry: RegistryConfig{
			TTL:           30 * time.Second,
			SweepInterval: 5 * time.Second,
			AuditInterval: 60 * time.Second,
		},
		Persistence: PersistenceConfig{
			RedisURL:     "redis://localhost:6379",
			WriteTimeout: 2 * time.Second,
			FallbackPath: "coordinator_fallback.jsonl",
		},
		Recommendation: RecommendationConfig{
			ChargeThreshold:    30,
			DischargeThreshold: 60,
			FullThreshold:      95,
			PriceTiers:         PriceTiersConfig{LowMax: 0.8, MediumMax: 1.2, HighMax: 1.5},
		},
		Categories: DefaultCategories(),
		Logging:    logger.Config{Level: "info", Output: "stdout"},
	}
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if strings.TrimSpace(c.Instance) == "" {
		return fmt.Errorf("instance is required")
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("polling: %w", err)
	}

	if c.Registry.TTL <= 0 {
		return fmt.Errorf("registry.ttl must be positive, got %s", c.Registry.TTL)
	}
	if c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry.sweep_interval must be positive, got %s", c.Registry.SweepInterval)
	}
	if c.Registry.AuditInterval <= 0 {
		return fmt.Errorf("registry.audit_interval must be positive, got %s", c.Registry.AuditInterval)
	}

	if c.Persistence.RedisURL == "" {
		return fmt.Errorf("persistence.redis_url is required")
	}
	if c.Persistence.WriteTimeout <= 0 {
		return fmt.Errorf("persistence.write_timeout must be positive, got %s", c.Persistence.WriteTimeout)
	}
	if c.Persistence.FallbackPath == "" {
		return fmt.Errorf("persistence.fallback_path is required")
	}

	if err := c.Recommendation.Validate(); err != nil {
		return fmt.Errorf("recommendation: %w", err)
	}

	seen := make(map[string]bool)
	for _, cat := range c.Categories {
		if len(cat.Capabilities) == 0 {
			return fmt.Errorf("category '%s': at least one capability is required", cat.Name)
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category '%s'", cat.Name)
		}
		seen[cat.Name] = true
	}

	return nil
}

// Validate checks fetch_timeout <= cycle_deadline <= interval.
func (p *PollingConfig) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", p.Interval)
	}
	if p.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", p.FetchTimeout)
	}
	if p.CycleDeadline < p.FetchTimeout {
		return fmt.Errorf("cycle_deadline (%s) must be >= fetch_timeout (%s)", p.CycleDeadline, p.FetchTimeout)
	}
	if p.CycleDeadline > p.Interval {
		return fmt.Errorf("cycle_deadline (%s) must be <= interval (%s)", p.CycleDeadline, p.Interval)
	}
	if !strings.HasPrefix(p.StatusPath, "/") {
		return fmt.Errorf("status_path must start with '/', got %q", p.StatusPath)
	}
	return nil
}

// Validate checks threshold ranges and tier ordering.
func (r *RecommendationConfig) Validate() error {
	for name, v := range map[string]float64{
		"charge_threshold":    r.ChargeThreshold,
		"discharge_threshold": r.DischargeThreshold,
		"full_threshold":      r.FullThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %g", name, v)
		}
	}
	if r.ChargeThreshold >= r.DischargeThreshold {
		return fmt.Errorf("charge_threshold (%g) must be below discharge_threshold (%g)", r.ChargeThreshold, r.DischargeThreshold)
	}

	t := r.PriceTiers
	if t.LowMax <= 0 || t.LowMax >= t.MediumMax || t.MediumMax >= t.HighMax {
		return fmt.Errorf("price_tiers must be strictly increasing and positive (low_max=%g, medium_max=%g, high_max=%g)",
			t.LowMax, t.MediumMax, t.HighMax)
	}
	return nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load reads and validates coordinator.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// ApplyEnv overrides file values from the environment. lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("REDIS_URL"); ok && v != "" {
		c.Persistence.RedisURL = v
	}
	if v, ok := lookup("COORDINATOR_INSTANCE"); ok && v != "" {
		c.Instance = v
	}
	if v, ok := lookup("COORDINATOR_LISTEN"); ok && v != "" {
		c.Server.Listen = v
	}
}
