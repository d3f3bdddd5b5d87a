// Package recommend derives an advisory action from a snapshot's records.
package recommend

import (
	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/pkg/telemetry"
)

// Engine evaluates an ordered rule list. It holds no mutable state.
type Engine struct {
	rules []Rule
	tiers config.PriceTiersConfig
}

// New creates an engine with the default rules for cfg.
func New(cfg config.RecommendationConfig) *Engine {
	return NewWithRules(cfg.PriceTiers, DefaultRules(cfg))
}

// NewWithRules creates an engine with a custom rule list.
// The list should end with a rule that always matches.
func NewWithRules(tiers config.PriceTiersConfig, rules []Rule) *Engine {
	return &Engine{rules: rules, tiers: tiers}
}

// Evaluate returns the recommendation for a snapshot's records.
func (e *Engine) Evaluate(records map[string]*telemetry.TelemetryRecord) *telemetry.Recommendation {
	in := Extract(records, e.tiers)

	for _, rule := range e.rules {
		if rule.When(in) {
			return &telemetry.Recommendation{
				Action:     rule.Action,
				Rule:       rule.Name,
				Rationale:  rule.Rationale(in),
				InputsUsed: in.Used(),
			}
		}
	}

	return &telemetry.Recommendation{
		Action:     telemetry.ActionHold,
		Rule:       "default",
		Rationale:  "no rule matched",
		InputsUsed: in.Used(),
	}
}
