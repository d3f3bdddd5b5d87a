package recommend

import (
	"fmt"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/pkg/telemetry"
)

// Rule is one predicate → action entry. Rules are evaluated in order and the
// first whose When returns true decides the recommendation.
type Rule struct {
	Name      string
	Action    telemetry.Action
	When      func(in Inputs) bool
	Rationale func(in Inputs) string
}

// DefaultRules returns the built-in policy for the given thresholds.
// The final rule always matches.
func DefaultRules(th config.RecommendationConfig) []Rule {
	return []Rule{
		{
			Name:   "insufficient_data",
			Action: telemetry.ActionInsufficientData,
			When:   func(in Inputs) bool { return !in.Complete() },
			Rationale: func(in Inputs) string {
				switch {
				case !in.HasTier && !in.HasSOC:
					return in.priceWhy + "; " + in.socWhy
				case !in.HasTier:
					return in.priceWhy
				default:
					return in.socWhy
				}
			},
		},
		{
			Name:   "critical_price_discharge",
			Action: telemetry.ActionDischarge,
			When: func(in Inputs) bool {
				return in.Tier == TierCritical && in.SOC > th.DischargeThreshold
			},
			Rationale: func(in Inputs) string {
				return fmt.Sprintf("price tier critical and SOC %.1f%% above discharge threshold %.1f%%", in.SOC, th.DischargeThreshold)
			},
		},
		{
			Name:   "low_price_charge",
			Action: telemetry.ActionCharge,
			When: func(in Inputs) bool {
				return in.Tier == TierLow && in.SOC < th.ChargeThreshold
			},
			Rationale: func(in Inputs) string {
				return fmt.Sprintf("price tier low and SOC %.1f%% below charge threshold %.1f%%", in.SOC, th.ChargeThreshold)
			},
		},
		{
			Name:   "surplus_charge",
			Action: telemetry.ActionCharge,
			When: func(in Inputs) bool {
				return in.Tier == TierMedium && in.Surplus() && in.SOC < th.FullThreshold
			},
			Rationale: func(in Inputs) string {
				return fmt.Sprintf("generation surplus %.2f kW at medium price and SOC %.1f%% below full threshold %.1f%%",
					-in.NetLoadKW(), in.SOC, th.FullThreshold)
			},
		},
		{
			Name:   "surplus_export",
			Action: telemetry.ActionExport,
			When: func(in Inputs) bool {
				return in.Tier == TierMedium && in.Surplus()
			},
			Rationale: func(in Inputs) string {
				return fmt.Sprintf("generation surplus %.2f kW at medium price and battery full (SOC %.1f%%)", -in.NetLoadKW(), in.SOC)
			},
		},
		{
			Name:      "hold",
			Action:    telemetry.ActionHold,
			When:      func(Inputs) bool { return true },
			Rationale: func(in Inputs) string { return holdReason(in, th) },
		},
	}
}

// holdReason names the condition that kept every other rule from matching.
func holdReason(in Inputs, th config.RecommendationConfig) string {
	switch in.Tier {
	case TierCritical:
		return fmt.Sprintf("price tier critical but SOC %.1f%% not above discharge threshold %.1f%%", in.SOC, th.DischargeThreshold)
	case TierLow:
		return fmt.Sprintf("price tier low but SOC %.1f%% not below charge threshold %.1f%%", in.SOC, th.ChargeThreshold)
	case TierMedium:
		if !in.HasNetLoad() {
			return "price tier medium and load or generation unavailable"
		}
		return fmt.Sprintf("price tier medium with no generation surplus (net load %.2f kW)", in.NetLoadKW())
	default:
		return fmt.Sprintf("price tier %s; no action favoured", in.Tier)
	}
}
