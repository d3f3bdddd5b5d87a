package recommend

import (
	"fmt"
	"strings"

	"github.com/Adidier/agents/internal/config"
)

// Tier is a coarse price classification.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// ParseTier accepts a tier name as reported by a price producer.
// "normal" and "moderate" are treated as medium.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "low_price":
		return TierLow, nil
	case "medium", "moderate", "normal":
		return TierMedium, nil
	case "high", "high_price":
		return TierHigh, nil
	case "critical":
		return TierCritical, nil
	default:
		return "", fmt.Errorf("unknown price tier %q", s)
	}
}

// TierFromRatio classifies price / average price against the configured boundaries.
func TierFromRatio(ratio float64, tiers config.PriceTiersConfig) Tier {
	switch {
	case ratio < tiers.LowMax:
		return TierLow
	case ratio <= tiers.MediumMax:
		return TierMedium
	case ratio <= tiers.HighMax:
		return TierHigh
	default:
		return TierCritical
	}
}
