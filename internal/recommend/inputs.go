package recommend

import (
	"fmt"
	"sort"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/pkg/telemetry"
)

// Category names read by the engine.
const (
	CategoryBattery = "battery"
	CategoryPrice   = "price"
	CategoryLoad    = "load"
	CategorySolar   = "solar"
)

// Inputs are the snapshot-derived values rules are evaluated against.
type Inputs struct {
	Tier      Tier
	HasTier   bool
	Ratio     float64
	HasRatio  bool
	SOC       float64
	HasSOC    bool
	LoadKW    float64
	HasLoad   bool
	GenKW     float64
	HasGen    bool
	priceWhy  string
	socWhy    string
	socSource string
}

// Complete reports whether every required input is present.
func (in Inputs) Complete() bool {
	return in.HasTier && in.HasSOC
}

// HasNetLoad reports whether both load and generation are known.
func (in Inputs) HasNetLoad() bool {
	return in.HasLoad && in.HasGen
}

// NetLoadKW is load minus generation.
func (in Inputs) NetLoadKW() float64 {
	return in.LoadKW - in.GenKW
}

// Surplus reports whether generation exceeds load.
func (in Inputs) Surplus() bool {
	return in.HasNetLoad() && in.GenKW > in.LoadKW
}

// Used returns the inputs as recorded on a recommendation.
func (in Inputs) Used() map[string]any {
	used := make(map[string]any)
	if in.HasTier {
		used["price_tier"] = string(in.Tier)
	}
	if in.HasRatio {
		used["price_ratio"] = in.Ratio
	}
	if in.HasSOC {
		used["soc"] = in.SOC
		used["soc_source"] = in.socSource
	}
	if in.HasLoad {
		used["load_kw"] = in.LoadKW
	}
	if in.HasGen {
		used["generation_kw"] = in.GenKW
	}
	if in.HasNetLoad() {
		used["net_load_kw"] = in.NetLoadKW()
	}
	return used
}

// Extract reads price tier, SOC, load and generation from records.
// Records are visited in participant ID order so the result is deterministic.
func Extract(records map[string]*telemetry.TelemetryRecord, tiers config.PriceTiersConfig) Inputs {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var in Inputs
	for _, id := range ids {
		r := records[id]
		switch r.Category {
		case CategoryPrice:
			if !in.HasTier {
				in.readPrice(r, tiers)
			}
		case CategoryBattery:
			if !in.HasSOC {
				in.readSOC(r)
			}
		case CategoryLoad:
			if v, ok := r.Number("current_load_kw"); ok && r.OK() {
				in.LoadKW += v
				in.HasLoad = true
			}
		case CategorySolar:
			if v, ok := r.Number("power_kw"); ok && r.OK() {
				in.GenKW += v
				in.HasGen = true
			}
		}
	}

	if !in.HasTier && in.priceWhy == "" {
		in.priceWhy = "no price participant in snapshot"
	}
	if !in.HasSOC && in.socWhy == "" {
		in.socWhy = "no battery participant in snapshot"
	}
	return in
}

func (in *Inputs) readPrice(r *telemetry.TelemetryRecord, tiers config.PriceTiersConfig) {
	if !r.OK() {
		in.priceWhy = fmt.Sprintf("price field unavailable: %s is %s", describe(r), r.Status)
		return
	}

	if s, ok := r.Text("price_tier"); ok {
		if tier, err := ParseTier(s); err == nil {
			in.Tier, in.HasTier = tier, true
			return
		}
	}

	if ratio, ok := r.Number("price_ratio"); ok {
		in.setRatio(ratio, tiers)
		return
	}

	price, okPrice := r.Number("price")
	avg, okAvg := r.Number("average_price")
	if okPrice && okAvg && avg > 0 {
		in.setRatio(price/avg, tiers)
		return
	}

	in.priceWhy = fmt.Sprintf("price tier not derivable from %s: no price_tier, price_ratio or average_price", describe(r))
}

func (in *Inputs) setRatio(ratio float64, tiers config.PriceTiersConfig) {
	in.Ratio, in.HasRatio = ratio, true
	in.Tier, in.HasTier = TierFromRatio(ratio, tiers), true
}

func (in *Inputs) readSOC(r *telemetry.TelemetryRecord) {
	if !r.OK() {
		if len(r.Missing) > 0 {
			in.socWhy = fmt.Sprintf("battery field soc unavailable: %s is %s (missing %v)", describe(r), r.Status, r.Missing)
		} else {
			in.socWhy = fmt.Sprintf("battery field soc unavailable: %s is %s", describe(r), r.Status)
		}
		return
	}

	soc, ok := r.Number("soc")
	if !ok || soc < 0 || soc > 100 {
		in.socWhy = fmt.Sprintf("battery field soc unavailable: %s reported no valid soc", describe(r))
		return
	}
	in.SOC, in.HasSOC = soc, true
	in.socSource = r.ParticipantID
}

func describe(r *telemetry.TelemetryRecord) string {
	if r.Name == "" {
		return "participant " + r.ParticipantID
	}
	return fmt.Sprintf("participant %s (%s)", r.Name, r.ParticipantID)
}
