package recommend

import (
	"testing"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okRecord(id, category string, fields map[string]any) *telemetry.TelemetryRecord {
	return &telemetry.TelemetryRecord{
		ParticipantID: id,
		Name:          category + "-agent",
		Category:      category,
		Status:        telemetry.FetchStatusOK,
		Fields:        fields,
	}
}

func records(rs ...*telemetry.TelemetryRecord) map[string]*telemetry.TelemetryRecord {
	out := make(map[string]*telemetry.TelemetryRecord, len(rs))
	for _, r := range rs {
		out[r.ParticipantID] = r
	}
	return out
}

func newEngine() *Engine {
	return New(config.Default().Recommendation)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		records    map[string]*telemetry.TelemetryRecord
		wantAction telemetry.Action
		wantRule   string
		rationale  string
	}{
		{
			name: "critical price and high SOC discharges",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.4, "price_tier": "critical"}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 80.0}),
			),
			wantAction: telemetry.ActionDischarge,
			wantRule:   "critical_price_discharge",
			rationale:  "above discharge threshold",
		},
		{
			name: "low price and low SOC charges",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.05, "price_tier": "low"}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 20.0}),
			),
			wantAction: telemetry.ActionCharge,
			wantRule:   "low_price_charge",
			rationale:  "below charge threshold",
		},
		{
			name: "surplus at medium price charges when not full",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.1, "price_ratio": 1.0}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
				okRecord("l1", CategoryLoad, map[string]any{"current_load_kw": 2.0}),
				okRecord("s1", CategorySolar, map[string]any{"power_kw": 5.0}),
			),
			wantAction: telemetry.ActionCharge,
			wantRule:   "surplus_charge",
			rationale:  "generation surplus 3.00 kW",
		},
		{
			name: "surplus at medium price exports when full",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.1, "price_ratio": 1.0}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 98.0}),
				okRecord("l1", CategoryLoad, map[string]any{"current_load_kw": 1.0}),
				okRecord("s1", CategorySolar, map[string]any{"power_kw": 4.0}),
			),
			wantAction: telemetry.ActionExport,
			wantRule:   "surplus_export",
			rationale:  "battery full",
		},
		{
			name: "critical price but low SOC holds",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.5, "price_tier": "critical"}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 40.0}),
			),
			wantAction: telemetry.ActionHold,
			wantRule:   "hold",
			rationale:  "not above discharge threshold",
		},
		{
			name: "medium price without surplus holds",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.1, "price_ratio": 1.0}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
				okRecord("l1", CategoryLoad, map[string]any{"current_load_kw": 6.0}),
				okRecord("s1", CategorySolar, map[string]any{"power_kw": 2.0}),
			),
			wantAction: telemetry.ActionHold,
			wantRule:   "hold",
			rationale:  "no generation surplus (net load 4.00 kW)",
		},
		{
			name: "medium price without load data holds",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.1, "price_ratio": 1.0}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
			),
			wantAction: telemetry.ActionHold,
			wantRule:   "hold",
			rationale:  "load or generation unavailable",
		},
		{
			name: "malformed battery gives insufficient data",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price_tier": "critical"}),
				&telemetry.TelemetryRecord{
					ParticipantID: "b1",
					Name:          "battery-agent",
					Category:      CategoryBattery,
					Status:        telemetry.FetchStatusMalformed,
					Missing:       []string{"soc"},
				},
			),
			wantAction: telemetry.ActionInsufficientData,
			wantRule:   "insufficient_data",
			rationale:  "battery field soc unavailable: participant battery-agent (b1) is malformed (missing [soc])",
		},
		{
			name: "unreachable price gives insufficient data",
			records: records(
				&telemetry.TelemetryRecord{ParticipantID: "p1", Category: CategoryPrice, Status: telemetry.FetchStatusUnreachable},
				okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
			),
			wantAction: telemetry.ActionInsufficientData,
			wantRule:   "insufficient_data",
			rationale:  "price field unavailable: participant p1 is unreachable",
		},
		{
			name:       "empty snapshot gives insufficient data",
			records:    records(),
			wantAction: telemetry.ActionInsufficientData,
			wantRule:   "insufficient_data",
			rationale:  "no price participant in snapshot; no battery participant in snapshot",
		},
		{
			name: "price without reference gives insufficient data",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price": 0.2}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
			),
			wantAction: telemetry.ActionInsufficientData,
			wantRule:   "insufficient_data",
			rationale:  "price tier not derivable",
		},
		{
			name: "out of range soc gives insufficient data",
			records: records(
				okRecord("p1", CategoryPrice, map[string]any{"price_tier": "low"}),
				okRecord("b1", CategoryBattery, map[string]any{"soc": 140.0}),
			),
			wantAction: telemetry.ActionInsufficientData,
			wantRule:   "insufficient_data",
			rationale:  "reported no valid soc",
		},
	}

	engine := newEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := engine.Evaluate(tt.records)
			require.NotNil(t, rec)
			assert.Equal(t, tt.wantAction, rec.Action)
			assert.Equal(t, tt.wantRule, rec.Rule)
			assert.Contains(t, rec.Rationale, tt.rationale)
		})
	}
}

func TestEvaluate_DerivesTierFromAveragePrice(t *testing.T) {
	rec := newEngine().Evaluate(records(
		okRecord("p1", CategoryPrice, map[string]any{"price": 0.32, "average_price": 0.2}),
		okRecord("b1", CategoryBattery, map[string]any{"soc": 75.0}),
	))

	assert.Equal(t, telemetry.ActionDischarge, rec.Action)
	assert.Equal(t, "critical", rec.InputsUsed["price_tier"])
	assert.InDelta(t, 1.6, rec.InputsUsed["price_ratio"], 1e-9)
	assert.Equal(t, 75.0, rec.InputsUsed["soc"])
	assert.Equal(t, "b1", rec.InputsUsed["soc_source"])
}

func TestEvaluate_FirstBatteryByIDWins(t *testing.T) {
	rec := newEngine().Evaluate(records(
		okRecord("p1", CategoryPrice, map[string]any{"price_tier": "critical"}),
		okRecord("b2", CategoryBattery, map[string]any{"soc": 10.0}),
		okRecord("b1", CategoryBattery, map[string]any{"soc": 90.0}),
	))

	assert.Equal(t, telemetry.ActionDischarge, rec.Action)
	assert.Equal(t, 90.0, rec.InputsUsed["soc"])
}

func TestEvaluate_SkipsUnusableBatteryForLaterOne(t *testing.T) {
	rec := newEngine().Evaluate(records(
		okRecord("p1", CategoryPrice, map[string]any{"price_tier": "critical"}),
		&telemetry.TelemetryRecord{
			ParticipantID: "b1",
			Name:          "battery-agent",
			Category:      CategoryBattery,
			Status:        telemetry.FetchStatusMalformed,
			Missing:       []string{"soc"},
		},
		okRecord("b2", CategoryBattery, map[string]any{"soc": 90.0}),
	))

	assert.Equal(t, telemetry.ActionDischarge, rec.Action)
	assert.Equal(t, 90.0, rec.InputsUsed["soc"])
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	in := records(
		okRecord("p1", CategoryPrice, map[string]any{"price": 0.1, "price_ratio": 1.0}),
		okRecord("b1", CategoryBattery, map[string]any{"soc": 50.0}),
		okRecord("l1", CategoryLoad, map[string]any{"current_load_kw": 1.5}),
		okRecord("l2", CategoryLoad, map[string]any{"current_load_kw": 2.5}),
		okRecord("s1", CategorySolar, map[string]any{"power_kw": 3.0}),
		okRecord("s2", CategorySolar, map[string]any{"power_kw": 3.0}),
	)

	engine := newEngine()
	first := engine.Evaluate(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, engine.Evaluate(in))
	}
	assert.Equal(t, 4.0, first.InputsUsed["load_kw"])
	assert.Equal(t, 6.0, first.InputsUsed["generation_kw"])
	assert.Equal(t, -2.0, first.InputsUsed["net_load_kw"])
}

func TestCustomRules(t *testing.T) {
	rules := []Rule{{
		Name:      "always_export",
		Action:    telemetry.ActionExport,
		When:      func(Inputs) bool { return true },
		Rationale: func(Inputs) string { return "forced" },
	}}

	rec := NewWithRules(config.Default().Recommendation.PriceTiers, rules).Evaluate(records())
	assert.Equal(t, telemetry.ActionExport, rec.Action)
	assert.Equal(t, "forced", rec.Rationale)

	rec = NewWithRules(config.Default().Recommendation.PriceTiers, nil).Evaluate(records())
	assert.Equal(t, telemetry.ActionHold, rec.Action)
	assert.Equal(t, "default", rec.Rule)
}

func TestTierFromRatio(t *testing.T) {
	tiers := config.Default().Recommendation.PriceTiers

	tests := []struct {
		ratio float64
		want  Tier
	}{
		{0.5, TierLow},
		{0.8, TierMedium},
		{1.2, TierMedium},
		{1.21, TierHigh},
		{1.5, TierHigh},
		{1.51, TierCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFromRatio(tt.ratio, tiers), "ratio %v", tt.ratio)
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{
		"low":        TierLow,
		"LOW_PRICE":  TierLow,
		"normal":     TierMedium,
		" moderate ": TierMedium,
		"high_price": TierHigh,
		"critical":   TierCritical,
	} {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseTier("extreme")
	assert.Error(t, err)
}
