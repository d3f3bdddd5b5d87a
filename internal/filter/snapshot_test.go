package filter

import (
	"testing"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/stretchr/testify/assert"
)

func testSnapshot(ts time.Time) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		ID:        "00000000-0000-0000-0000-000000000001",
		Timestamp: ts,
		Records: map[string]*telemetry.TelemetryRecord{
			"a": {ParticipantID: "a", Name: "battery-east", Status: telemetry.FetchStatusOK},
			"b": {ParticipantID: "b", Name: "price-feed", Status: telemetry.FetchStatusTimeout},
		},
		Recommendation: &telemetry.Recommendation{Action: telemetry.ActionHold},
	}
}

func TestCriteriaMatches(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := testSnapshot(ts)

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"no filters", Criteria{}, true},
		{"since before", Criteria{SinceTimestampMs: ts.Add(-time.Second).UnixMilli()}, true},
		{"since after", Criteria{SinceTimestampMs: ts.Add(time.Second).UnixMilli()}, false},
		{"until before", Criteria{UntilTimestampMs: ts.Add(-time.Second).UnixMilli()}, false},
		{"until equal", Criteria{UntilTimestampMs: ts.UnixMilli()}, true},
		{"action match", Criteria{Action: telemetry.ActionHold}, true},
		{"action mismatch", Criteria{Action: telemetry.ActionCharge}, false},
		{"participant glob", Criteria{ParticipantGlob: "battery-*"}, true},
		{"participant glob miss", Criteria{ParticipantGlob: "solar-*"}, false},
		{"status", Criteria{Status: telemetry.FetchStatusTimeout}, true},
		{"status miss", Criteria{Status: telemetry.FetchStatusMalformed}, false},
		{"glob and status on same record", Criteria{ParticipantGlob: "price-*", Status: telemetry.FetchStatusTimeout}, true},
		{"glob and status on different records", Criteria{ParticipantGlob: "battery-*", Status: telemetry.FetchStatusTimeout}, false},
		{"bad glob never matches", Criteria{ParticipantGlob: "["}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(s))
		})
	}
}

func TestCriteriaMatches_NoRecommendation(t *testing.T) {
	s := testSnapshot(time.Now())
	s.Recommendation = nil
	c := Criteria{Action: telemetry.ActionHold}
	assert.False(t, c.Matches(s))
}

func TestHasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{Status: telemetry.FetchStatusOK}).HasFilters())
	assert.True(t, (&Criteria{ParticipantGlob: "*"}).HasFilters())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Criteria{ParticipantGlob: "bat*", Action: telemetry.ActionCharge}).Validate())
	assert.Error(t, (&Criteria{ParticipantGlob: "["}).Validate())
	assert.Error(t, (&Criteria{Action: "sell"}).Validate())
	assert.Error(t, (&Criteria{Status: "lost"}).Validate())
}
