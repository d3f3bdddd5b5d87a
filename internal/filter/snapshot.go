package filter

import (
	"path/filepath"

	"github.com/Adidier/agents/pkg/telemetry"
)

// Criteria defines filtering criteria for snapshots.
// All filters are ANDed together - a snapshot must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64                 // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64                 // Unix timestamp in milliseconds, 0 = no filter
	Action           telemetry.Action      // Exact match on the recommendation, empty = no filter
	ParticipantGlob  string                // Glob on record names, empty = no filter
	Status           telemetry.FetchStatus // Some record must carry this status, empty = no filter
}

// Matches returns true if the snapshot matches all filter criteria.
// When both ParticipantGlob and Status are set, a single record must satisfy both.
func (c *Criteria) Matches(s *telemetry.Snapshot) bool {
	ms := s.Timestamp.UnixMilli()
	if c.SinceTimestampMs > 0 && ms < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && ms > c.UntilTimestampMs {
		return false
	}

	if c.Action != "" && (s.Recommendation == nil || s.Recommendation.Action != c.Action) {
		return false
	}

	if c.ParticipantGlob == "" && c.Status == "" {
		return true
	}
	for _, r := range s.Records {
		if c.matchesRecord(r) {
			return true
		}
	}
	return false
}

func (c *Criteria) matchesRecord(r *telemetry.TelemetryRecord) bool {
	if c.ParticipantGlob != "" {
		matched, err := filepath.Match(c.ParticipantGlob, r.Name)
		if err != nil || !matched {
			return false
		}
	}
	return c.Status == "" || r.Status == c.Status
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.Action != "" ||
		c.ParticipantGlob != "" ||
		c.Status != ""
}

// Validate rejects malformed glob patterns and unknown enum values.
func (c *Criteria) Validate() error {
	if c.ParticipantGlob != "" {
		if _, err := filepath.Match(c.ParticipantGlob, ""); err != nil {
			return err
		}
	}
	if c.Action != "" {
		if err := c.Action.Validate(); err != nil {
			return err
		}
	}
	if c.Status != "" {
		if err := c.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}
