package history

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Adidier/agents/internal/filter"
	"github.com/Adidier/agents/pkg/telemetry"
)

// OutputFormat specifies how list output is rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders a table
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL renders complete documents as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (must be 'default' or 'jsonl')", s)
	}
}

// FilterCriteria narrows a snapshot listing. Zero values mean no filter.
type FilterCriteria struct {
	SinceTimestampMs int64
	UntilTimestampMs int64
	Action           telemetry.Action
	Participant      string // Glob on record names
	Status           telemetry.FetchStatus
	Limit            int
}

// Criteria returns the per-snapshot match criteria.
func (fc *FilterCriteria) Criteria() *filter.Criteria {
	return &filter.Criteria{
		SinceTimestampMs: fc.SinceTimestampMs,
		UntilTimestampMs: fc.UntilTimestampMs,
		Action:           fc.Action,
		ParticipantGlob:  fc.Participant,
		Status:           fc.Status,
	}
}

// SnapshotLister reads snapshots from the primary sink. *telemetry.Client implements it.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, sinceMs, untilMs int64, limit int) ([]*telemetry.Snapshot, error)
}

// ListSnapshots writes stored snapshots newest first.
func ListSnapshots(ctx context.Context, client SnapshotLister, instanceName string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	if filters == nil {
		filters = &FilterCriteria{}
	}

	// Limit applies after filtering
	all, err := client.ListSnapshots(ctx, filters.SinceTimestampMs, filters.UntilTimestampMs, 0)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	criteria := filters.Criteria()
	var snapshots []*telemetry.Snapshot
	for _, s := range all {
		if !criteria.Matches(s) {
			continue
		}
		snapshots = append(snapshots, s)
		if filters.Limit > 0 && len(snapshots) == filters.Limit {
			break
		}
	}

	switch format {
	case OutputFormatDefault:
		if _, err := FormatSnapshotTable(w, snapshots, instanceName, time.Now()); err != nil {
			return err
		}
	case OutputFormatJSONL:
		if err := FormatJSONL(w, snapshots); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
