package history

import (
	"context"
	"fmt"
	"io"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/google/uuid"
)

// SnapshotGetter reads one snapshot. *telemetry.Client implements it.
type SnapshotGetter interface {
	GetSnapshot(ctx context.Context, snapshotID string) (*telemetry.Snapshot, error)
}

// GetSnapshot writes one snapshot as pretty JSON, or as a record table when
// format is OutputFormatDefault.
func GetSnapshot(ctx context.Context, client SnapshotGetter, snapshotID string, format OutputFormat, w io.Writer) error {
	if _, err := uuid.Parse(snapshotID); err != nil {
		return fmt.Errorf("invalid snapshot ID format: must be a valid UUID")
	}

	snap, err := client.GetSnapshot(ctx, snapshotID)
	if err != nil {
		if telemetry.IsNotFound(err) {
			return &SnapshotNotFoundError{SnapshotID: snapshotID}
		}
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	if format == OutputFormatJSONL {
		return FormatSingleJSON(w, snap)
	}

	fmt.Fprintf(w, "Snapshot %s (cycle %d) at %s\n\n", snap.ID, snap.Cycle, snap.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if err := FormatRecordTable(w, snap); err != nil {
		return fmt.Errorf("failed to render records: %w", err)
	}
	if r := snap.Recommendation; r != nil {
		fmt.Fprintf(w, "\nRecommendation: %s (rule %s)\n  %s\n", r.Action, r.Rule, r.Rationale)
	}
	return nil
}

// SnapshotNotFoundError lets callers distinguish a missing snapshot from other failures.
type SnapshotNotFoundError struct {
	SnapshotID string
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot with ID '%s' not found", e.SnapshotID)
}

// IsNotFound returns true if the error is a SnapshotNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*SnapshotNotFoundError)
	return ok
}
