// Package resolver turns user-supplied snapshot references into full IDs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/google/uuid"
)

// MinShortIDLength is the minimum accepted prefix length.
const MinShortIDLength = 6

// Latest is the reference that resolves to the most recent snapshot.
const Latest = "latest"

// SnapshotIndex is the subset of *telemetry.Client the resolver needs.
type SnapshotIndex interface {
	GetSnapshot(ctx context.Context, snapshotID string) (*telemetry.Snapshot, error)
	LatestSnapshot(ctx context.Context) (*telemetry.Snapshot, error)
	ScanSnapshotIDs(ctx context.Context, prefix string) ([]string, error)
}

// ResolveSnapshotID resolves "latest", a full UUID or a unique prefix of at
// least MinShortIDLength characters.
func ResolveSnapshotID(ctx context.Context, index SnapshotIndex, ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if ref == Latest {
		snap, err := index.LatestSnapshot(ctx)
		if err != nil {
			if telemetry.IsNotFound(err) {
				return "", &NotFoundError{ShortID: ref}
			}
			return "", fmt.Errorf("failed to read latest snapshot: %w", err)
		}
		return snap.ID, nil
	}

	if _, err := uuid.Parse(ref); err == nil && len(ref) == 36 {
		if _, err := index.GetSnapshot(ctx, ref); err != nil {
			if telemetry.IsNotFound(err) {
				return "", &NotFoundError{ShortID: ref}
			}
			return "", fmt.Errorf("failed to verify snapshot existence: %w", err)
		}
		return ref, nil
	}

	if len(ref) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}

	matches, err := index.ScanSnapshotIDs(ctx, strings.ToLower(ref))
	if err != nil {
		return "", fmt.Errorf("failed to search for snapshot: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: ref, Matches: matches}
	}
}

// NotFoundError indicates no snapshot matched the reference.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no snapshots found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple snapshots matched the prefix.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d snapshots", e.ShortID, len(e.Matches))
}

// Describe lists up to ten matches and a hint to use a longer prefix.
func (e *AmbiguousError) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d snapshots:\n", e.ShortID, len(e.Matches))

	shown := min(len(e.Matches), 10)
	for _, m := range e.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	if len(e.Matches) > shown {
		fmt.Fprintf(&b, "  ...and %d more\n", len(e.Matches)-shown)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the snapshot.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}
