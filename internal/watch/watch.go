// Package watch follows snapshot production from the primary sink.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Adidier/agents/internal/history"
	"github.com/Adidier/agents/pkg/telemetry"
)

// LatestReader reads the latest snapshot pointer. *telemetry.Client implements it.
type LatestReader interface {
	LatestSnapshot(ctx context.Context) (*telemetry.Snapshot, error)
}

// PollForSnapshot polls every 200ms until the latest snapshot satisfies match
// or timeout expires.
func PollForSnapshot(ctx context.Context, client LatestReader, match func(*telemetry.Snapshot) bool, timeout time.Duration) (*telemetry.Snapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for snapshot after %v", timeout)

		case <-ticker.C:
			snap, err := client.LatestSnapshot(ctx)
			if err != nil {
				if telemetry.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
			}
			if match == nil || match(snap) {
				return snap, nil
			}
		}
	}
}

// AfterCycle matches snapshots from a cycle later than n.
func AfterCycle(n uint64) func(*telemetry.Snapshot) bool {
	return func(s *telemetry.Snapshot) bool { return s.Cycle > n }
}

// Subscription is the event stream consumed by Stream.
type Subscription interface {
	Events() <-chan *telemetry.Snapshot
	Errors() <-chan error
}

// Stream writes one summary line per snapshot event until ctx is cancelled,
// the subscription ends, or max events have been written (max <= 0 means no limit).
// It returns the number of events written.
func Stream(ctx context.Context, sub Subscription, w io.Writer, max int) (int, error) {
	written := 0
	events := sub.Events()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return written, nil

		case s, ok := <-events:
			if !ok {
				return written, nil
			}
			if _, err := fmt.Fprintln(w, history.SummaryLine(s)); err != nil {
				return written, fmt.Errorf("failed to write event: %w", err)
			}
			written++
			if max > 0 && written >= max {
				return written, nil
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}
