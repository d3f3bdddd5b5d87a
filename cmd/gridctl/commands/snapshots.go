package commands

import (
	"errors"
	"fmt"

	"github.com/Adidier/agents/internal/history"
	"github.com/Adidier/agents/internal/resolver"
	"github.com/Adidier/agents/internal/timespec"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/spf13/cobra"
)

var (
	snapshotsOutput string
	snapshotsSince  string
	snapshotsUntil  string
	snapshotsAction string
	snapshotsLimit  int
	snapshotsName   string
	snapshotsStatus string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [SNAPSHOT_ID]",
	Short: "Inspect stored snapshots",
	Long: `Inspect snapshots in list or get mode.

List Mode (no SNAPSHOT_ID):
  Displays snapshots newest first as a table or JSONL stream.

Get Mode (with SNAPSHOT_ID):
  Displays one snapshot's records and recommendation.
  Accepts a full UUID, a unique prefix of at least 6 characters, or "latest".

Filters (list mode only):
  --since       - Snapshots after this time (duration or RFC3339)
  --until       - Snapshots before this time
  --action      - Only snapshots whose recommendation is this action
  --participant - Only snapshots with a record whose name matches this glob
  --status      - Only snapshots with a record in this fetch status
                  (combined with --participant, the same record must match both)
  --limit       - At most this many snapshots

Examples:
  gridctl snapshots --since=1h
  gridctl snapshots --action=discharge -o jsonl | jq .recommendation
  gridctl snapshots --participant 'battery-*' --status timeout
  gridctl snapshots latest
  gridctl snapshots 3f2a9c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshots,
}

func init() {
	snapshotsCmd.Flags().StringVarP(&snapshotsOutput, "output", "o", "default", "Output format: default or jsonl")
	snapshotsCmd.Flags().StringVar(&snapshotsSince, "since", "", "Show snapshots after time (duration or RFC3339)")
	snapshotsCmd.Flags().StringVar(&snapshotsUntil, "until", "", "Show snapshots before time (duration or RFC3339)")
	snapshotsCmd.Flags().StringVar(&snapshotsAction, "action", "", "Filter by recommended action")
	snapshotsCmd.Flags().StringVar(&snapshotsName, "participant", "", "Filter by participant name (glob pattern)")
	snapshotsCmd.Flags().StringVar(&snapshotsStatus, "status", "", "Filter by record fetch status")
	snapshotsCmd.Flags().IntVar(&snapshotsLimit, "limit", 0, "Maximum number of snapshots (0 for all)")
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := printerFor(cmd)

	format, err := history.ParseOutputFormat(snapshotsOutput)
	if err != nil {
		return p.Error("invalid output format", err.Error(), nil, []string{"Valid formats: default, jsonl"})
	}

	var filters history.FilterCriteria
	if len(args) == 0 {
		filters.SinceTimestampMs, filters.UntilTimestampMs, err = timespec.ParseRange(snapshotsSince, snapshotsUntil)
		if err != nil {
			return p.Error(
				"invalid time filter",
				err.Error(),
				nil,
				[]string{"Use duration format like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"},
			)
		}
		filters.Action = telemetry.Action(snapshotsAction)
		filters.Participant = snapshotsName
		filters.Status = telemetry.FetchStatus(snapshotsStatus)
		if err := filters.Criteria().Validate(); err != nil {
			return p.Error("invalid snapshot filter", err.Error(), nil, []string{
				"Valid actions: charge, discharge, export, hold, insufficient_data",
				"Valid statuses: ok, timeout, unreachable, malformed",
			})
		}
		if snapshotsLimit < 0 {
			return p.Error("invalid limit", fmt.Sprintf("--limit must be >= 0, got %d", snapshotsLimit), nil, nil)
		}
		filters.Limit = snapshotsLimit
	}

	client, err := connect(ctx, p)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		if err := history.ListSnapshots(ctx, client, instanceName, format, &filters, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		return nil
	}

	ref := args[0]
	id, err := resolver.ResolveSnapshotID(ctx, client, ref)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return p.Error(
				fmt.Sprintf("snapshot '%s' not found", ref),
				"No stored snapshot matches this reference.",
				map[string]string{"instance": instanceName},
				[]string{"List snapshots:\n  gridctl snapshots", "Check the fallback file:\n  gridctl fallback"},
			)
		}
		var amb *resolver.AmbiguousError
		if errors.As(err, &amb) {
			fmt.Fprintln(cmd.ErrOrStderr(), amb.Describe())
			return fmt.Errorf("ambiguous short ID")
		}
		return p.Error("invalid snapshot reference", err.Error(), nil, nil)
	}

	if err := history.GetSnapshot(ctx, client, id, format, cmd.OutOrStdout()); err != nil {
		if history.IsNotFound(err) {
			return p.Error(
				fmt.Sprintf("snapshot '%s' not found", id),
				"The snapshot was resolved but could not be fetched.",
				nil,
				[]string{"This might indicate a race condition. Try again."},
			)
		}
		return fmt.Errorf("failed to get snapshot: %w", err)
	}
	return nil
}
