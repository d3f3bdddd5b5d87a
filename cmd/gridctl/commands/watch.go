package commands

import (
	"fmt"
	"time"

	"github.com/Adidier/agents/internal/history"
	"github.com/Adidier/agents/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchCount     int
	watchNextCycle bool
	watchTimeout   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream snapshots as the coordinator writes them",
	Long: `Stream one summary line per snapshot as the coordinator persists it.

With --next, wait for the cycle after the current latest snapshot and exit.

Examples:
  gridctl watch
  gridctl watch --count 5
  gridctl watch --next --timeout 30s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Exit after this many snapshots (0 streams until interrupted)")
	watchCmd.Flags().BoolVar(&watchNextCycle, "next", false, "Wait for the next cycle, print it and exit")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", time.Minute, "Deadline for --next")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := printerFor(cmd)

	client, err := connect(ctx, p)
	if err != nil {
		return err
	}
	defer client.Close()

	if watchNextCycle {
		var after uint64
		if latest, err := client.LatestSnapshot(ctx); err == nil {
			after = latest.Cycle
		}
		snap, err := watch.PollForSnapshot(ctx, client, watch.AfterCycle(after), watchTimeout)
		if err != nil {
			return p.Error("no new snapshot", err.Error(), map[string]string{"after_cycle": fmt.Sprint(after)},
				[]string{"Check the coordinator is running and can reach Redis"})
		}
		fmt.Fprintln(cmd.OutOrStdout(), history.SummaryLine(snap))
		return nil
	}

	sub, err := client.SubscribeSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	p.Step("watching instance '%s'\n", instanceName)
	_, err = watch.Stream(ctx, sub, cmd.OutOrStdout(), watchCount)
	return err
}
