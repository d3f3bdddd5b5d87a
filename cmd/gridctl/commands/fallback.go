package commands

import (
	"time"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/internal/history"
	"github.com/Adidier/agents/internal/persistence"
	"github.com/spf13/cobra"
)

var (
	fallbackPath     string
	fallbackUnsynced bool
	fallbackOutput   string
)

var fallbackCmd = &cobra.Command{
	Use:   "fallback",
	Short: "Read documents written to the fallback file",
	Long: `Read the JSONL fallback file the coordinator appends to when Redis writes fail.

Each line is an envelope holding one snapshot or registry audit. Entries marked
unsynced have not been replayed into Redis.

Examples:
  gridctl fallback
  gridctl fallback --unsynced -o jsonl
  gridctl fallback --path /var/lib/coordinator/fallback.jsonl`,
	Args: cobra.NoArgs,
	RunE: runFallback,
}

func init() {
	fallbackCmd.Flags().StringVar(&fallbackPath, "path", config.Default().Persistence.FallbackPath, "Fallback file path")
	fallbackCmd.Flags().BoolVar(&fallbackUnsynced, "unsynced", false, "Only show entries not yet replayed")
	fallbackCmd.Flags().StringVarP(&fallbackOutput, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(fallbackCmd)
}

func runFallback(cmd *cobra.Command, args []string) error {
	p := printerFor(cmd)

	format, err := history.ParseOutputFormat(fallbackOutput)
	if err != nil {
		return p.Error("invalid output format", err.Error(), nil, []string{"Valid formats: default, jsonl"})
	}

	envelopes, err := persistence.ReadFallback(fallbackPath)
	if err != nil {
		return p.Error(
			"failed to read fallback file",
			err.Error(),
			map[string]string{"path": fallbackPath},
			[]string{"Check --path matches the coordinator's persistence.fallback_path"},
		)
	}
	if fallbackUnsynced {
		envelopes = persistence.Unsynced(envelopes)
	}

	if format == history.OutputFormatJSONL {
		return history.FormatJSONL(cmd.OutOrStdout(), envelopes)
	}
	return history.FormatFallbackTable(cmd.OutOrStdout(), envelopes, time.Now())
}
