package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adidier/agents/internal/api"
	"github.com/Adidier/agents/internal/history"
	"github.com/spf13/cobra"
)

var participantsOutput string

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "List participants registered with the coordinator",
	Long: `List participants currently registered with the coordinator.

Output Formats:
  default - Table with ID, name, address, capabilities and heartbeat age
  jsonl   - One participant per line

Examples:
  gridctl participants
  gridctl participants --server http://grid-coordinator:8001 -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runParticipants,
}

func init() {
	participantsCmd.Flags().StringVarP(&participantsOutput, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(participantsCmd)
}

func runParticipants(cmd *cobra.Command, args []string) error {
	p := printerFor(cmd)

	format, err := history.ParseOutputFormat(participantsOutput)
	if err != nil {
		return p.Error("invalid output format", err.Error(), nil, []string{"Valid formats: default, jsonl"})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	views, err := fetchParticipants(ctx, serverURL)
	if err != nil {
		return p.Error(
			"failed to list participants",
			err.Error(),
			map[string]string{"server": serverURL},
			[]string{"Check the coordinator is running and --server points at its API"},
		)
	}

	if format == history.OutputFormatJSONL {
		return history.FormatJSONL(cmd.OutOrStdout(), views)
	}
	return history.FormatParticipantTable(cmd.OutOrStdout(), views, time.Now())
}

func fetchParticipants(ctx context.Context, base string) ([]api.ParticipantView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/participants", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var views []api.ParticipantView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return views, nil
}
