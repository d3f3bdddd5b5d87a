// Package history renders stored snapshots, participants and fallback
// envelopes for gridctl.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Adidier/agents/internal/api"
	"github.com/Adidier/agents/internal/persistence"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/olekukonko/tablewriter"
)

// FormatSnapshotTable writes snapshots as a table and returns how many were written.
func FormatSnapshotTable(w io.Writer, snapshots []*telemetry.Snapshot, instanceName string, now time.Time) (int, error) {
	if len(snapshots) == 0 {
		fmt.Fprintf(w, "No snapshots found for instance '%s'\n", instanceName)
		return 0, nil
	}

	fmt.Fprintf(w, "Snapshots for instance '%s':\n\n", instanceName)

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Cycle", "Age", "Records", "Action", "Rationale")
	for _, s := range snapshots {
		action, rationale := "-", "-"
		if s.Recommendation != nil {
			action = string(s.Recommendation.Action)
			rationale = truncate(s.Recommendation.Rationale, 50)
		}
		if err := table.Append([]string{
			formatID(s.ID),
			fmt.Sprintf("%d", s.Cycle),
			formatAge(s.Timestamp, now),
			formatCounts(s.StatusCounts()),
			action,
			rationale,
		}); err != nil {
			return 0, fmt.Errorf("failed to build table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(snapshots), plural(len(snapshots), "snapshot"))
	return len(snapshots), nil
}

// FormatRecordTable writes one snapshot's per-participant records ordered by name.
func FormatRecordTable(w io.Writer, s *telemetry.Snapshot) error {
	records := make([]*telemetry.TelemetryRecord, 0, len(s.Records))
	for _, r := range s.Records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].ParticipantID < records[j].ParticipantID
	})

	table := tablewriter.NewWriter(w)
	table.Header("Participant", "Name", "Category", "Status", "Latency", "Detail")
	for _, r := range records {
		detail := r.Error
		if detail == "" {
			detail = formatFields(r.Fields)
		}
		if err := table.Append([]string{
			formatID(r.ParticipantID),
			dash(r.Name),
			dash(r.Category),
			string(r.Status),
			fmt.Sprintf("%dms", r.LatencyMs),
			truncate(detail, 50),
		}); err != nil {
			return fmt.Errorf("failed to build table: %w", err)
		}
	}
	return table.Render()
}

// FormatParticipantTable writes the coordinator's participant list.
func FormatParticipantTable(w io.Writer, participants []api.ParticipantView, now time.Time) error {
	if len(participants) == 0 {
		fmt.Fprintln(w, "No participants registered")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Address", "Capabilities", "Registered", "Last Heartbeat")
	for _, p := range participants {
		if err := table.Append([]string{
			formatID(p.ParticipantID),
			p.Name,
			p.Address,
			dash(strings.Join(p.Capabilities, ",")),
			formatAge(p.RegisteredAt, now),
			formatAge(p.LastHeartbeat, now),
		}); err != nil {
			return fmt.Errorf("failed to build table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(w, "\n%d %s registered\n", len(participants), plural(len(participants), "participant"))
	return nil
}

// FormatFallbackTable writes fallback envelopes.
func FormatFallbackTable(w io.Writer, envelopes []persistence.Envelope, now time.Time) error {
	if len(envelopes) == 0 {
		fmt.Fprintln(w, "No fallback records")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "ID", "Synced", "Written", "Reason")
	for _, e := range envelopes {
		id := "-"
		switch {
		case e.Snapshot != nil:
			id = formatID(e.Snapshot.ID)
		case e.Registry != nil:
			id = formatID(e.Registry.ID)
		}
		if err := table.Append([]string{
			string(e.Kind),
			id,
			fmt.Sprintf("%t", e.Synced),
			formatAge(e.WrittenAt, now),
			truncate(e.Reason, 60),
		}); err != nil {
			return fmt.Errorf("failed to build table: %w", err)
		}
	}
	return table.Render()
}

// FormatJSONL writes each item as one compact JSON line.
func FormatJSONL[T any](w io.Writer, items []T) error {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes v as indented JSON.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// SummaryLine renders a snapshot as one line, used by watch.
func SummaryLine(s *telemetry.Snapshot) string {
	action := "-"
	if s.Recommendation != nil {
		action = string(s.Recommendation.Action)
	}
	return fmt.Sprintf("%s cycle=%d id=%s records=[%s] action=%s",
		s.Timestamp.Format(time.RFC3339), s.Cycle, formatID(s.ID), formatCounts(s.StatusCounts()), action)
}

// formatID truncates a UUID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatCounts renders status counts in a fixed order, skipping zeros.
func formatCounts(counts map[telemetry.FetchStatus]int) string {
	order := []telemetry.FetchStatus{
		telemetry.FetchStatusOK,
		telemetry.FetchStatusTimeout,
		telemetry.FetchStatusUnreachable,
		telemetry.FetchStatusMalformed,
	}
	var parts []string
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

// formatFields renders record fields as sorted key=value pairs.
func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// formatAge renders t relative to now, like "2m ago".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	switch {
	case diff < 0:
		return "just now"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
