// Package fetcher performs the per-participant status call of an aggregation cycle.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps how much of a status response is read.
const maxBodyBytes = 1 << 20

// Fetcher issues bounded-timeout status requests.
// Fetch never returns an error: every failure becomes a tagged record.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	statusPath string
	categories config.Categories
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero; the
// fetch budget is enforced through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithClock overrides the time source used for fetched_at and latency.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a fetcher with the polling timeout, status path and categories.
func New(timeout time.Duration, statusPath string, categories config.Categories, log zerolog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{},
		timeout:    timeout,
		statusPath: statusPath,
		categories: categories,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Timeout returns the per-fetch budget.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Resolve returns the first category whose capabilities intersect the participant's.
func Resolve(categories config.Categories, p *telemetry.Participant) (config.Category, bool) {
	for _, cat := range categories {
		for _, c := range cat.Capabilities {
			if p.HasCapability(c) {
				return cat, true
			}
		}
	}
	return config.Category{}, false
}

// Category returns the resolved category name for p, or "" if none matches.
func (f *Fetcher) Category(p *telemetry.Participant) string {
	cat, _ := Resolve(f.categories, p)
	return cat.Name
}

// Fetch performs one status request against the participant's address.
// Cancellation of ctx (the cycle deadline) is reported as a timeout.
func (f *Fetcher) Fetch(ctx context.Context, p *telemetry.Participant) *telemetry.TelemetryRecord {
	started := f.now()
	record := &telemetry.TelemetryRecord{
		ParticipantID: p.ID,
		Name:          p.Name,
		FetchedAt:     started.UTC(),
	}

	category, known := Resolve(f.categories, p)
	if known {
		record.Category = category.Name
	}

	fields, status, err := f.do(ctx, p)
	record.LatencyMs = f.now().Sub(started).Milliseconds()
	record.Status = status

	if err != nil {
		record.Error = err.Error()
		f.log.Debug().
			Str("event", "fetch_failed").
			Str("participant_id", p.ID).
			Str("status", string(status)).
			Err(err).
			Msg("Telemetry fetch failed")
		return record
	}

	record.Fields = fields
	if known {
		if missing := missingFields(fields, category.RequiredFields); len(missing) > 0 {
			record.Status = telemetry.FetchStatusMalformed
			record.Missing = missing
			record.Error = fmt.Sprintf("missing required fields for category %s: %v", category.Name, missing)
		}
	}

	return record
}

func (f *Fetcher) do(ctx context.Context, p *telemetry.Participant) (map[string]any, telemetry.FetchStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Address.URL(f.statusPath), nil)
	if err != nil {
		return nil, telemetry.FetchStatusUnreachable, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, telemetry.FetchStatusTimeout, fmt.Errorf("no response within %s", f.timeout)
		}
		return nil, telemetry.FetchStatusUnreachable, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, telemetry.FetchStatusUnreachable, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, telemetry.FetchStatusTimeout, fmt.Errorf("response body not received within %s", f.timeout)
		}
		return nil, telemetry.FetchStatusUnreachable, fmt.Errorf("failed to read response: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, telemetry.FetchStatusMalformed, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, telemetry.FetchStatusMalformed, fmt.Errorf("response is not a JSON object")
	}

	return fields, telemetry.FetchStatusOK, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func missingFields(fields map[string]any, required []string) []string {
	var missing []string
	for _, name := range required {
		if v, ok := fields[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
