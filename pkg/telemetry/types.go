package telemetry

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Address is the declared status endpoint of a participant.
// Only http and https schemes are accepted.
type Address struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// ParseAddress parses and validates a participant address such as
// "http://localhost:8002". The port is required; a path, query or fragment is rejected.
func ParseAddress(raw string) (Address, error) {
	if strings.TrimSpace(raw) == "" {
		return Address{}, fmt.Errorf("address cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}

	addr := Address{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	if addr.Scheme != "http" && addr.Scheme != "https" {
		return Address{}, fmt.Errorf("invalid address %q: unsupported scheme %q (must be 'http' or 'https')", raw, addr.Scheme)
	}

	if u.Port() == "" {
		return Address{}, fmt.Errorf("invalid address %q: port is required", raw)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: port is not numeric", raw)
	}
	addr.Port = port

	if u.Path != "" && u.Path != "/" {
		return Address{}, fmt.Errorf("invalid address %q: path is not allowed", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return Address{}, fmt.Errorf("invalid address %q: query, fragment and userinfo are not allowed", raw)
	}

	if err := addr.Validate(); err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}

	return addr, nil
}

// Validate checks the address fields.
func (a Address) Validate() error {
	if a.Scheme != "http" && a.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q (must be 'http' or 'https')", a.Scheme)
	}
	if a.Host == "" {
		return fmt.Errorf("host is required")
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", a.Port)
	}
	return nil
}

// String renders the address as a base URL without trailing slash.
func (a Address) String() string {
	return fmt.Sprintf("%s://%s", a.Scheme, net.JoinHostPort(a.Host, strconv.Itoa(a.Port)))
}

// URL joins the address with an absolute path.
func (a Address) URL(path string) string {
	if path == "" {
		return a.String()
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return a.String() + path
}

// Participant is a telemetry producer registered with the coordinator.
type Participant struct {
	ID            string    `json:"participant_id"` // UUID assigned by the coordinator
	Name          string    `json:"name"`           // Human-readable producer name
	Address       Address   `json:"address"`        // Status endpoint
	Capabilities  []string  `json:"capabilities"`   // Declared capabilities (e.g. "battery", "price")
	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Validate checks that the participant is well-formed.
func (p *Participant) Validate() error {
	if !isValidUUID(p.ID) {
		return fmt.Errorf("invalid participant ID: not a valid UUID")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	if err := p.Address.Validate(); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}

// HasCapability reports whether the participant declared the capability (case-insensitive).
func (p *Participant) HasCapability(capability string) bool {
	for _, c := range p.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never alias registry state.
func (p *Participant) Clone() *Participant {
	c := *p
	c.Capabilities = append([]string(nil), p.Capabilities...)
	return &c
}

// FetchStatus tags the outcome of a telemetry fetch.
type FetchStatus string

const (
	// FetchStatusOK indicates a structurally valid status response
	FetchStatusOK FetchStatus = "ok"

	// FetchStatusTimeout indicates the fetch did not complete within its budget
	FetchStatusTimeout FetchStatus = "timeout"

	// FetchStatusUnreachable indicates a transport failure or non-2xx response
	FetchStatusUnreachable FetchStatus = "unreachable"

	// FetchStatusMalformed indicates the response failed structural validation
	FetchStatusMalformed FetchStatus = "malformed"
)

// Validate checks the status is one of the known values.
func (s FetchStatus) Validate() error {
	switch s {
	case FetchStatusOK, FetchStatusTimeout, FetchStatusUnreachable, FetchStatusMalformed:
		return nil
	default:
		return fmt.Errorf("unknown fetch status: %q", s)
	}
}

// TelemetryRecord is one participant's fetch result inside a Snapshot.
// Fields is opaque to the registry; numbers decode as float64.
type TelemetryRecord struct {
	ParticipantID string         `json:"participant_id"`
	Name          string         `json:"name"`
	Category      string         `json:"category,omitempty"` // Resolved from capabilities, empty if unknown
	Status        FetchStatus    `json:"status"`
	Fields        map[string]any `json:"fields,omitempty"`
	Error         string         `json:"error,omitempty"`
	Missing       []string       `json:"missing,omitempty"` // Required fields absent from a malformed response
	FetchedAt     time.Time      `json:"fetched_at"`
	LatencyMs     int64          `json:"latency_ms"`
}

// OK reports whether the record carries usable data.
func (r *TelemetryRecord) OK() bool {
	return r.Status == FetchStatusOK
}

// Number returns a numeric field. Strings holding numbers are accepted.
func (r *TelemetryRecord) Number(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Text returns a string field.
func (r *TelemetryRecord) Text(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Action is the discrete advisory output of the recommendation engine.
type Action string

const (
	ActionDischarge        Action = "discharge"
	ActionCharge           Action = "charge"
	ActionExport           Action = "export"
	ActionHold             Action = "hold"
	ActionInsufficientData Action = "insufficient_data"
)

// Validate checks the action is one of the known values.
func (a Action) Validate() error {
	switch a {
	case ActionDischarge, ActionCharge, ActionExport, ActionHold, ActionInsufficientData:
		return nil
	default:
		return fmt.Errorf("unknown action: %q", a)
	}
}

// Recommendation is derived from a Snapshot and never persisted on its own.
type Recommendation struct {
	Action     Action         `json:"action"`
	Rule       string         `json:"rule"` // Name of the rule that matched
	Rationale  string         `json:"rationale"`
	InputsUsed map[string]any `json:"inputs_used"`
}

// Snapshot is one aggregation cycle's merged telemetry.
// Records is keyed by participant ID and covers exactly the membership
// captured when the cycle dispatched its fetches.
type Snapshot struct {
	ID             string                      `json:"id"` // UUID
	Instance       string                      `json:"instance"`
	Cycle          uint64                      `json:"cycle"` // Monotonic per coordinator process
	Timestamp      time.Time                   `json:"timestamp"`
	Records        map[string]*TelemetryRecord `json:"records"`
	Recommendation *Recommendation             `json:"recommendation,omitempty"`
}

// Validate checks the snapshot is well-formed.
func (s *Snapshot) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid snapshot ID: not a valid UUID")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot timestamp is required")
	}
	if s.Records == nil {
		return fmt.Errorf("snapshot records cannot be nil")
	}
	for id, r := range s.Records {
		if r == nil {
			return fmt.Errorf("record %s is nil", id)
		}
		if r.ParticipantID != id {
			return fmt.Errorf("record key %s does not match participant ID %s", id, r.ParticipantID)
		}
		if err := r.Status.Validate(); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
	}
	if s.Recommendation != nil {
		if err := s.Recommendation.Action.Validate(); err != nil {
			return fmt.Errorf("invalid recommendation: %w", err)
		}
	}
	return nil
}

// StatusCounts tallies records by fetch status.
func (s *Snapshot) StatusCounts() map[FetchStatus]int {
	counts := make(map[FetchStatus]int)
	for _, r := range s.Records {
		counts[r.Status]++
	}
	return counts
}

// RegistrySnapshot is a periodic audit dump of registry membership.
type RegistrySnapshot struct {
	ID           string         `json:"id"` // UUID
	Instance     string         `json:"instance"`
	Timestamp    time.Time      `json:"timestamp"`
	Participants []*Participant `json:"participants"`
}

// Validate checks the registry snapshot is well-formed.
func (r *RegistrySnapshot) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid registry snapshot ID: not a valid UUID")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("registry snapshot timestamp is required")
	}
	return nil
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
