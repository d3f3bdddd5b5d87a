package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
)

// FormatV1 identifies the envelope layout.
const FormatV1 = "grid-fallback/v1"

// Kind tags which document an envelope holds.
type Kind string

const (
	KindSnapshot         Kind = "snapshot"
	KindRegistrySnapshot Kind = "registry_snapshot"
)

// Envelope is one line of the fallback file. Exactly one of Snapshot or
// Registry is set, matching Kind.
type Envelope struct {
	Format    string                      `json:"format"`
	Kind      Kind                        `json:"kind"`
	Synced    bool                        `json:"synced"`
	WrittenAt time.Time                   `json:"written_at"`
	Instance  string                      `json:"instance"`
	Reason    string                      `json:"reason"` // Primary sink error that caused the fallback
	Snapshot  *telemetry.Snapshot         `json:"snapshot,omitempty"`
	Registry  *telemetry.RegistrySnapshot `json:"registry,omitempty"`
}

// Validate checks the envelope is replayable.
func (e *Envelope) Validate() error {
	if e.Format != FormatV1 {
		return fmt.Errorf("unsupported format %q", e.Format)
	}
	switch e.Kind {
	case KindSnapshot:
		if e.Snapshot == nil {
			return fmt.Errorf("snapshot envelope has no snapshot")
		}
		return e.Snapshot.Validate()
	case KindRegistrySnapshot:
		if e.Registry == nil {
			return fmt.Errorf("registry envelope has no registry snapshot")
		}
		return e.Registry.Validate()
	default:
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
}

// FallbackFile is a JSON Lines append-only file. Appends are serialized and
// fsynced before returning.
type FallbackFile struct {
	mu   sync.Mutex
	path string
}

// NewFallbackFile returns a handle for path. The file is created on first append.
func NewFallbackFile(path string) *FallbackFile {
	return &FallbackFile{path: path}
}

// Path returns the file path.
func (f *FallbackFile) Path() string {
	return f.path
}

// Append writes one envelope as a single line.
func (f *FallbackFile) Append(env Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open fallback file: %w", err)
	}

	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("failed to write fallback file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync fallback file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close fallback file: %w", err)
	}
	return nil
}

// ReadFallback decodes every envelope in the file at path.
// A missing file yields no envelopes.
func ReadFallback(path string) ([]Envelope, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open fallback file: %w", err)
	}
	defer file.Close()

	var envelopes []Envelope
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			return nil, fmt.Errorf("failed to decode fallback line %d: %w", lineNo, err)
		}
		envelopes = append(envelopes, env)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fallback file: %w", err)
	}

	return envelopes, nil
}

// Unsynced filters envelopes not yet replayed into the primary sink.
func Unsynced(envelopes []Envelope) []Envelope {
	var out []Envelope
	for _, e := range envelopes {
		if !e.Synced {
			out = append(out, e)
		}
	}
	return out
}
