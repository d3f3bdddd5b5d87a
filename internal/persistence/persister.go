// Package persistence writes snapshots to the primary sink with a local
// append-only fallback file.
//
// Write protocol: each document is first written to the primary sink under a
// bounded timeout. On any primary failure the full document is appended to the
// fallback file inside an Envelope with synced=false. A reconciliation pass can
// later replay every unsynced envelope into the primary sink using the embedded
// document IDs and flip synced to true.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/rs/zerolog"
)

var (
	// ErrSinkFailure wraps a primary sink error after a successful fallback write.
	ErrSinkFailure = errors.New("primary sink write failed")

	// ErrFallbackFailure means both the primary sink and the fallback file failed.
	ErrFallbackFailure = errors.New("fallback write failed")
)

// FallbackError carries both causes of a fully failed persist.
type FallbackError struct {
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%v: primary: %v; fallback: %v", ErrFallbackFailure, e.Primary, e.Fallback)
}

func (e *FallbackError) Unwrap() []error {
	return []error{ErrFallbackFailure, e.Primary, e.Fallback}
}

// Sink is the primary document store. *telemetry.Client implements it.
type Sink interface {
	SaveSnapshot(ctx context.Context, s *telemetry.Snapshot) error
	SaveRegistrySnapshot(ctx context.Context, r *telemetry.RegistrySnapshot) error
}

// Status is the outcome of one persist call.
type Status string

const (
	StatusPrimary  Status = "primary"
	StatusFallback Status = "fallback"
	StatusFailed   Status = "failed"
)

// Result is returned to callers for logging only.
type Result struct {
	Status Status
	Err    error
}

// OK reports whether the document reached durable storage.
func (r Result) OK() bool {
	return r.Status != StatusFailed
}

// Persister implements the two-tier write protocol.
type Persister struct {
	sink     Sink
	fallback *FallbackFile
	timeout  time.Duration
	instance string
	now      func() time.Time
	log      zerolog.Logger
}

// NewPersister creates a persister writing to sink with a per-write timeout.
func NewPersister(sink Sink, fallback *FallbackFile, instance string, timeout time.Duration, log zerolog.Logger) *Persister {
	return &Persister{
		sink:     sink,
		fallback: fallback,
		timeout:  timeout,
		instance: instance,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Persist writes a telemetry snapshot. It never panics or blocks beyond the
// write timeout plus the local file append.
func (p *Persister) Persist(ctx context.Context, s *telemetry.Snapshot) Result {
	err := p.writePrimary(ctx, func(ctx context.Context) error { return p.sink.SaveSnapshot(ctx, s) })
	if err == nil {
		return Result{Status: StatusPrimary}
	}

	return p.fallBack(Envelope{Kind: KindSnapshot, Snapshot: s}, s.ID, err)
}

// PersistRegistry writes a registry audit snapshot through the same protocol.
func (p *Persister) PersistRegistry(ctx context.Context, r *telemetry.RegistrySnapshot) Result {
	err := p.writePrimary(ctx, func(ctx context.Context) error { return p.sink.SaveRegistrySnapshot(ctx, r) })
	if err == nil {
		return Result{Status: StatusPrimary}
	}

	return p.fallBack(Envelope{Kind: KindRegistrySnapshot, Registry: r}, r.ID, err)
}

func (p *Persister) writePrimary(ctx context.Context, write func(context.Context) error) error {
	if p.sink == nil {
		return fmt.Errorf("no primary sink configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return write(ctx)
}

func (p *Persister) fallBack(env Envelope, id string, primaryErr error) Result {
	p.log.Warn().
		Str("event", "sink_failure").
		Str("kind", string(env.Kind)).
		Str("id", id).
		Err(primaryErr).
		Msg("Primary sink write failed, writing to fallback file")

	env.Format = FormatV1
	env.Synced = false
	env.WrittenAt = p.now()
	env.Instance = p.instance
	env.Reason = primaryErr.Error()

	if err := p.fallback.Append(env); err != nil {
		ferr := &FallbackError{Primary: primaryErr, Fallback: err}
		p.log.Error().
			Str("event", "fallback_failure").
			Bool("alert", true).
			Str("kind", string(env.Kind)).
			Str("id", id).
			Str("fallback_path", p.fallback.Path()).
			Err(ferr).
			Msg("Persistence failed on both sinks, data may be lost")
		return Result{Status: StatusFailed, Err: ferr}
	}

	return Result{Status: StatusFallback, Err: fmt.Errorf("%w: %v", ErrSinkFailure, primaryErr)}
}
