package persistence

import (
	"context"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lister provides registry membership. *registry.Store implements it.
type Lister interface {
	List() []*telemetry.Participant
}

// Auditor periodically persists RegistrySnapshot documents, on a cadence
// independent of the aggregation cycle.
type Auditor struct {
	registry  Lister
	persister *Persister
	instance  string
	interval  time.Duration
	log       zerolog.Logger
}

// NewAuditor creates an auditor.
func NewAuditor(registry Lister, persister *Persister, instance string, interval time.Duration, log zerolog.Logger) *Auditor {
	return &Auditor{
		registry:  registry,
		persister: persister,
		instance:  instance,
		interval:  interval,
		log:       log,
	}
}

// Run writes an audit snapshot every interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.AuditOnce(ctx)
		}
	}
}

// AuditOnce captures and persists the current membership.
func (a *Auditor) AuditOnce(ctx context.Context) (*telemetry.RegistrySnapshot, Result) {
	snap := &telemetry.RegistrySnapshot{
		ID:           uuid.New().String(),
		Instance:     a.instance,
		Timestamp:    time.Now().UTC(),
		Participants: a.registry.List(),
	}

	result := a.persister.PersistRegistry(ctx, snap)
	a.log.Debug().
		Str("event", "registry_audit").
		Str("id", snap.ID).
		Int("participants", len(snap.Participants)).
		Str("status", string(result.Status)).
		Msg("Registry snapshot persisted")
	return snap, result
}
