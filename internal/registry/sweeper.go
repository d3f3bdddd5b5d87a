package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs SweepExpired on its own timer, independent of the aggregation cycle.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, ttl, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.log.Info().Dur("ttl", sw.ttl).Dur("interval", sw.interval).Msg("Registry sweeper started")

	for {
		select {
		case <-ctx.Done():
			sw.log.Info().Msg("Registry sweeper stopped")
			return nil
		case <-ticker.C:
			sw.SweepOnce()
		}
	}
}

// SweepOnce performs a single expiry pass and logs each removal.
func (sw *Sweeper) SweepOnce() int {
	removed := sw.store.SweepExpired(sw.ttl)
	for _, p := range removed {
		sw.log.Warn().
			Str("event", "participant_expired").
			Str("participant_id", p.ID).
			Str("name", p.Name).
			Time("last_heartbeat", p.LastHeartbeat).
			Msg("Participant expired")
	}
	return len(removed)
}
