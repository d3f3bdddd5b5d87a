// Package aggregator runs the periodic fetch-merge-recommend-persist cycle.
package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adidier/agents/internal/persistence"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Membership lists the participants to poll. *registry.Store implements it.
type Membership interface {
	List() []*telemetry.Participant
}

// Fetcher fetches one participant's status. It must honour ctx cancellation
// and never block past it.
type Fetcher interface {
	Fetch(ctx context.Context, p *telemetry.Participant) *telemetry.TelemetryRecord
}

// Recommender derives a recommendation from merged records.
type Recommender interface {
	Evaluate(records map[string]*telemetry.TelemetryRecord) *telemetry.Recommendation
}

// Persister stores a completed snapshot.
type Persister interface {
	Persist(ctx context.Context, s *telemetry.Snapshot) persistence.Result
}

// Config holds the loop cadence.
type Config struct {
	Instance      string
	Interval      time.Duration
	CycleDeadline time.Duration
}

// Loop is the aggregation state machine. At most one cycle is in flight;
// ticks that arrive while a cycle runs are coalesced into one deferred cycle.
type Loop struct {
	cfg         Config
	members     Membership
	fetcher     Fetcher
	recommender Recommender
	persister   Persister
	log         zerolog.Logger

	running atomic.Bool
	pending atomic.Bool
	cycles  atomic.Uint64
	wg      sync.WaitGroup

	mu     sync.RWMutex
	latest *telemetry.Snapshot

	now   func() time.Time
	newID func() string
}

// New creates an idle loop.
func New(cfg Config, members Membership, fetcher Fetcher, recommender Recommender, persister Persister, log zerolog.Logger) *Loop {
	return &Loop{
		cfg:         cfg,
		members:     members,
		fetcher:     fetcher,
		recommender: recommender,
		persister:   persister,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// Run ticks every interval until ctx is cancelled, then waits for the
// in-flight cycle to finish. The first cycle starts immediately.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.log.Info().
		Dur("interval", l.cfg.Interval).
		Dur("cycle_deadline", l.cfg.CycleDeadline).
		Msg("Aggregation loop started")

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			l.log.Info().Uint64("cycles", l.cycles.Load()).Msg("Aggregation loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick starts a cycle if none is running, otherwise marks one as deferred.
// It reports whether a cycle was started.
func (l *Loop) Tick(ctx context.Context) bool {
	if !l.running.CompareAndSwap(false, true) {
		l.pending.Store(true)
		l.log.Warn().Str("event", "cycle_deferred").Msg("Previous cycle still running, tick deferred")
		return false
	}

	l.wg.Add(1)
	go l.work(ctx)
	return true
}

// Wait blocks until no cycle is in flight.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) work(ctx context.Context) {
	defer l.wg.Done()

	for {
		l.RunCycle(ctx)

		if ctx.Err() == nil && l.pending.Swap(false) {
			continue
		}
		l.running.Store(false)

		// A tick may have been deferred between the Swap and the Store.
		if ctx.Err() != nil || !l.pending.Load() || !l.running.CompareAndSwap(false, true) {
			return
		}
		l.pending.Store(false)
	}
}

type fetchResult struct {
	id     string
	record *telemetry.TelemetryRecord
}

// RunCycle performs one complete cycle and returns the snapshot it built.
// Callers other than the loop itself must not run cycles concurrently.
func (l *Loop) RunCycle(ctx context.Context) *telemetry.Snapshot {
	started := l.now()
	cycle := l.cycles.Add(1)
	members := l.members.List()

	records := l.fetchAll(ctx, members)

	snap := &telemetry.Snapshot{
		ID:        l.newID(),
		Instance:  l.cfg.Instance,
		Cycle:     cycle,
		Timestamp: started,
		Records:   records,
	}
	snap.Recommendation = l.recommender.Evaluate(records)

	// Persist even when shutdown cancelled ctx; the write carries its own timeout.
	result := l.persister.Persist(context.WithoutCancel(ctx), snap)

	l.mu.Lock()
	l.latest = snap
	l.mu.Unlock()

	counts := snap.StatusCounts()
	l.log.Info().
		Str("event", "cycle_complete").
		Uint64("cycle", cycle).
		Str("snapshot_id", snap.ID).
		Int("members", len(members)).
		Int("ok", counts[telemetry.FetchStatusOK]).
		Int("timeout", counts[telemetry.FetchStatusTimeout]).
		Int("unreachable", counts[telemetry.FetchStatusUnreachable]).
		Int("malformed", counts[telemetry.FetchStatusMalformed]).
		Str("action", string(snap.Recommendation.Action)).
		Str("persist", string(result.Status)).
		Dur("duration", l.now().Sub(started)).
		Msg("Aggregation cycle complete")

	return snap
}

// fetchAll dispatches one fetch per member and joins them under the cycle
// deadline. Members unresolved at the deadline are recorded as timeout and
// their fetches are cancelled.
func (l *Loop) fetchAll(ctx context.Context, members []*telemetry.Participant) map[string]*telemetry.TelemetryRecord {
	records := make(map[string]*telemetry.TelemetryRecord, len(members))
	if len(members) == 0 {
		return records
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.CycleDeadline)
	defer cancel()

	results := make(chan fetchResult, len(members))
	for _, m := range members {
		go func(p *telemetry.Participant) {
			results <- fetchResult{id: p.ID, record: l.fetcher.Fetch(ctx, p)}
		}(m)
	}

	for len(records) < len(members) {
		select {
		case r := <-results:
			records[r.id] = r.record
		case <-ctx.Done():
			cancel()
			now := l.now()
			unresolved := 0
			for _, m := range members {
				if _, done := records[m.ID]; done {
					continue
				}
				unresolved++
				records[m.ID] = &telemetry.TelemetryRecord{
					ParticipantID: m.ID,
					Name:          m.Name,
					Category:      l.category(m),
					Status:        telemetry.FetchStatusTimeout,
					Error:         "not resolved before cycle deadline",
					FetchedAt:     now,
				}
			}
			l.log.Warn().
				Str("event", "cycle_deadline_exceeded").
				Int("unresolved", unresolved).
				Msg("Cycle deadline reached with fetches outstanding")
			return records
		}
	}

	return records
}

// category labels placeholder records when the fetcher can resolve categories.
func (l *Loop) category(p *telemetry.Participant) string {
	if c, ok := l.fetcher.(interface {
		Category(*telemetry.Participant) string
	}); ok {
		return c.Category(p)
	}
	return ""
}

// Latest returns the most recently completed snapshot, or nil before the first cycle.
// The returned snapshot is shared and must not be modified.
func (l *Loop) Latest() *telemetry.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// Cycles returns how many cycles have started.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}
