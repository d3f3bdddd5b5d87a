// Package registry holds the coordinator's table of registered participants.
//
// The Store is the single synchronization boundary for membership: the
// registration API and the aggregation loop both go through it, and every read
// returns copies so no caller can observe a partially-updated participant.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Heartbeat for an unknown participant ID.
// The remote participant is expected to re-register.
var ErrNotFound = errors.New("participant not found")

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// Store is an in-memory, mutex-guarded participant table.
type Store struct {
	mu           sync.RWMutex
	participants map[string]*telemetry.Participant
	now          Clock
	newID        func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Store) { s.now = c }
}

// WithIDGenerator overrides identity generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		participants: make(map[string]*telemetry.Participant),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register inserts a new participant and returns its identity.
// It always succeeds; callers validate the address before calling.
func (s *Store) Register(name string, addr telemetry.Address, capabilities []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.participants[id]; !taken {
			break
		}
		id = s.newID()
	}

	now := s.now()
	s.participants[id] = &telemetry.Participant{
		ID:            id,
		Name:          name,
		Address:       addr,
		Capabilities:  append([]string(nil), capabilities...),
		RegisteredAt:  now,
		LastHeartbeat: now,
	}

	return id
}

// Deregister removes the participant if present. Unknown IDs are a no-op.
// Reports whether an entry was removed.
func (s *Store) Deregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[id]; !ok {
		return false
	}
	delete(s.participants, id)
	return true
}

// Heartbeat refreshes LastHeartbeat. Returns ErrNotFound for unknown IDs and never creates an entry.
func (s *Store) Heartbeat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.LastHeartbeat = s.now()
	return nil
}

// Get returns a copy of one participant.
func (s *Store) Get(id string) (*telemetry.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns copies of all participants ordered by registration time, then ID.
func (s *Store) List() []*telemetry.Participant {
	s.mu.RLock()
	out := make([]*telemetry.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the current membership size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// SweepExpired removes every participant whose silence exceeds ttl and
// returns the removed participants ordered by ID.
func (s *Store) SweepExpired(ttl time.Duration) []*telemetry.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed []*telemetry.Participant
	for id, p := range s.participants {
		if now.Sub(p.LastHeartbeat) > ttl {
			removed = append(removed, p)
			delete(s.participants, id)
		}
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed
}
