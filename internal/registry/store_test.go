package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testAddr = telemetry.Address{Scheme: "http", Host: "localhost", Port: 8004}

func TestRegister(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	id := store.Register("battery-1", testAddr, []string{"battery"})
	require.NotEmpty(t, id)

	p, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "battery-1", p.Name)
	assert.Equal(t, testAddr, p.Address)
	assert.Equal(t, []string{"battery"}, p.Capabilities)
	assert.Equal(t, clock.Now(), p.RegisteredAt)
	assert.Equal(t, p.RegisteredAt, p.LastHeartbeat)
	assert.NoError(t, p.Validate())
}

func TestRegisterGeneratesUniqueIDs(t *testing.T) {
	// Generator that collides once before producing a fresh value
	seq := []string{"id-a", "id-a", "id-b"}
	i := 0
	store := NewStore(WithIDGenerator(func() string {
		v := seq[i]
		i++
		return v
	}))

	first := store.Register("a", testAddr, nil)
	second := store.Register("b", testAddr, nil)
	assert.Equal(t, "id-a", first)
	assert.Equal(t, "id-b", second)
	assert.Equal(t, 2, store.Len())
}

func TestRegisterCopiesCapabilities(t *testing.T) {
	store := NewStore()
	caps := []string{"solar"}
	id := store.Register("solar-1", testAddr, caps)
	caps[0] = "mutated"

	p, _ := store.Get(id)
	assert.Equal(t, "solar", p.Capabilities[0])

	// Mutating a returned copy never reaches the store
	p.Capabilities[0] = "mutated"
	p.Name = "mutated"
	again, _ := store.Get(id)
	assert.Equal(t, "solar", again.Capabilities[0])
	assert.Equal(t, "solar-1", again.Name)
}

func TestDeregisterIsIdempotent(t *testing.T) {
	store := NewStore()
	id := store.Register("load-1", testAddr, []string{"load"})

	assert.True(t, store.Deregister(id))
	assert.False(t, store.Deregister(id))
	assert.False(t, store.Deregister("never-registered"))
	assert.Equal(t, 0, store.Len())
}

func TestHeartbeat(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))
	id := store.Register("price-1", testAddr, []string{"price"})

	clock.Advance(5 * time.Second)
	require.NoError(t, store.Heartbeat(id))

	p, _ := store.Get(id)
	assert.Equal(t, clock.Now(), p.LastHeartbeat)
	assert.True(t, p.LastHeartbeat.After(p.RegisteredAt))

	t.Run("unknown id returns ErrNotFound and creates nothing", func(t *testing.T) {
		err := store.Heartbeat("never-registered")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("deregistered id returns ErrNotFound", func(t *testing.T) {
		store.Deregister(id)
		assert.ErrorIs(t, store.Heartbeat(id), ErrNotFound)
		assert.Equal(t, 0, store.Len())
	})
}

func TestListOrdering(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, store.Register(fmt.Sprintf("p-%d", i), testAddr, nil))
		clock.Advance(time.Second)
	}

	list := store.List()
	require.Len(t, list, 3)
	for i, p := range list {
		assert.Equal(t, ids[i], p.ID)
	}
}

func TestSweepExpired(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))
	ttl := 30 * time.Second

	stale := store.Register("stale", testAddr, nil)
	fresh := store.Register("fresh", testAddr, nil)

	clock.Advance(20 * time.Second)
	require.NoError(t, store.Heartbeat(fresh))

	clock.Advance(ttl) // stale is now 50s silent, fresh 30s

	// Present before the sweep
	_, ok := store.Get(stale)
	assert.True(t, ok)

	removed := store.SweepExpired(ttl)
	require.Len(t, removed, 1)
	assert.Equal(t, stale, removed[0].ID)

	_, ok = store.Get(stale)
	assert.False(t, ok, "expired participant must be absent after sweep")

	// Exactly ttl of silence is not expired
	_, ok = store.Get(fresh)
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	removed = store.SweepExpired(ttl)
	require.Len(t, removed, 1)
	assert.Equal(t, fresh, removed[0].ID)
	assert.Empty(t, store.List())
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := store.Register(fmt.Sprintf("w%d-%d", w, i), testAddr, []string{"load"})
				_ = store.Heartbeat(id)
				for _, p := range store.List() {
					// Every listed participant is fully formed
					assert.False(t, p.RegisteredAt.IsZero())
					assert.NotEmpty(t, p.Name)
				}
				if i%2 == 0 {
					store.Deregister(id)
				}
				store.SweepExpired(time.Hour)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8*50, store.Len())
}

// TestNetEffectProperty checks that List reflects exactly the net effect of
// any sequence of register, deregister and heartbeat calls.
func TestNetEffectProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("list matches model after any operation sequence", prop.ForAll(
		func(ops []int) bool {
			store := NewStore()
			model := map[string]bool{}
			var seen []string

			for _, op := range ops {
				kind := op % 3
				target := ""
				if len(seen) > 0 {
					target = seen[(op/3)%len(seen)]
				}

				switch kind {
				case 0:
					id := store.Register("p", testAddr, nil)
					if model[id] {
						return false // identity reused
					}
					model[id] = true
					seen = append(seen, id)
				case 1:
					if target == "" {
						continue
					}
					removed := store.Deregister(target)
					if removed != model[target] {
						return false
					}
					delete(model, target)
				case 2:
					if target == "" {
						target = "unknown"
					}
					err := store.Heartbeat(target)
					if model[target] != (err == nil) {
						return false
					}
				}
			}

			list := store.List()
			if len(list) != len(model) {
				return false
			}
			for _, p := range list {
				if !model[p.ID] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}
