package persistence

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a telemetry client connected to a miniredis instance
func setupTestClient(t *testing.T) (*telemetry.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := telemetry.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newTestSnapshot() *telemetry.Snapshot {
	battery := uuid.New().String()
	price := uuid.New().String()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	return &telemetry.Snapshot{
		ID:        uuid.New().String(),
		Instance:  "test-instance",
		Cycle:     7,
		Timestamp: ts,
		Records: map[string]*telemetry.TelemetryRecord{
			battery: {
				ParticipantID: battery,
				Name:          "battery-1",
				Category:      "battery",
				Status:        telemetry.FetchStatusOK,
				Fields:        map[string]any{"soc": 80.0, "mode": "idle"},
				FetchedAt:     ts,
				LatencyMs:     12,
			},
			price: {
				ParticipantID: price,
				Name:          "price-1",
				Category:      "price",
				Status:        telemetry.FetchStatusMalformed,
				Error:         "missing required fields",
				Missing:       []string{"price"},
				FetchedAt:     ts,
			},
		},
		Recommendation: &telemetry.Recommendation{
			Action:     telemetry.ActionInsufficientData,
			Rule:       "insufficient_data",
			Rationale:  "price field unavailable",
			InputsUsed: map[string]any{"soc": 80.0, "soc_source": battery},
		},
	}
}

func TestPersist_Primary(t *testing.T) {
	client, _ := setupTestClient(t)
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	p := NewPersister(client, NewFallbackFile(path), "test-instance", time.Second, zerolog.Nop())

	snap := newTestSnapshot()
	result := p.Persist(context.Background(), snap)

	assert.Equal(t, StatusPrimary, result.Status)
	assert.NoError(t, result.Err)
	assert.True(t, result.OK())

	stored, err := client.GetSnapshot(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, stored)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "fallback file must not be created on primary success")
}

func TestPersist_FallbackRoundTrip(t *testing.T) {
	client, mr := setupTestClient(t)
	mr.Close() // primary now refuses connections

	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	p := NewPersister(client, NewFallbackFile(path), "test-instance", 500*time.Millisecond, zerolog.Nop())

	snap := newTestSnapshot()
	result := p.Persist(context.Background(), snap)

	assert.Equal(t, StatusFallback, result.Status)
	assert.True(t, result.OK())
	assert.ErrorIs(t, result.Err, ErrSinkFailure)

	envelopes, err := ReadFallback(path)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	env := envelopes[0]
	assert.Equal(t, FormatV1, env.Format)
	assert.Equal(t, KindSnapshot, env.Kind)
	assert.False(t, env.Synced)
	assert.Equal(t, "test-instance", env.Instance)
	assert.NotEmpty(t, env.Reason)
	assert.NoError(t, env.Validate())
	assert.Equal(t, snap, env.Snapshot, "fallback record must deserialize to the snapshot that failed to persist")
}

func TestPersist_FallbackFailure(t *testing.T) {
	client, mr := setupTestClient(t)
	mr.Close()

	path := filepath.Join(t.TempDir(), "no-such-dir", "fallback.jsonl")
	p := NewPersister(client, NewFallbackFile(path), "test-instance", 500*time.Millisecond, zerolog.Nop())

	result := p.Persist(context.Background(), newTestSnapshot())

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.OK())
	assert.ErrorIs(t, result.Err, ErrFallbackFailure)

	var ferr *FallbackError
	require.True(t, errors.As(result.Err, &ferr))
	assert.Error(t, ferr.Primary)
	assert.Error(t, ferr.Fallback)
}

// blockingSink never completes a write until its context ends.
type blockingSink struct{}

func (blockingSink) SaveSnapshot(ctx context.Context, _ *telemetry.Snapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingSink) SaveRegistrySnapshot(ctx context.Context, _ *telemetry.RegistrySnapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPersist_PrimaryTimeoutIsBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	timeout := 100 * time.Millisecond
	p := NewPersister(blockingSink{}, NewFallbackFile(path), "test-instance", timeout, zerolog.Nop())

	start := time.Now()
	result := p.Persist(context.Background(), newTestSnapshot())
	elapsed := time.Since(start)

	assert.Equal(t, StatusFallback, result.Status)
	assert.ErrorIs(t, result.Err, ErrSinkFailure)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
}

// stalledRedis accepts connections and never replies.
func stalledRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestPersist_PrimaryTimeoutAgainstStalledRedis(t *testing.T) {
	opts, err := redis.ParseURL("redis://" + stalledRedis(t))
	require.NoError(t, err)
	client, err := telemetry.NewClient(opts, "test-instance")
	require.NoError(t, err)
	defer client.Close()

	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	timeout := 200 * time.Millisecond
	p := NewPersister(client, NewFallbackFile(path), "test-instance", timeout, zerolog.Nop())

	start := time.Now()
	result := p.Persist(context.Background(), newTestSnapshot())
	elapsed := time.Since(start)

	assert.Equal(t, StatusFallback, result.Status)
	assert.ErrorIs(t, result.Err, ErrSinkFailure)
	assert.Less(t, elapsed, time.Second, "write should stop at the configured timeout, not the client read timeout")

	envelopes, err := ReadFallback(path)
	require.NoError(t, err)
	assert.Len(t, envelopes, 1)
}

func TestPersist_NilSinkFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	p := NewPersister(nil, NewFallbackFile(path), "test-instance", time.Second, zerolog.Nop())

	result := p.Persist(context.Background(), newTestSnapshot())
	assert.Equal(t, StatusFallback, result.Status)
}

func TestPersistRegistry(t *testing.T) {
	client, mr := setupTestClient(t)
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	p := NewPersister(client, NewFallbackFile(path), "test-instance", 500*time.Millisecond, zerolog.Nop())

	reg := &telemetry.RegistrySnapshot{
		ID:        uuid.New().String(),
		Instance:  "test-instance",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Participants: []*telemetry.Participant{{
			ID:            uuid.New().String(),
			Name:          "load-1",
			Address:       telemetry.Address{Scheme: "http", Host: "localhost", Port: 8003},
			Capabilities:  []string{"load"},
			RegisteredAt:  time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
			LastHeartbeat: time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
		}},
	}

	result := p.PersistRegistry(context.Background(), reg)
	require.Equal(t, StatusPrimary, result.Status)

	stored, err := client.ListRegistrySnapshots(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, reg, stored[0])

	mr.Close()
	result = p.PersistRegistry(context.Background(), reg)
	require.Equal(t, StatusFallback, result.Status)

	envelopes, err := ReadFallback(path)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, KindRegistrySnapshot, envelopes[0].Kind)
	assert.Equal(t, reg, envelopes[0].Registry)
}
