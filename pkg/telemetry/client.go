package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for snapshot documents and
// registry audit documents. All keys and channels are namespaced with the
// instance name. The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new telemetry document client for the specified instance.
// Returns an error if instanceName is empty.
//
// Context deadlines are always applied to socket reads and writes, so a
// caller's timeout bounds every command even when the server stalls.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	redisOpts.ContextTimeoutEnabled = true

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client writes to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveSnapshot writes the full snapshot document, indexes it by timestamp,
// moves the latest pointer, and publishes the snapshot on the events channel.
//
// The write is idempotent by snapshot ID, so replaying a fallback record that
// was already synced leaves the store unchanged.
func (c *Client) SaveSnapshot(ctx context.Context, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	ms := s.Timestamp.UnixMilli()
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SnapshotKey(c.instanceName, s.ID), data, 0)
		pipe.ZAdd(ctx, SnapshotIndexKey(c.instanceName), redis.Z{Score: TimestampScore(ms), Member: s.ID})
		pipe.Set(ctx, LatestSnapshotKey(c.instanceName), s.ID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot to Redis: %w", err)
	}

	if err := c.rdb.Publish(ctx, SnapshotEventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot event: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot by ID.
// Returns (nil, redis.Nil) if the snapshot doesn't exist. Use IsNotFound() to check.
func (c *Client) GetSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	data, err := c.rdb.Get(ctx, SnapshotKey(c.instanceName, snapshotID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	return &s, nil
}

// LatestSnapshot retrieves the most recently written snapshot.
// Returns (nil, redis.Nil) if no snapshot has been written yet.
func (c *Client) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	id, err := c.rdb.Get(ctx, LatestSnapshotKey(c.instanceName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read latest snapshot pointer: %w", err)
	}
	return c.GetSnapshot(ctx, id)
}

// ListSnapshots returns snapshots whose timestamp falls within [sinceMs, untilMs],
// newest first. Zero bounds mean unbounded; limit <= 0 means no limit.
// Index entries whose document has vanished are skipped.
func (c *Client) ListSnapshots(ctx context.Context, sinceMs, untilMs int64, limit int) ([]*Snapshot, error) {
	ids, err := c.rangeIndex(ctx, SnapshotIndexKey(c.instanceName), sinceMs, untilMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot index: %w", err)
	}
	if len(ids) == 0 {
		return []*Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = SnapshotKey(c.instanceName, id)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots from Redis: %w", err)
	}

	snapshots := make([]*Snapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("failed to deserialize snapshot %s: %w", ids[i], err)
		}
		snapshots = append(snapshots, &s)
	}

	return snapshots, nil
}

// ScanSnapshotIDs returns all indexed snapshot IDs starting with prefix.
func (c *Client) ScanSnapshotIDs(ctx context.Context, prefix string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, SnapshotIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot index: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// SaveRegistrySnapshot writes a registry audit document to the audit namespace.
func (c *Client) SaveRegistrySnapshot(ctx context.Context, r *RegistrySnapshot) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid registry snapshot: %w", err)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize registry snapshot: %w", err)
	}

	ms := r.Timestamp.UnixMilli()
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RegistryAuditKey(c.instanceName, r.ID), data, 0)
		pipe.ZAdd(ctx, RegistryAuditIndexKey(c.instanceName), redis.Z{Score: TimestampScore(ms), Member: r.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write registry snapshot to Redis: %w", err)
	}

	return nil
}

// ListRegistrySnapshots returns registry audit documents newest first.
func (c *Client) ListRegistrySnapshots(ctx context.Context, limit int) ([]*RegistrySnapshot, error) {
	ids, err := c.rangeIndex(ctx, RegistryAuditIndexKey(c.instanceName), 0, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry audit index: %w", err)
	}

	out := make([]*RegistrySnapshot, 0, len(ids))
	for _, id := range ids {
		data, err := c.rdb.Get(ctx, RegistryAuditKey(c.instanceName, id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read registry snapshot %s: %w", id, err)
		}
		var r RegistrySnapshot
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to deserialize registry snapshot %s: %w", id, err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// rangeIndex reads index members newest first between two millisecond bounds.
func (c *Client) rangeIndex(ctx context.Context, key string, sinceMs, untilMs int64, limit int) ([]string, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if sinceMs > 0 {
		opt.Min = strconv.FormatInt(sinceMs, 10)
	}
	if untilMs > 0 {
		opt.Max = strconv.FormatInt(untilMs, 10)
	}
	if limit > 0 {
		opt.Count = int64(min(limit, math.MaxInt32))
	}
	return c.rdb.ZRevRangeByScore(ctx, key, opt).Result()
}

// SnapshotSubscription is an active Pub/Sub subscription to snapshot events.
// Caller must call Close() when done.
type SnapshotSubscription struct {
	events <-chan *Snapshot
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of snapshot events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *SnapshotSubscription) Events() <-chan *Snapshot {
	return s.events
}

// Errors returns non-fatal subscription errors such as undecodable payloads.
func (s *SnapshotSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *SnapshotSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeSnapshots subscribes to snapshot events for this instance.
// Delivery is at-most-once; a slow subscriber may miss events.
func (c *Client) SubscribeSnapshots(ctx context.Context) (*SnapshotSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, SnapshotEventsChannel(c.instanceName))

	// Wait for subscription confirmation so no event published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to snapshot events: %w", err)
	}

	eventsChan := make(chan *Snapshot, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var s Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal snapshot event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &s:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &SnapshotSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
