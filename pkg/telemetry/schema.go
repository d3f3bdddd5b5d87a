package telemetry

import "fmt"

// Redis key pattern helpers
//
// Key pattern: grid:{instance_name}:{entity}:{id}
// Channel pattern: grid:{instance_name}:{event_type}_events

// SnapshotKey returns the Redis key for a snapshot document.
// Pattern: grid:{instance_name}:snapshot:{snapshot_id}
func SnapshotKey(instanceName, snapshotID string) string {
	return fmt.Sprintf("grid:%s:snapshot:%s", instanceName, snapshotID)
}

// LatestSnapshotKey returns the key holding the ID of the newest snapshot.
// Pattern: grid:{instance_name}:snapshot:latest
func LatestSnapshotKey(instanceName string) string {
	return fmt.Sprintf("grid:%s:snapshot:latest", instanceName)
}

// SnapshotIndexKey returns the ZSET indexing snapshots by timestamp.
// Pattern: grid:{instance_name}:snapshots
func SnapshotIndexKey(instanceName string) string {
	return fmt.Sprintf("grid:%s:snapshots", instanceName)
}

// SnapshotEventsChannel returns the Pub/Sub channel carrying completed snapshots.
// Pattern: grid:{instance_name}:snapshot_events
func SnapshotEventsChannel(instanceName string) string {
	return fmt.Sprintf("grid:%s:snapshot_events", instanceName)
}

// RegistryAuditKey returns the Redis key for one registry audit document.
// Pattern: grid:{instance_name}:audit:registry:{id}
func RegistryAuditKey(instanceName, id string) string {
	return fmt.Sprintf("grid:%s:audit:registry:%s", instanceName, id)
}

// RegistryAuditIndexKey returns the ZSET indexing registry audit documents.
// Pattern: grid:{instance_name}:audit:registry
func RegistryAuditIndexKey(instanceName string) string {
	return fmt.Sprintf("grid:%s:audit:registry", instanceName)
}

// TimestampScore converts a unix millisecond timestamp to a ZSET score.
func TimestampScore(ms int64) float64 {
	return float64(ms)
}
