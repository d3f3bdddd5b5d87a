// Package telemetry provides the shared data model and Redis document schema
// used by the grid coordinator, its producers, and the gridctl CLI.
//
// # Overview
//
// Producers (solar, weather, battery, load, energy price) register with the
// coordinator and expose a read-only status endpoint. Every aggregation cycle
// the coordinator fetches each registered participant and merges the results
// into one Snapshot, which carries a Recommendation derived from the combined
// price, battery and load state.
//
// # Core Types
//
// Participant is a registered producer. Its identity is assigned by the
// coordinator and never changes; LastHeartbeat is the only mutable field.
//
// TelemetryRecord is the per-participant result of one fetch, tagged with a
// FetchStatus (ok, timeout, unreachable, malformed).
//
// Snapshot is one cycle's merged view. It is immutable once built.
//
// RegistrySnapshot is a periodic dump of registry membership, written to a
// separate audit namespace.
//
// # Redis Schema
//
// All keys are namespaced by instance name:
//
//	Snapshot document:  grid:{instance}:snapshot:{snapshot_id}
//	Snapshot index:     grid:{instance}:snapshots              (ZSET, score = unix ms)
//	Latest pointer:     grid:{instance}:snapshot:latest
//	Snapshot events:    grid:{instance}:snapshot_events        (Pub/Sub)
//	Registry audit:     grid:{instance}:audit:registry:{id}
//	Registry audit idx: grid:{instance}:audit:registry         (ZSET)
//
// Documents are stored as complete JSON so that any record can be replayed
// from the local fallback file without loss.
package telemetry
