// Package registry owns live-room bookkeeping for the game service: the
// per-room submit locks, the subscriber hubs, and the read cache in front of
// the store.
//
// The cache is an accelerator, not an authority. Entries carry a short
// freshness TTL and every committed write invalidates the room's entry, so a
// reader either sees a recently written snapshot or falls through to the
// store. Locks and hubs are keyed by room id; no registry-wide lock is held
// while room work runs.
package registry
