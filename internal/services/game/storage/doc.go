// Package storage defines the persistence contract for the game service.
//
// The interfaces here are the seam between the session runtime and durable
// room state. Implementations must keep UpdateRoom atomic: the full record is
// written in one step guarded by the caller's expected version, so concurrent
// writers observe either the old room or the new one, never a blend.
package storage
