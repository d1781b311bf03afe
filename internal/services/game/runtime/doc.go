// Package runtime owns room state. Every mutation flows through Submit,
// which serializes actions per room, consults the room's validator (or the
// generic ruleset), commits accepted outcomes with a version guard, and
// fans the result out to subscribers in commit order.
//
// The runtime never mutates a room outside the per-room lock, and a
// rejected or failed action leaves no trace: no version bump, no store
// write, no broadcast.
package runtime
