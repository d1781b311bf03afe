// Package bridge implements the event protocol between a converted game
// document and its host.
//
// The bridge carries two directions of traffic. Game-side events
// (TRANSITION, INTERACTION, UPDATE, ERROR) are stamped with a per-session
// sequence number, batched, and posted to the host as envelopes. Host-side
// messages (STATE_UPDATE, PLAYER_ACTION, GAME_EVENT, CONFIG_UPDATE) are
// routed by kind to registered subscribers.
//
// The embedded script/bridge.js asset implements the same contract inside
// the converted document; the Go types here are the authoritative wire
// definition used by the ingest endpoint and by host-side consumers.
package bridge
