// Package httpapi is the HTTP transport for the game service: room CRUD,
// player provisioning, action submission, bridge event ingest, conversion
// requests, and the websocket subscribe/submit channel.
//
// Handlers decode, authenticate, and delegate; all game semantics live in
// the runtime. Responses use a success/error envelope with the
// machine-readable codes from internal/platform/errors.
package httpapi
