// Package api contains the game service transport implementations.
//
// Handlers are organized by transport. The HTTP surface in httpapi is the
// canonical one: room lifecycle, action submission, snapshots, document and
// QR serving, conversion proxying, and the WebSocket event stream.
package api
