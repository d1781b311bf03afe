// Package auth holds credential issuance for game transports.
//
// Players never hold accounts. Joining a room mints a short-lived
// room-scoped token; every subsequent action and socket upgrade presents
// it. Subpackage token implements the signer and verifier.
package auth
