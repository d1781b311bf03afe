// Package room defines the Room aggregate: identity, lifecycle phase,
// conversion status, roster, opaque state, and the version rule applied on
// every committed mutation.
package room
