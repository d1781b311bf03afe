// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Submit caps the end-to-end time allowed for a single action submission,
// covering lock acquisition, validation, persistence, and broadcast fan-out.
const Submit = 24 * time.Second

// Validator caps a single validator invocation inside the sandbox.
const Validator = 2 * time.Second

// LLMRequest caps one request to the language model provider during
// conversion.
const LLMRequest = 60 * time.Second

// ConverterRequest caps one request from the game service to the
// conversion service.
const ConverterRequest = 15 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
