// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between process boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// MQTTConnect caps the wait time when establishing the broker session.
const MQTTConnect = 10 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
