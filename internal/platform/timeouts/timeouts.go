// Package timeouts defines shared timeout constants used by the client.
// Keeping them in one place makes the durations discoverable.
package timeouts

import "time"

// HTTPRequest caps a single HTTP attempt against the backend. A retry
// budget multiplies this value; it never extends it.
const HTTPRequest = 10 * time.Second

// RetryDelay is the default wait between attempts of a retried read.
const RetryDelay = time.Second

// Shutdown limits how long telemetry flushing may block process exit.
const Shutdown = 5 * time.Second
