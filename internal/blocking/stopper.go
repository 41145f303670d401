// Package blocking coordinates the device-level app-blocking capability:
// marking it engaged, and stopping it with bounded retries when the expiry
// guard decides a session is over.
package blocking

import (
	"context"
)

// Stopper delivers the stop command to a device's app-blocking capability.
// The capability is an opaque external dependency; this service only
// consumes it.
type Stopper interface {
	StopAppBlocking(ctx context.Context, deviceID string) error
}

// StopperFunc adapts a function to the Stopper interface.
type StopperFunc func(ctx context.Context, deviceID string) error

// StopAppBlocking calls f.
func (f StopperFunc) StopAppBlocking(ctx context.Context, deviceID string) error {
	return f(ctx, deviceID)
}
