// Package driver defines the contract between the session core and the
// concrete browser automation layer. The core never inspects a resource
// beyond this interface.
package driver

import (
	"context"
	"errors"
)

// ErrResourceUnavailable is returned when the backing browser process cannot
// be started or re-opened. Jobs abort and surface it to the caller; the
// session is left without a resource.
var ErrResourceUnavailable = errors.New("automation resource unavailable")

// Resource is an opaque handle to one live automation resource
// (a browser plus its profile). Expensive to create, reused across jobs.
type Resource interface {
	// Close tears the resource down. Idempotent; must not fail on double close.
	Close() error
	// Healthy is a cheap liveness check, used opportunistically before reuse.
	Healthy() bool
}

// Driver creates resources on demand.
type Driver interface {
	// Open starts a resource backed by the given persistent profile directory.
	// Fails with ErrResourceUnavailable (possibly wrapped) when the backing
	// process cannot start.
	Open(ctx context.Context, profileDir string) (Resource, error)
}
