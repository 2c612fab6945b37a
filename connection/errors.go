package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when Open is called on a client that
	// isn't Closed. That's caller misuse, not a transient condition.
	ErrInvalidState = errors.New("client must be closed before opening")

	// ErrNotOpen is returned by Send when the client isn't Open.
	ErrNotOpen = errors.New("client is not open")

	// ErrMessageTooLarge is returned by Send when the payload exceeds
	// the configured maximum message size.
	ErrMessageTooLarge = errors.New("message size exceeds limit")

	// ErrConnectionClosed is returned when a layer finished construction
	// only to find the client was concurrently closed.
	ErrConnectionClosed = errors.New("connection is closed")
)

// InvalidTargetError wraps the parse failure for a malformed target url.
type InvalidTargetError struct {
	Target string
	Err    error
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %s: %s", e.Target, e.Err)
}

func (e *InvalidTargetError) Unwrap() error { return e.Err }

// LayerError reports a transport layer that entered the Failed state or
// could not be initialized. A Disconnected layer is expected remote
// closure and never produces one of these.
type LayerError struct {
	Layer string
	Err   error
}

func (e *LayerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s connection failed: %s", e.Layer, e.Err)
	}
	return fmt.Sprintf("%s connection failed", e.Layer)
}

func (e *LayerError) Unwrap() error { return e.Err }
