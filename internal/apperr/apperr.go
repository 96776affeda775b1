// Package apperr defines the sentinel error kinds that are allowed to
// cross a component boundary. Everything else (parse failures, callback
// failures, queue overflow, transient network errors, staleness) is
// self-contained within its component and only ever surfaces as a
// counter.
package apperr

import "errors"

var (
	// ErrInvalidConfig is returned by a component constructor when the
	// config passed to it fails validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidState is returned when an operation is attempted from a
	// state that does not allow it (e.g. Connect from anything but INIT).
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed call arguments (e.g.
	// Poll with maxEvents <= 0).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthenticated is returned when the initial connect attempt
	// fails authentication against the broker.
	ErrUnauthenticated = errors.New("unauthenticated")
)
