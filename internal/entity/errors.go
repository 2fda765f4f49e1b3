package entity

import "errors"

var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrStorage wraps failures of the underlying record store.
	ErrStorage = errors.New("storage error")

	// ErrTerminalState is returned when a write targets a SUCCESS or GAVE_UP delivery.
	ErrTerminalState = errors.New("delivery is in a terminal state")

	// ErrInvalidTransition is returned for a status write the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid delivery status transition")

	// ErrConcurrentUpdate means the conditional update lost against another writer.
	ErrConcurrentUpdate = errors.New("delivery was updated concurrently")
)
