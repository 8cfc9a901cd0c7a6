package vl53l5cx

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when the liveness check fails, at bind time
	// or after an address change.
	ErrDeviceNotFound = errors.New("vl53l5cx: device not found")
	// ErrInitialization is returned when the engine init sequence fails.
	ErrInitialization = errors.New("vl53l5cx: initialization failed")
	// ErrInvalidParameter is returned before any bus traffic when a setter
	// argument is out of range.
	ErrInvalidParameter = errors.New("vl53l5cx: invalid parameter")
	// ErrPrecondition is returned when the session is not in a state allowing
	// the operation.
	ErrPrecondition = errors.New("vl53l5cx: precondition not met")
	// ErrTransport wraps bus failures reported through the platform callbacks.
	ErrTransport = errors.New("vl53l5cx: transport failure")
	// ErrDecode is returned when a ranging frame could not be read. The
	// session stays in ranging state.
	ErrDecode = errors.New("vl53l5cx: ranging data unavailable")
)

// StatusError carries a non-zero status returned by an engine entry point.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Status, uint8(e.Status))
}
