package bracelet

import "errors"

// Sentinel errors for the bracelet listener and protocol.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidFrame indicates a line that looked structured but did
	// not parse as JSON.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrMissingCommand indicates a JSON frame with no command field.
	ErrMissingCommand = errors.New("missing command")

	// ErrUnknownCommand indicates a command outside the known set.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrServerClosed indicates an operation on a stopped server.
	ErrServerClosed = errors.New("bracelet server is closed")

	// ErrDeviceNotConnected indicates a push to a device with no live
	// session.
	ErrDeviceNotConnected = errors.New("device not connected")

	// ErrLineTooLong indicates a protocol line exceeding maxLineSize.
	ErrLineTooLong = errors.New("line exceeds maximum size")
)
