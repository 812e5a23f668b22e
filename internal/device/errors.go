package device

import "errors"

// Sentinel errors for device operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrDeviceNotFound indicates no device matched the given identifier.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrMissingIPAddress indicates a registration or lookup arrived
	// without any usable address.
	ErrMissingIPAddress = errors.New("missing ip address")

	// ErrInvalidStatus indicates a status value outside the known set.
	ErrInvalidStatus = errors.New("invalid device status")
)
