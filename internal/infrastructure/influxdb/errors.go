package influxdb

import "errors"

// Sentinel errors for the event-history sink.
//
// Classify with errors.Is(); ErrDisabled in particular is ordinary at
// sites that run without InfluxDB:
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // Event history off, nothing to wire
//	}
var (
	// ErrNotConnected indicates the client has not connected yet or
	// has been closed. Writes are dropped, not queued.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates event history is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
