// Package bracelet implements the TCP listener that emergency
// bracelets connect to.
//
// The wire protocol is newline-delimited over a plain TCP socket,
// because the bracelets are 80MHz microcontrollers with just enough
// firmware for a socket and a JSON printer. Two message shapes exist
// on the same stream:
//
//   - Structured frames: one JSON object per line carrying a command
//     (REGISTER, EMERGENCY_START, EMERGENCY_STOP, DEVICE_INFO) and
//     whatever fields the firmware knows.
//   - Plain text: legacy firmware sends bare "!EMERGENCY!" and
//     "!STOP!" tokens, matched loosely because those builds also leak
//     debug output onto the stream.
//
// Every line, valid or not, counts as activity for the sending device.
// Malformed lines are answered with an error reply and the session
// carries on; the only things that end a session are the peer going
// away, the read deadline expiring, or shutdown. Session teardown
// always records the disconnect in the registry.
//
// The Server also carries the return path: DATA_UPDATE and DATA_CLEAR
// pushes travel down the same socket when ward staff edit assignments
// on the dashboard.
package bracelet
