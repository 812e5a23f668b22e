package bracelet

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Command is the command field of a structured frame.
type Command string

const (
	CommandRegister       Command = "REGISTER"
	CommandEmergencyStart Command = "EMERGENCY_START"
	CommandEmergencyStop  Command = "EMERGENCY_STOP"
	CommandDeviceInfo     Command = "DEVICE_INFO"
)

// Frame is one structured line from a bracelet. Bracelets send compact
// JSON objects, one per line; fields they do not know are simply
// absent and decode to empty strings.
type Frame struct {
	Command     Command `json:"command"`
	DeviceID    string  `json:"device_id,omitempty"`
	MACAddress  string  `json:"mac_address,omitempty"`
	IPAddress   string  `json:"ip_address,omitempty"`
	PatientName string  `json:"patient,omitempty"`
	RoomNumber  string  `json:"room,omitempty"`
	BedNumber   string  `json:"bed,omitempty"`
	Status      string  `json:"status,omitempty"`
	Emergency   string  `json:"emergency,omitempty"`
}

// Reply is one structured line back to a bracelet.
type Reply struct {
	Status     string `json:"status,omitempty"`
	Action     string `json:"action,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Command    string `json:"received_command,omitempty"`
	ServerTime string `json:"server_time,omitempty"`
}

// Reply status and action values.
const (
	ReplyStatusRegistered = "REGISTERED"
	ReplyStatusAck        = "ACK"
	ReplyStatusOK         = "OK"

	ReplyActionAlarmStarted = "ALARM_STARTED"
	ReplyActionAlarmStopped = "ALARM_STOPPED"
)

// Push message types for server-initiated lines to a bracelet.
const (
	PushDataUpdate = "DATA_UPDATE"
	PushDataClear  = "DATA_CLEAR"
)

// maxLineSize bounds a single protocol line. Bracelets send tens of
// bytes; anything near this limit is a misbehaving peer.
const maxLineSize = 4096

// IsStructured reports whether the line looks like a JSON frame.
// Everything else goes down the plain-text path.
func IsStructured(line string) bool {
	return strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}")
}

// DecodeFrame parses a structured line. Returns ErrInvalidFrame when
// the JSON does not parse and ErrMissingCommand when it parses but
// carries no command.
func DecodeFrame(line string) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if f.Command == "" {
		return nil, ErrMissingCommand
	}
	return &f, nil
}

// PlainEmergency reports whether a non-JSON line is an emergency
// trigger. Older firmware sends bare "!EMERGENCY!" tokens; the match
// is deliberately loose because that firmware also prepends debris.
func PlainEmergency(line string) bool {
	return line == "!EMERGENCY!" || strings.Contains(strings.ToUpper(line), "EMERGENCY")
}

// PlainStop reports whether a non-JSON line is an emergency stop.
func PlainStop(line string) bool {
	return line == "!STOP!" || strings.Contains(strings.ToUpper(line), "STOP")
}

// SynthesizeDeviceID builds a fallback identifier from a peer IP for
// bracelets that never announce one: "BRACELET_" plus the IP with the
// dots squeezed out.
func SynthesizeDeviceID(ip string) string {
	return "BRACELET_" + strings.ReplaceAll(ip, ".", "")
}

// EncodeReply serialises a reply with the server time stamped in,
// newline terminated.
func EncodeReply(r Reply) []byte {
	if r.ServerTime == "" {
		r.ServerTime = time.Now().Format("15:04:05")
	}
	data, err := json.Marshal(r)
	if err != nil {
		// Reply contains only strings; this cannot fail.
		return []byte("{}\n")
	}
	return append(data, '\n')
}

// EncodePush serialises a server-initiated message to a device,
// newline terminated.
func EncodePush(msgType string, payload map[string]string) []byte {
	msg := make(map[string]string, len(payload)+1)
	msg["type"] = msgType
	for k, v := range payload {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return []byte("{}\n")
	}
	return append(data, '\n')
}
