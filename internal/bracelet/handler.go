package bracelet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/device"
)

// Registry is the subset of the device registry the listener drives.
type Registry interface {
	Register(ctx context.Context, p device.RegisterParams) (*device.Device, error)
	RecordActivity(ip string)
	MarkEmergency(ctx context.Context, identifier, patientName, roomNumber, bedNumber string) (*device.Device, error)
	ClearEmergency(ctx context.Context, identifier string) (*device.Device, error)
	UpdateInfo(ctx context.Context, deviceID string, info device.InfoUpdate) (*device.Device, error)
	MarkDisconnected(ctx context.Context, ip string)
	Find(identifier string) (*device.Device, error)
}

// Alarms is the subset of the alarm coordinator the listener drives.
type Alarms interface {
	Activate(t alarm.Trigger) (alarm.Alarm, bool)
	Deactivate(ctx context.Context) (alarm.Alarm, bool)
}

const writeTimeout = 5 * time.Second

// Handler owns one bracelet session. It reads newline-delimited
// messages, dispatches them, and writes replies. Exactly one Handler
// exists per live connection; when the read loop exits for any reason
// the device is marked disconnected.
type Handler struct {
	conn     net.Conn
	remoteIP string

	registry Registry
	alarms   Alarms
	logger   Logger

	readTimeout time.Duration

	// deviceID tracks the identity the session has claimed so far.
	// Plain-text stops arrive with no identifier at all; the last
	// claimed ID (or a synthesised one) stands in.
	mu       sync.Mutex
	deviceID string

	writeMu   sync.Mutex
	closeOnce sync.Once
	onClose   func(*Handler)
}

func newHandler(conn net.Conn, registry Registry, alarms Alarms, readTimeout time.Duration, logger Logger) *Handler {
	ip := remoteIP(conn)
	return &Handler{
		conn:        conn,
		remoteIP:    ip,
		registry:    registry,
		alarms:      alarms,
		logger:      logger,
		readTimeout: readTimeout,
	}
}

// remoteIP extracts the bare IP from a connection's remote address.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// RemoteIP returns the peer IP of this session.
func (h *Handler) RemoteIP() string {
	return h.remoteIP
}

// run is the session read loop. Blocks until the peer disconnects, the
// read deadline expires, or the context is cancelled.
func (h *Handler) run(ctx context.Context) {
	defer h.teardown(ctx)

	h.logger.Info("bracelet connected", "ip", h.remoteIP)

	scanner := bufio.NewScanner(h.conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineSize)

	for {
		if ctx.Err() != nil {
			return
		}
		if h.readTimeout > 0 {
			if err := h.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
				return
			}
		}
		if !scanner.Scan() {
			err := scanner.Err()
			if errors.Is(err, bufio.ErrTooLong) {
				err = ErrLineTooLong
			}
			if err != nil && !isExpectedClose(err) {
				h.logger.Warn("bracelet read error", "ip", h.remoteIP, "error", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.processLine(ctx, line)
	}
}

// isExpectedClose reports whether a read error is ordinary session
// teardown rather than something worth a warning.
func isExpectedClose(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// teardown closes the connection and records the disconnect. Safe to
// call more than once; only the first call does the work.
func (h *Handler) teardown(ctx context.Context) {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
		// Disconnect bookkeeping must survive a cancelled context;
		// shutdown is exactly when it runs.
		h.registry.MarkDisconnected(context.WithoutCancel(ctx), h.remoteIP)
		h.logger.Info("bracelet disconnected", "ip", h.remoteIP)
		if h.onClose != nil {
			h.onClose(h)
		}
	})
}

// close tears the session down from outside the read loop.
func (h *Handler) close(ctx context.Context) {
	h.teardown(ctx)
}

// processLine dispatches a single protocol line. Malformed input is
// answered and logged, never fatal to the session: one bad line from a
// flaky bracelet must not drop an otherwise healthy link.
func (h *Handler) processLine(ctx context.Context, line string) {
	h.registry.RecordActivity(h.remoteIP)
	h.logger.Debug("bracelet line received", "ip", h.remoteIP, "bytes", len(line))

	if IsStructured(line) {
		h.processFrame(ctx, line)
		return
	}

	switch {
	case PlainEmergency(line):
		h.handleEmergencyStart(ctx, &Frame{
			DeviceID:    h.claimDeviceID(""),
			PatientName: "Unknown Patient",
			RoomNumber:  "Unknown Room",
		})
	case PlainStop(line):
		h.handleEmergencyStop(ctx, &Frame{DeviceID: h.claimDeviceID("")})
	default:
		h.logger.Debug("unrecognised text line", "ip", h.remoteIP)
		h.send(Reply{Status: ReplyStatusOK, Message: "Message received"})
	}
}

func (h *Handler) processFrame(ctx context.Context, line string) {
	frame, err := DecodeFrame(line)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCommand):
			h.send(Reply{Error: "No command specified"})
		default:
			h.logger.Warn("malformed frame", "ip", h.remoteIP, "error", err)
			h.send(Reply{Error: "Invalid JSON format"})
		}
		return
	}

	switch frame.Command {
	case CommandRegister:
		h.handleRegister(ctx, frame)
	case CommandEmergencyStart:
		h.handleEmergencyStart(ctx, frame)
	case CommandEmergencyStop:
		h.handleEmergencyStop(ctx, frame)
	case CommandDeviceInfo:
		h.handleDeviceInfo(ctx, frame)
	default:
		h.logger.Warn("unknown command", "ip", h.remoteIP,
			"error", fmt.Errorf("%w: %s", ErrUnknownCommand, frame.Command))
		h.send(Reply{Error: "Unknown command", Command: string(frame.Command)})
	}
}

func (h *Handler) handleRegister(ctx context.Context, frame *Frame) {
	deviceID := h.claimDeviceID(frame.DeviceID)

	// The frame may claim an address; the peer address is the default.
	ip := frame.IPAddress
	if ip == "" {
		ip = h.remoteIP
	}

	_, err := h.registry.Register(ctx, device.RegisterParams{
		DeviceID:    deviceID,
		MACAddress:  frame.MACAddress,
		IPAddress:   ip,
		PatientName: frame.PatientName,
		RoomNumber:  frame.RoomNumber,
		BedNumber:   frame.BedNumber,
	})
	if err != nil {
		h.logger.Error("registration failed", "ip", h.remoteIP, "device_id", deviceID, "error", err)
		h.send(Reply{Error: "Registration failed"})
		return
	}

	h.send(Reply{Status: ReplyStatusRegistered, Message: "Device registered successfully"})
}

func (h *Handler) handleEmergencyStart(ctx context.Context, frame *Frame) {
	deviceID := h.claimDeviceID(frame.DeviceID)

	dev, err := h.registry.MarkEmergency(ctx, deviceID, frame.PatientName, frame.RoomNumber, frame.BedNumber)
	trigger := alarm.Trigger{
		Source:      "bracelet",
		DeviceID:    deviceID,
		PatientName: frame.PatientName,
		RoomNumber:  frame.RoomNumber,
		BedNumber:   frame.BedNumber,
	}
	if err != nil {
		// The alarm sounds regardless. A mismatched identifier is a
		// data problem; an unanswered emergency is a patient problem.
		h.logger.Warn("emergency from unknown device", "ip", h.remoteIP, "device_id", deviceID, "error", err)
	} else {
		trigger.DeviceID = dev.DeviceID
		if trigger.PatientName == "" {
			trigger.PatientName = dev.PatientName
		}
		if trigger.RoomNumber == "" {
			trigger.RoomNumber = dev.RoomNumber
		}
		if trigger.BedNumber == "" {
			trigger.BedNumber = dev.BedNumber
		}
	}

	h.alarms.Activate(trigger)
	h.send(Reply{Status: ReplyStatusAck, Action: ReplyActionAlarmStarted})
}

func (h *Handler) handleEmergencyStop(ctx context.Context, frame *Frame) {
	deviceID := h.claimDeviceID(frame.DeviceID)

	if _, err := h.registry.ClearEmergency(ctx, deviceID); err != nil {
		h.logger.Warn("emergency stop from unknown device", "ip", h.remoteIP, "device_id", deviceID, "error", err)
	}

	h.alarms.Deactivate(ctx)
	h.send(Reply{Status: ReplyStatusAck, Action: ReplyActionAlarmStopped})
}

func (h *Handler) handleDeviceInfo(ctx context.Context, frame *Frame) {
	deviceID := h.claimDeviceID(frame.DeviceID)

	status := device.Status(frame.Status)
	if frame.Status == "" {
		status = device.StatusConnected
	}
	var emergency device.EmergencyStatus
	if strings.EqualFold(frame.Emergency, string(device.EmergencyActive)) {
		emergency = device.EmergencyActive
	}

	_, err := h.registry.UpdateInfo(ctx, deviceID, device.InfoUpdate{
		PatientName: frame.PatientName,
		RoomNumber:  frame.RoomNumber,
		BedNumber:   frame.BedNumber,
		Status:      status,
		Emergency:   emergency,
	})
	switch {
	case errors.Is(err, device.ErrInvalidStatus):
		h.send(Reply{Error: "Invalid status value"})
		return
	case err != nil:
		// Info for a device that never registered is dropped, not
		// fatal.
		h.logger.Warn("device info for unknown device", "ip", h.remoteIP, "device_id", deviceID, "error", err)
	}

	h.send(Reply{Status: ReplyStatusAck, Message: "Device info updated"})
}

// claimDeviceID resolves the working device identity for this session:
// the frame's ID if it sent one, else whatever the session claimed
// earlier, else one synthesised from the peer address. The result is
// remembered for later lines.
func (h *Handler) claimDeviceID(frameID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if frameID != "" {
		h.deviceID = frameID
	}
	if h.deviceID == "" {
		h.deviceID = SynthesizeDeviceID(h.remoteIP)
	}
	return h.deviceID
}

// send writes a reply line. Write failures tear the session down via
// the read loop noticing the closed socket.
func (h *Handler) send(r Reply) {
	h.write(EncodeReply(r))
}

// write sends raw bytes with a deadline, serialised against concurrent
// pushes from the server.
func (h *Handler) write(data []byte) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	if _, err := h.conn.Write(data); err != nil {
		h.logger.Warn("bracelet write failed", "ip", h.remoteIP, "error", err)
		_ = h.conn.Close()
	}
}
