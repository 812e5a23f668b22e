package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives a fresh snapshot after every registry mutation.
// Implementations must not block; the registry calls this on the
// mutating goroutine after releasing its lock.
type Notifier interface {
	RegistryChanged(devices []Device, connected int)
}

// noopNotifier discards snapshots.
type noopNotifier struct{}

func (noopNotifier) RegistryChanged([]Device, int) {}

// Registry is the authoritative in-memory table of bracelets, keyed by
// IP address. A single mutex covers every read-modify-write so merges,
// sweeps and emergency transitions are atomic with respect to each
// other.
//
// Persistence is best-effort: after each mutation the registry writes a
// full snapshot through the Store and hands the same snapshot to the
// Notifier. Store failures are logged, never rolled back; the in-memory
// table is the source of truth while the process lives.
//
// Display order is insertion order. ClearPatientData keeps the device
// in place, so ward dashboards do not reshuffle when a bed turns over.
type Registry struct {
	mu       sync.Mutex
	devices  map[string]*Device // keyed by IP address
	order    []string           // IPs in display order
	store    Store
	notifier Notifier
	logger   Logger
}

// NewRegistry creates a registry backed by the given store.
// A nil store disables persistence.
func NewRegistry(store Store) *Registry {
	if store == nil {
		store = noopStore{}
	}
	return &Registry{
		devices:  make(map[string]*Device),
		store:    store,
		notifier: noopNotifier{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier sets the snapshot sink for the registry.
func (r *Registry) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	r.notifier = n
}

// Load populates the registry from the store and seeds provisioned
// devices that are not already present. Call once at startup, before
// the listener accepts connections.
//
// Persisted devices come back in their saved display order. Any device
// that was CONNECTED or EMERGENCY when the process died is demoted to
// DISCONNECTED: no socket survives a restart.
func (r *Registry) Load(ctx context.Context, provisioned []Provisioned) error {
	stored, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()

	for i := range stored {
		d := stored[i].Clone()
		if d.IPAddress == "" {
			continue
		}
		if d.Status == StatusConnected || d.Status == StatusEmergency {
			d.Status = StatusDisconnected
		}
		if d.Emergency == "" {
			d.Emergency = EmergencyNone
		}
		if _, exists := r.devices[d.IPAddress]; !exists {
			r.order = append(r.order, d.IPAddress)
		}
		r.devices[d.IPAddress] = d
	}

	seeded := 0
	for _, p := range provisioned {
		if p.IPAddress == "" {
			continue
		}
		if _, exists := r.devices[p.IPAddress]; exists {
			continue
		}
		r.devices[p.IPAddress] = &Device{
			DeviceID:   p.DeviceID,
			MACAddress: p.MACAddress,
			IPAddress:  p.IPAddress,
			Status:     StatusReady,
			Emergency:  EmergencyNone,
		}
		r.order = append(r.order, p.IPAddress)
		seeded++
	}

	count := len(r.devices)
	r.mu.Unlock()

	r.logger.Info("device registry loaded",
		"stored", len(stored),
		"seeded", seeded,
		"total", count,
	)
	return nil
}

// Register records a device announcement. If no device exists at the
// IP, one is created at the end of the display order. If one exists,
// incoming fields merge additively: only non-empty values overwrite,
// so a bare reconnect never wipes a clinical assignment.
//
// Either way the device ends up CONNECTED with fresh activity, except
// that an active emergency is never downgraded by a registration.
func (r *Registry) Register(ctx context.Context, p RegisterParams) (*Device, error) {
	if p.IPAddress == "" {
		return nil, ErrMissingIPAddress
	}

	r.mu.Lock()

	d, exists := r.devices[p.IPAddress]
	if !exists {
		d = &Device{
			IPAddress: p.IPAddress,
			Emergency: EmergencyNone,
		}
		r.devices[p.IPAddress] = d
		r.order = append(r.order, p.IPAddress)
	}

	if p.DeviceID != "" {
		d.DeviceID = p.DeviceID
	}
	if p.MACAddress != "" {
		d.MACAddress = p.MACAddress
	}
	if p.PatientName != "" {
		d.PatientName = p.PatientName
	}
	if p.RoomNumber != "" {
		d.RoomNumber = p.RoomNumber
	}
	if p.BedNumber != "" {
		d.BedNumber = p.BedNumber
	}
	if d.Status != StatusEmergency {
		d.Status = StatusConnected
	}
	d.LastActivity = time.Now()

	result := d.Clone()
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	if exists {
		r.logger.Info("device re-registered", "device_id", result.DeviceID, "ip", result.IPAddress)
	} else {
		r.logger.Info("device registered", "device_id", result.DeviceID, "ip", result.IPAddress)
	}

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return result, nil
}

// RecordActivity bumps the activity timestamp for the device at the
// given IP. Unknown IPs are a benign no-op: traffic can arrive before
// the device ever registers.
func (r *Registry) RecordActivity(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[ip]; ok {
		d.LastActivity = time.Now()
	}
}

// MarkEmergency flags the device matching the identifier as being in
// emergency. Non-empty clinical fields in the report update the record,
// matching the additive rules of Register. Returns the updated device.
//
// Returns ErrDeviceNotFound if no device matches; the caller decides
// whether the alarm still sounds (it does).
func (r *Registry) MarkEmergency(ctx context.Context, identifier, patientName, roomNumber, bedNumber string) (*Device, error) {
	r.mu.Lock()

	d := r.findLocked(identifier)
	if d == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, identifier)
	}

	d.Status = StatusEmergency
	d.Emergency = EmergencyActive
	d.LastActivity = time.Now()
	if patientName != "" {
		d.PatientName = patientName
	}
	if roomNumber != "" {
		d.RoomNumber = roomNumber
	}
	if bedNumber != "" {
		d.BedNumber = bedNumber
	}

	result := d.Clone()
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Warn("device emergency raised",
		"device_id", result.DeviceID,
		"ip", result.IPAddress,
		"patient", result.PatientName,
		"room", result.RoomNumber,
	)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return result, nil
}

// ClearEmergency clears the emergency flag on the device matching the
// identifier and restores it to CONNECTED. Returns ErrDeviceNotFound if
// no device matches.
func (r *Registry) ClearEmergency(ctx context.Context, identifier string) (*Device, error) {
	r.mu.Lock()

	d := r.findLocked(identifier)
	if d == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, identifier)
	}

	d.Emergency = EmergencyNone
	if d.Status == StatusEmergency {
		d.Status = StatusConnected
	}
	d.LastActivity = time.Now()

	result := d.Clone()
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("device emergency cleared", "device_id", result.DeviceID, "ip", result.IPAddress)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return result, nil
}

// ClearAllEmergencies clears the emergency flag on every device that
// has one and restores those in EMERGENCY to CONNECTED. Devices that
// are DISCONNECTED stay DISCONNECTED. Returns the number cleared.
//
// Called when the ward-wide alarm is silenced.
func (r *Registry) ClearAllEmergencies(ctx context.Context) int {
	r.mu.Lock()

	cleared := 0
	for _, ip := range r.order {
		d := r.devices[ip]
		if d.Emergency != EmergencyActive && d.Status != StatusEmergency {
			continue
		}
		d.Emergency = EmergencyNone
		if d.Status == StatusEmergency {
			d.Status = StatusConnected
		}
		cleared++
	}

	if cleared == 0 {
		r.mu.Unlock()
		return 0
	}

	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("all device emergencies cleared", "count", cleared)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return cleared
}

// UpdateInfo applies a full device info report. Every field in the
// update is authoritative, including empty strings: a device reporting
// an empty patient name clears it. Lookup is by device ID.
//
// Returns ErrDeviceNotFound if no device carries the ID; info reports
// for unknown devices are dropped rather than creating phantom rows.
func (r *Registry) UpdateInfo(ctx context.Context, deviceID string, info InfoUpdate) (*Device, error) {
	if info.Status != "" && !ValidStatus(info.Status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, info.Status)
	}

	r.mu.Lock()

	var d *Device
	for _, ip := range r.order {
		if r.devices[ip].DeviceID == deviceID {
			d = r.devices[ip]
			break
		}
	}
	if d == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	d.PatientName = info.PatientName
	d.RoomNumber = info.RoomNumber
	d.BedNumber = info.BedNumber
	if info.Status != "" {
		d.Status = info.Status
	}
	if info.Emergency != "" {
		d.Emergency = info.Emergency
	} else {
		d.Emergency = EmergencyNone
	}
	d.LastActivity = time.Now()

	result := d.Clone()
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("device info updated", "device_id", deviceID, "status", result.Status)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return result, nil
}

// UpdateAssignment overwrites the clinical fields of the device at the
// given IP. Used by ward staff through the dashboard, not by devices.
func (r *Registry) UpdateAssignment(ctx context.Context, ip, patientName, roomNumber, bedNumber string) (*Device, error) {
	r.mu.Lock()

	d, ok := r.devices[ip]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, ip)
	}

	d.PatientName = patientName
	d.RoomNumber = roomNumber
	d.BedNumber = bedNumber

	result := d.Clone()
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("device assignment updated", "ip", ip, "room", roomNumber, "bed", bedNumber)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return result, nil
}

// MarkDisconnected records the end of a session for the device at the
// given IP. A device in EMERGENCY keeps that status so the ward never
// loses sight of an unresolved alarm; its emergency flag stays active.
// Unknown IPs are a benign no-op.
func (r *Registry) MarkDisconnected(ctx context.Context, ip string) {
	r.mu.Lock()

	d, ok := r.devices[ip]
	if !ok || d.Status == StatusEmergency || d.Status == StatusDisconnected {
		r.mu.Unlock()
		return
	}

	d.Status = StatusDisconnected
	deviceID := d.DeviceID
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("device disconnected", "device_id", deviceID, "ip", ip)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
}

// ClearPatientData wipes the clinical assignment of the device at the
// given IP and returns it to READY for reuse. The device keeps its
// identity fields and its position in the display order.
func (r *Registry) ClearPatientData(ctx context.Context, ip string) error {
	r.mu.Lock()

	d, ok := r.devices[ip]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, ip)
	}

	d.PatientName = ""
	d.RoomNumber = ""
	d.BedNumber = ""
	d.Status = StatusReady
	d.Emergency = EmergencyNone

	deviceID := d.DeviceID
	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("patient data cleared", "device_id", deviceID, "ip", ip)

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return nil
}

// SweepStale demotes CONNECTED devices whose last activity is older
// than maxIdle to DISCONNECTED. Devices in EMERGENCY are exempt; an
// unresolved alarm outranks liveness bookkeeping. Returns the number
// of devices demoted.
func (r *Registry) SweepStale(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()

	swept := 0
	for _, ip := range r.order {
		d := r.devices[ip]
		if d.Status != StatusConnected || !d.LastActivity.Before(cutoff) {
			continue
		}
		d.Status = StatusDisconnected
		swept++
		r.logger.Info("device idle timeout", "device_id", d.DeviceID, "ip", ip)
	}

	if swept == 0 {
		r.mu.Unlock()
		return 0
	}

	snap, connected := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(ctx, snap)
	r.notifier.RegistryChanged(snap, connected)
	return swept
}

// Get returns a copy of the device at the given IP.
func (r *Registry) Get(ip string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[ip]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, ip)
	}
	return d.Clone(), nil
}

// Find returns a copy of the first device matching the identifier.
// See findLocked for the matching rules.
func (r *Registry) Find(identifier string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.findLocked(identifier)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, identifier)
	}
	return d.Clone(), nil
}

// Snapshot returns copies of all devices in display order.
func (r *Registry) Snapshot() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, _ := r.snapshotLocked()
	return snap
}

// ConnectedCount returns the number of devices currently CONNECTED or
// in EMERGENCY.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, connected := r.snapshotLocked()
	return connected
}

// findLocked resolves an identifier to a device. Exact matches on
// device ID, IP and MAC are tried first, in display order.
//
// Failing that, a legacy fallback strips the "BRACELET_" prefix and
// matches the remainder against each IP with its dots removed. Older
// firmware synthesises IDs that way and reports nothing else.
// Deprecated: remove once no bracelets run pre-2.x firmware.
func (r *Registry) findLocked(identifier string) *Device {
	if identifier == "" {
		return nil
	}

	for _, ip := range r.order {
		d := r.devices[ip]
		if d.DeviceID == identifier || d.IPAddress == identifier || d.MACAddress == identifier {
			return d
		}
	}

	suffix := strings.TrimPrefix(identifier, "BRACELET_")
	if suffix == "" {
		return nil
	}
	for _, ip := range r.order {
		flat := strings.ReplaceAll(ip, ".", "")
		if strings.HasSuffix(flat, suffix) || strings.HasSuffix(suffix, flat) {
			r.logger.Debug("identifier matched via legacy ip suffix", "identifier", identifier, "ip", ip)
			return r.devices[ip]
		}
	}
	return nil
}

// snapshotLocked builds an ordered copy of the table and the connected
// count. Callers must hold r.mu.
func (r *Registry) snapshotLocked() ([]Device, int) {
	snap := make([]Device, 0, len(r.order))
	connected := 0
	for _, ip := range r.order {
		d := r.devices[ip]
		snap = append(snap, *d.Clone())
		if d.Online() {
			connected++
		}
	}
	return snap, connected
}

// persist writes a snapshot through the store. Failures are logged and
// swallowed; the in-memory table stays authoritative.
func (r *Registry) persist(ctx context.Context, snap []Device) {
	if err := r.store.SaveAll(ctx, snap); err != nil {
		r.logger.Error("persisting device snapshot", "error", err, "count", len(snap))
	}
}
