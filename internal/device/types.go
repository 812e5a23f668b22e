package device

import "time"

// Status describes the connection lifecycle of a bracelet.
type Status string

const (
	// StatusReady means the device is provisioned but has never connected,
	// or its clinical data was cleared and it is waiting for reuse.
	StatusReady Status = "READY"

	// StatusConnected means the device has an active TCP session.
	StatusConnected Status = "CONNECTED"

	// StatusEmergency means the device raised an emergency that has not
	// been cleared yet. Emergency outranks connection state: a device in
	// emergency stays visible as such even if its socket drops.
	StatusEmergency Status = "EMERGENCY"

	// StatusDisconnected means the device had a session that ended, or
	// went silent past the idle threshold.
	StatusDisconnected Status = "DISCONNECTED"
)

// EmergencyStatus is the per-device emergency flag, tracked separately
// from Status so a cleared alarm can restore the right connection state.
type EmergencyStatus string

const (
	EmergencyNone   EmergencyStatus = "NONE"
	EmergencyActive EmergencyStatus = "ACTIVE"
)

// Device is a single bracelet and its clinical assignment.
// Devices are keyed by IP address: wards run fixed DHCP reservations,
// so the IP is the stable identity across reconnects and firmware wipes.
type Device struct {
	// DeviceID is the identifier the bracelet reports, or one synthesised
	// from its address when it never reported one.
	DeviceID string `json:"device_id"`

	// MACAddress as reported by the device. Informational; never used
	// as the registry key.
	MACAddress string `json:"mac_address"`

	// IPAddress is the registry key. Exactly one device exists per IP.
	IPAddress string `json:"ip_address"`

	// Clinical assignment. Empty strings mean unassigned.
	PatientName string `json:"patient_name"`
	RoomNumber  string `json:"room_number"`
	BedNumber   string `json:"bed_number"`

	Status    Status          `json:"status"`
	Emergency EmergencyStatus `json:"emergency_status"`

	// LastActivity is bumped on every line received from the device.
	LastActivity time.Time `json:"last_activity"`
}

// Clone returns an independent copy. The registry hands out clones so
// callers can never mutate registry state outside the lock.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Assigned reports whether the device carries any clinical data.
func (d *Device) Assigned() bool {
	return d.PatientName != "" || d.RoomNumber != "" || d.BedNumber != ""
}

// Online reports whether the device counts towards the connected total.
// Emergency devices are counted: the session may be up or the emergency
// may be pinning the state, either way the ward considers them live.
func (d *Device) Online() bool {
	return d.Status == StatusConnected || d.Status == StatusEmergency
}

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusReady, StatusConnected, StatusEmergency, StatusDisconnected:
		return true
	}
	return false
}

// Provisioned describes a device known to the ward before it ever
// connects. Seeded into the registry at startup as READY.
type Provisioned struct {
	DeviceID   string
	MACAddress string
	IPAddress  string
}

// RegisterParams carries the fields of a registration announcement.
// Empty fields are ignored during merge; see Registry.Register.
type RegisterParams struct {
	DeviceID    string
	MACAddress  string
	IPAddress   string
	PatientName string
	RoomNumber  string
	BedNumber   string
}

// InfoUpdate carries a full device info report. Unlike registration,
// every field is authoritative and overwrites the stored value.
type InfoUpdate struct {
	PatientName string
	RoomNumber  string
	BedNumber   string
	Status      Status
	Emergency   EmergencyStatus
}
