package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store defines the interface for device persistence.
// The registry saves whole snapshots rather than individual rows: the
// table is small (one row per bed), mutations are rare relative to
// reads, and snapshot writes make crash recovery trivial.
type Store interface {
	// LoadAll retrieves every persisted device in display order.
	LoadAll(ctx context.Context) ([]Device, error)

	// SaveAll replaces the persisted set with the given snapshot.
	// Positions in the slice become the display order.
	SaveAll(ctx context.Context, devices []Device) error
}

// noopStore is used when persistence is disabled.
type noopStore struct{}

func (noopStore) LoadAll(context.Context) ([]Device, error) { return nil, nil }
func (noopStore) SaveAll(context.Context, []Device) error   { return nil }

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection with the
// devices table migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadAll retrieves every persisted device in display order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Device, error) {
	query := `
		SELECT ip_address, device_id, mac_address, patient_name, room_number,
			bed_number, status, emergency_status, last_activity
		FROM devices
		ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// SaveAll replaces the persisted set with the given snapshot in a
// single transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, devices []Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (
			ip_address, device_id, mac_address, patient_name, room_number,
			bed_number, status, emergency_status, last_activity, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range devices {
		d := &devices[i]
		var lastActivity string
		if !d.LastActivity.IsZero() {
			lastActivity = d.LastActivity.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx,
			d.IPAddress,
			d.DeviceID,
			d.MACAddress,
			d.PatientName,
			d.RoomNumber,
			d.BedNumber,
			string(d.Status),
			string(d.Emergency),
			lastActivity,
			i,
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.IPAddress, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row into a Device struct.
func scanDevice(row scanner) (*Device, error) {
	var d Device
	var status, emergency, lastActivity string

	if err := row.Scan(
		&d.IPAddress,
		&d.DeviceID,
		&d.MACAddress,
		&d.PatientName,
		&d.RoomNumber,
		&d.BedNumber,
		&status,
		&emergency,
		&lastActivity,
	); err != nil {
		return nil, err
	}

	d.Status = Status(status)
	d.Emergency = EmergencyStatus(emergency)
	if lastActivity != "" {
		t, err := time.Parse(time.RFC3339Nano, lastActivity)
		if err != nil {
			return nil, fmt.Errorf("parsing last_activity: %w", err)
		}
		d.LastActivity = t
	}
	return &d, nil
}
