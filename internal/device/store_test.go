package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			ip_address TEXT PRIMARY KEY,
			device_id TEXT NOT NULL DEFAULT '',
			mac_address TEXT NOT NULL DEFAULT '',
			patient_name TEXT NOT NULL DEFAULT '',
			room_number TEXT NOT NULL DEFAULT '',
			bed_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'READY',
			emergency_status TEXT NOT NULL DEFAULT 'NONE',
			last_activity TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0
		) STRICT;
		CREATE INDEX idx_devices_position ON devices(position);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	devices := []Device{
		{
			IPAddress:    "192.168.18.251",
			DeviceID:     "BRACELET_01",
			MACAddress:   "BC:FF:4D:29:D2:95",
			PatientName:  "Siti Rahma",
			RoomNumber:   "A-12",
			BedNumber:    "3",
			Status:       StatusConnected,
			Emergency:    EmergencyNone,
			LastActivity: now,
		},
		{
			IPAddress: "192.168.18.252",
			DeviceID:  "BRACELET_02",
			Status:    StatusReady,
			Emergency: EmergencyNone,
		},
	}

	if err := store.SaveAll(ctx, devices); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d devices, want 2", len(loaded))
	}

	got := loaded[0]
	if got.IPAddress != "192.168.18.251" ||
		got.DeviceID != "BRACELET_01" ||
		got.PatientName != "Siti Rahma" ||
		got.Status != StatusConnected {
		t.Errorf("first device = %+v", got)
	}
	if !got.LastActivity.Equal(now) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, now)
	}
	if !loaded[1].LastActivity.IsZero() {
		t.Errorf("zero LastActivity did not round-trip: %v", loaded[1].LastActivity)
	}
}

func TestSQLiteStore_SaveReplacesPreviousSnapshot(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	first := []Device{
		{IPAddress: "10.0.0.1", DeviceID: "BRACELET_01", Status: StatusConnected, Emergency: EmergencyNone},
		{IPAddress: "10.0.0.2", DeviceID: "BRACELET_02", Status: StatusConnected, Emergency: EmergencyNone},
	}
	if err := store.SaveAll(ctx, first); err != nil {
		t.Fatalf("first SaveAll failed: %v", err)
	}

	second := []Device{
		{IPAddress: "10.0.0.3", DeviceID: "BRACELET_03", Status: StatusReady, Emergency: EmergencyNone},
	}
	if err := store.SaveAll(ctx, second); err != nil {
		t.Fatalf("second SaveAll failed: %v", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].IPAddress != "10.0.0.3" {
		t.Errorf("loaded = %+v, want only 10.0.0.3", loaded)
	}
}

func TestSQLiteStore_PreservesDisplayOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	// Order is positional, not lexicographic by IP.
	devices := []Device{
		{IPAddress: "10.0.0.9", DeviceID: "BRACELET_09", Status: StatusReady, Emergency: EmergencyNone},
		{IPAddress: "10.0.0.1", DeviceID: "BRACELET_01", Status: StatusReady, Emergency: EmergencyNone},
		{IPAddress: "10.0.0.5", DeviceID: "BRACELET_05", Status: StatusReady, Emergency: EmergencyNone},
	}
	if err := store.SaveAll(ctx, devices); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	want := []string{"10.0.0.9", "10.0.0.1", "10.0.0.5"}
	for i, ip := range want {
		if loaded[i].IPAddress != ip {
			t.Errorf("position %d = %s, want %s", i, loaded[i].IPAddress, ip)
		}
	}
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)

	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d devices from empty store, want 0", len(loaded))
	}
}

func TestSQLiteStore_SaveEmptySnapshot(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	seed := []Device{{IPAddress: "10.0.0.1", Status: StatusReady, Emergency: EmergencyNone}}
	if err := store.SaveAll(ctx, seed); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	if err := store.SaveAll(ctx, nil); err != nil {
		t.Fatalf("SaveAll(nil) failed: %v", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d devices after empty snapshot, want 0", len(loaded))
	}
}
