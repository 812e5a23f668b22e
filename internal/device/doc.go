// Package device provides the Device Registry for WardWatch.
//
// The Device Registry is the authoritative table of every emergency
// bracelet the ward knows about: its identity, its clinical assignment
// (patient, room, bed), its connection state and its emergency flag.
// Everything the dashboards show and the alarm coordinator acts on
// comes from this table.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────┐
//	│                        Device Registry                         │
//	│                                                                │
//	│  ┌─────────────────┐   ┌─────────────────┐  ┌───────────────┐  │
//	│  │    Registry     │   │      Store      │  │    Sweeper    │  │
//	│  │  (registry.go)  │──▶│   (store.go)    │  │  (sweeper.go) │  │
//	│  │                 │   │                 │  │               │  │
//	│  │ • Keyed by IP   │   │ • SQLite rows   │  │ • Idle demote │  │
//	│  │ • Merge rules   │   │ • Snapshot save │  │ • 1s ticker   │  │
//	│  │ • Single mutex  │   │ • Display order │  │               │  │
//	│  └─────────────────┘   └─────────────────┘  └───────────────┘  │
//	│          │                                                     │
//	└──────────│─────────────────────────────────────────────────────┘
//	           │
//	           ▼
//	┌──────────────────────┐
//	│  Notifier snapshots  │
//	│  • REST API          │
//	│  • WebSocket hub     │
//	│  • MQTT / InfluxDB   │
//	└──────────────────────┘
//
// # State rules
//
// Devices are keyed by IP address; exactly one device exists per IP.
// Registration merges additively (empty fields never overwrite), info
// reports overwrite authoritatively, and socket teardown never
// downgrades an active emergency. Clearing patient data returns the
// device to READY in place, so display order is stable across bed
// turnover.
//
// # Usage
//
//	store := device.NewSQLiteStore(db.DB)
//	registry := device.NewRegistry(store)
//	registry.SetLogger(log)
//
//	if err := registry.Load(ctx, provisioned); err != nil {
//	    return err
//	}
//
//	sweeper := device.NewSweeper(registry, time.Second, 60*time.Second)
//	go sweeper.Run(ctx)
//
// All Registry methods are safe for concurrent use.
package device
