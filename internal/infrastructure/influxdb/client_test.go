package influxdb_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/wardwatch/wardwatch-core/internal/infrastructure/config"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/influxdb"
	"github.com/wardwatch/wardwatch-core/internal/notify"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "wardwatch-dev-token",
		Org:           "wardwatch",
		Bucket:        "events",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run InfluxDB integration tests")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("error = %v, want ErrDisabled", err)
	}
}

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteEvents(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteDeviceStatus("BRACELET_01", "192.168.18.251", "CONNECTED", false)
	client.WriteAlarmEvent("alarm-1", "triggered", "bracelet", "BRACELET_01")
	client.WriteConnectedCount(3)
	client.Flush()
}

func TestEventSink_IgnoresUnknownPayloads(t *testing.T) {
	// A sink over a disconnected client: every write path must bail
	// out quietly rather than panic.
	sink := influxdb.NewEventSink(&influxdb.Client{})

	if sink.Name() != "influxdb" {
		t.Errorf("Name = %s", sink.Name())
	}
	if err := sink.HandleEvent(context.Background(), notify.Event{Type: notify.EventAlarmTriggered, Payload: "bogus"}); err != nil {
		t.Errorf("HandleEvent error = %v, want nil", err)
	}
}
