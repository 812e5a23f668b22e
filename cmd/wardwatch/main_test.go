package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wardwatch/wardwatch-core/internal/infrastructure/config"
)

func TestGetConfigPath_Default(t *testing.T) {
	os.Unsetenv("WARDWATCH_CONFIG")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("WARDWATCH_CONFIG", "/etc/wardwatch/config.yaml")

	if got := getConfigPath(); got != "/etc/wardwatch/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestProvisionedDevices(t *testing.T) {
	cfg := &config.Config{
		Devices: []config.DeviceConfig{
			{DeviceID: "BRACELET_001", MACAddress: "AA:BB:CC:DD:EE:01", IPAddress: "192.168.1.10"},
			{DeviceID: "BRACELET_002", IPAddress: "192.168.1.11"},
		},
	}

	provisioned := provisionedDevices(cfg)
	if len(provisioned) != 2 {
		t.Fatalf("len = %d, want 2", len(provisioned))
	}
	if provisioned[0].DeviceID != "BRACELET_001" || provisioned[0].IPAddress != "192.168.1.10" {
		t.Errorf("first = %+v", provisioned[0])
	}
	if provisioned[1].MACAddress != "" {
		t.Errorf("second MAC = %q, want empty", provisioned[1].MACAddress)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("WARDWATCH_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if err := run(context.Background()); err == nil {
		t.Error("expected error for missing config file")
	}
}
