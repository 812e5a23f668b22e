package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/bracelet"
	"github.com/wardwatch/wardwatch-core/internal/device"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/config"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/logging"
	"github.com/wardwatch/wardwatch-core/internal/notify"
)

// fakePusher records assignment pushes instead of writing to sockets.
type fakePusher struct {
	mu     sync.Mutex
	pushes []recordedPush
	err    error
}

type recordedPush struct {
	identifier string
	msgType    string
	payload    map[string]string
}

func (f *fakePusher) SendPush(identifier, msgType string, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, recordedPush{identifier, msgType, payload})
	return nil
}

func (f *fakePusher) last() (recordedPush, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return recordedPush{}, false
	}
	return f.pushes[len(f.pushes)-1], true
}

type testEnv struct {
	server   *Server
	registry *device.Registry
	alarms   *alarm.Coordinator
	pusher   *fakePusher
	http     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")
	registry := device.NewRegistry(nil)
	alarms := alarm.NewCoordinator(registry, alarm.NoopBeeper{}, 1000, 500)
	pusher := &fakePusher{}

	wsCfg := config.WebSocketConfig{
		MaxMessageSize: 4096,
		PingInterval:   30,
		PongTimeout:    10,
	}

	s, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:        wsCfg,
		Logger:    logger,
		Registry:  registry,
		Alarms:    alarms,
		Bracelets: pusher,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.hub = NewHub(wsCfg, logger)
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testEnv{server: s, registry: registry, alarms: alarms, pusher: pusher, http: ts}
}

func (e *testEnv) registerDevice(t *testing.T, ip, deviceID, patient string) {
	t.Helper()
	_, err := e.registry.Register(context.Background(), device.RegisterParams{
		IPAddress:   ip,
		DeviceID:    deviceID,
		PatientName: patient,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", ip, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, e.http.URL+path, reqBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, parsed
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "Ada")
	env.registerDevice(t, "192.168.1.11", "BRACELET_B", "")

	resp, body := env.do(t, http.MethodGet, "/api/v1/devices", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := body["count"].(float64); got != 2 {
		t.Errorf("count = %v, want 2", got)
	}
	if got := body["connected"].(float64); got != 2 {
		t.Errorf("connected = %v, want 2", got)
	}
	devices := body["devices"].([]any)
	first := devices[0].(map[string]any)
	if first["device_id"] != "BRACELET_A" {
		t.Errorf("first device = %v, want BRACELET_A", first["device_id"])
	}
}

func TestDeviceStats(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "Ada")
	env.registerDevice(t, "192.168.1.11", "BRACELET_B", "")
	if _, err := env.registry.MarkEmergency(context.Background(), "BRACELET_A", "", "", ""); err != nil {
		t.Fatalf("MarkEmergency: %v", err)
	}
	env.registry.MarkDisconnected(context.Background(), "192.168.1.11")

	resp, body := env.do(t, http.MethodGet, "/api/v1/devices/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := body["total"].(float64); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
	if got := body["emergency"].(float64); got != 1 {
		t.Errorf("emergency = %v, want 1", got)
	}
	if got := body["disconnected"].(float64); got != 1 {
		t.Errorf("disconnected = %v, want 1", got)
	}
}

func TestGetDevice_ByAnyIdentifier(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "Ada")

	for _, id := range []string{"BRACELET_A", "192.168.1.10"} {
		resp, body := env.do(t, http.MethodGet, "/api/v1/devices/"+id, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", id, resp.StatusCode)
		}
		if body["ip_address"] != "192.168.1.10" {
			t.Errorf("GET %s ip = %v", id, body["ip_address"])
		}
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/devices/UNKNOWN", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["code"] != ErrCodeNotFound {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeNotFound)
	}
}

func TestUpdateAssignment_PushesToBracelet(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "")

	resp, body := env.do(t, http.MethodPatch, "/api/v1/devices/BRACELET_A", map[string]string{
		"patient_name": "Grace Hopper",
		"room_number":  "12",
		"bed_number":   "3",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["patient_name"] != "Grace Hopper" {
		t.Errorf("patient_name = %v", body["patient_name"])
	}

	push, ok := env.pusher.last()
	if !ok {
		t.Fatal("expected a push to the bracelet")
	}
	if push.msgType != bracelet.PushDataUpdate {
		t.Errorf("push type = %s, want %s", push.msgType, bracelet.PushDataUpdate)
	}
	if push.payload["patient"] != "Grace Hopper" || push.payload["room"] != "12" {
		t.Errorf("push payload = %v", push.payload)
	}
}

func TestUpdateAssignment_PushFailureStillUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "")
	env.pusher.err = fmt.Errorf("device not connected")

	resp, _ := env.do(t, http.MethodPatch, "/api/v1/devices/BRACELET_A", map[string]string{
		"patient_name": "Grace Hopper",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	dev, err := env.registry.Find("BRACELET_A")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if dev.PatientName != "Grace Hopper" {
		t.Errorf("PatientName = %q, want Grace Hopper", dev.PatientName)
	}
}

func TestUpdateAssignment_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "")

	req, err := http.NewRequest(http.MethodPatch, env.http.URL+"/api/v1/devices/BRACELET_A", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClearPatientData(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "Ada")

	resp, body := env.do(t, http.MethodPost, "/api/v1/devices/BRACELET_A/clear", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["patient_name"] != "" {
		t.Errorf("patient_name = %v, want empty", body["patient_name"])
	}
	if body["status"] != string(device.StatusReady) {
		t.Errorf("status = %v, want READY", body["status"])
	}

	push, ok := env.pusher.last()
	if !ok {
		t.Fatal("expected a DATA_CLEAR push")
	}
	if push.msgType != bracelet.PushDataClear {
		t.Errorf("push type = %s, want %s", push.msgType, bracelet.PushDataClear)
	}
}

func TestAlarmLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/alarm", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["state"] != string(alarm.StateIdle) {
		t.Fatalf("state = %v, want IDLE", body["state"])
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/alarm/test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test status = %d, want 200", resp.StatusCode)
	}
	if body["started"] != true {
		t.Errorf("started = %v, want true", body["started"])
	}

	// Second test while active returns the existing activation.
	_, body = env.do(t, http.MethodPost, "/api/v1/alarm/test", nil)
	if body["started"] != false {
		t.Errorf("duplicate started = %v, want false", body["started"])
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/alarm/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if body["stopped"] != true {
		t.Errorf("stopped = %v, want true", body["stopped"])
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/alarm", nil)
	if body["state"] != string(alarm.StateIdle) {
		t.Errorf("state after stop = %v, want IDLE", body["state"])
	}
}

func TestAlarmStop_ClearsDeviceEmergencies(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "192.168.1.10", "BRACELET_A", "Ada")
	if _, err := env.registry.MarkEmergency(context.Background(), "BRACELET_A", "", "", ""); err != nil {
		t.Fatalf("MarkEmergency: %v", err)
	}
	env.alarms.Activate(alarm.Trigger{Source: "bracelet", DeviceID: "BRACELET_A"})

	env.do(t, http.MethodPost, "/api/v1/alarm/stop", nil)

	dev, err := env.registry.Find("BRACELET_A")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if dev.Status != device.StatusConnected {
		t.Errorf("status after stop = %s, want CONNECTED", dev.Status)
	}
}

func TestWebSocket_ReceivesSubscribedEvents(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{notify.EventRegistrySnapshot}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("ack type = %s, want %s", ack.Type, WSTypeResponse)
	}

	// Feed an event through the hub the way the dispatcher would.
	err = env.server.hub.HandleEvent(context.Background(), notify.Event{
		Type:      notify.EventRegistrySnapshot,
		Timestamp: time.Now(),
		Payload:   notify.RegistrySnapshot{Connected: 3},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt WSMessage
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON event: %v", err)
	}
	if evt.Type != WSTypeEvent || evt.EventType != notify.EventRegistrySnapshot {
		t.Errorf("event = %+v", evt)
	}
}

func TestWebSocket_UnsubscribedChannelIsSilent(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// No subscription: a broadcast must not reach this client.
	env.server.hub.Broadcast(notify.EventAlarmTriggered, map[string]string{"id": "x"})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "42"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "42" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")
	registry := device.NewRegistry(nil)
	alarms := alarm.NewCoordinator(registry, alarm.NoopBeeper{}, 1000, 500)

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Registry: registry, Alarms: alarms}},
		{"missing registry", Deps{Logger: logger, Alarms: alarms}},
		{"missing alarms", Deps{Logger: logger, Registry: registry}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
