package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/config"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/message"
)

type passRegistry struct{}

func (passRegistry) Match(device.Identity, device.Probe) (device.Protocol, error) {
	return stubProtocol{}, nil
}

type stubProtocol struct{}

func (stubProtocol) Name() string { return "stub" }
func (stubProtocol) Capabilities() device.CapabilitySet {
	return device.CapabilitySet{
		Actuators: []device.Actuator{{Kind: device.ActuatorVibrate, Index: 0, Min: 0, Max: 1}},
	}
}
func (stubProtocol) Translate(device.Command) ([]device.RawWrite, error)    { return nil, nil }
func (stubProtocol) Interpret(string, []byte) ([]device.Reading, error)     { return nil, nil }
func (stubProtocol) SensorQuery(uint32) ([]device.RawWrite, error)          { return nil, nil }
func (stubProtocol) Stop() []device.RawWrite                               { return nil }

type nopWriter struct{}

func (nopWriter) Write(context.Context, string, []byte) error { return nil }
func (nopWriter) Close() error                                { return nil }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *device.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.WebSocket.Path = "/ws"
	if mutate != nil {
		mutate(cfg)
	}
	manager := device.NewManager(passRegistry{}, nil, logging.Discard())
	return New(cfg, manager, logging.Discard()), manager
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.AddHealthCheck("good", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Checks["good"] != "ok" {
		t.Errorf("body: %+v", body)
	}
}

func TestHealthz_DegradedDependency(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.AddHealthCheck("db", func(context.Context) error { return errors.New("gone") })

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}

func TestDevices_ListsRegistry(t *testing.T) {
	srv, manager := newTestServer(t, nil)

	identity := device.Identity{Transport: "test", Address: "a1", Name: "Stub"}
	if _, err := manager.Register(context.Background(), identity, device.Probe{Name: "Stub"},
		func(context.Context) (device.Writer, error) { return nopWriter{}, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Devices []deviceView `json:"devices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 1 {
		t.Fatalf("devices: got %d, want 1", len(body.Devices))
	}
	if body.Devices[0].Name != "Stub" || !body.Devices[0].Connected {
		t.Errorf("device: %+v", body.Devices[0])
	}
}

func TestDevices_Rename(t *testing.T) {
	srv, manager := newTestServer(t, nil)

	identity := device.Identity{Transport: "test", Address: "a1", Name: "Stub"}
	if _, err := manager.Register(context.Background(), identity, device.Probe{Name: "Stub"},
		func(context.Context) (device.Writer, error) { return nopWriter{}, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/v1/devices/0/name", strings.NewReader(`{"name":"Left Hand"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices", nil))
	var body struct {
		Devices []deviceView `json:"devices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 1 || body.Devices[0].Name != "Left Hand" {
		t.Errorf("devices after rename: %+v", body.Devices)
	}

	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/v1/devices/99/name", strings.NewReader(`{"name":"Ghost"}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("rename unknown index: got %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/v1/devices/0/name", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d, want 400", rec.Code)
	}
}

func TestDevices_KnownListWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/known", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Devices []knownDeviceView `json:"devices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 0 {
		t.Errorf("known devices with no store: got %d, want 0", len(body.Devices))
	}
}

func TestAuth_GateRejectsAndAccepts(t *testing.T) {
	secret := strings.Repeat("s", 32)
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.Auth.Enabled = true
		cfg.Security.Auth.Secret = secret
	})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d, want 401", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: got %d, want 200", rec.Code)
	}

	// Healthz stays open without a token.
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz with auth on: got %d, want 200", rec.Code)
	}
}

func TestWebSocket_HandshakeRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()
	defer srv.cancelBase()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	codec := message.JSONCodec{}
	send := func(msg message.Message) {
		t.Helper()
		data, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	recv := func() message.Message {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		msg, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}

	send(message.Message{
		ID:      1,
		Kind:    message.KindHandshakeRequest,
		Payload: &message.HandshakeRequest{ClientName: "itest", VersionMin: 1, VersionMax: 2},
	})

	reply := recv()
	if reply.Kind != message.KindHandshakeReply || reply.ID != 1 {
		t.Fatalf("reply: got %v id %d", reply.Kind, reply.ID)
	}
	hs := reply.Payload.(*message.HandshakeReply)
	if hs.Version != 2 {
		t.Errorf("negotiated version: got %d, want 2", hs.Version)
	}

	send(message.Message{ID: 2, Kind: message.KindDeviceListRequest})
	list := recv()
	if list.Kind != message.KindDeviceListReply || list.ID != 2 {
		t.Fatalf("list reply: got %v id %d", list.Kind, list.ID)
	}
}

func TestWebSocket_MalformedFrameGetsErrorReply(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()
	defer srv.cancelBase()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := (message.JSONCodec{}).Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != message.KindError {
		t.Fatalf("kind: got %v, want error", msg.Kind)
	}
	if payload := msg.Payload.(*message.Error); payload.Code != message.ErrorCodeMessage {
		t.Errorf("code: got %v", payload.Code)
	}

	// The connection survives the bad frame.
	send, _ := (message.JSONCodec{}).Encode(message.Message{
		ID:      1,
		Kind:    message.KindHandshakeRequest,
		Payload: &message.HandshakeRequest{ClientName: "itest", VersionMin: 1, VersionMax: 1},
	})
	if err := ws.WriteMessage(websocket.TextMessage, send); err != nil {
		t.Fatalf("write after bad frame: %v", err)
	}
	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read after bad frame: %v", err)
	}
	reply, _ := (message.JSONCodec{}).Decode(data)
	if reply.Kind != message.KindHandshakeReply {
		t.Errorf("kind: got %v, want handshake_reply", reply.Kind)
	}
}
