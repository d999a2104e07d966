package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/app"
	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/config"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
	"github.com/dkeye/callroom/internal/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:           "test",
		Port:           8080,
		LogLevel:       "error",
		Secret:         "test-secret-test-secret",
		AllowedOrigins: []string{"https://app.example.com"},
		ReadLimit:      65536,
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		SendBuffer:     16,
		AdminAPI:       true,
		MaxIdentityLen: 254,
		MaxRoomLen:     128,
		ICEServers:     []config.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
}

type testServer struct {
	*httptest.Server
	orch *orch.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	o := orch.New(orch.Options{MaxIdentityLen: cfg.MaxIdentityLen, MaxRoomLen: cfg.MaxRoomLen}, app.SimplePolicy{}, metrics.New(reg))
	ctrl := signal.NewSignalWSController(o, signal.NewEventRateLimiter(1000, 1000), signal.Settings{
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		PongWait:    cfg.PongWait,
		WriteWait:   cfg.WriteWait,
		SendBuffer:  cfg.SendBuffer,
		CheckOrigin: NewOriginPolicy(cfg.AllowedOrigins).Allowed,
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, ctrl, reg))
	t.Cleanup(func() {
		cancel()
		ctrl.Wait()
		srv.Close()
	})
	return &testServer{Server: srv, orch: o}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/ws/signal"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendEvent(t *testing.T, ws *websocket.Conn, ev protocol.Event, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := protocol.EncodeRaw(ev, raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}
}

// await reads frames until ev arrives and decodes its data into v.
func await(t *testing.T, ws *websocket.Conn, ev protocol.Event, v any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", ev, err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			t.Fatal(err)
		}
		if env.Event != ev {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Data, v); err != nil {
				t.Fatal(err)
			}
		}
		return
	}
}

func whoami(t *testing.T, ws *websocket.Conn) domain.ConnectionID {
	t.Helper()
	sendEvent(t, ws, protocol.WhoAmI, nil)
	var me protocol.WhoAmIEvent
	await(t, ws, protocol.WhoAmI, &me)
	return me.ID
}

func TestSignalOverWebsocket(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)
	b := s.dial(t)
	idA := whoami(t, a)
	idB := whoami(t, b)

	sendEvent(t, a, protocol.RoomJoin, map[string]string{"email": "a@x", "room": "r1"})
	var users []domain.Member
	await(t, a, protocol.AllUsers, &users)
	if len(users) != 1 || users[0].ID != idA {
		t.Fatalf("a all:users = %+v", users)
	}

	sendEvent(t, b, protocol.RoomJoin, map[string]string{"email": "b@x", "room": "r1"})
	await(t, b, protocol.AllUsers, &users)
	if len(users) != 2 {
		t.Fatalf("b all:users = %+v", users)
	}
	var joined protocol.UserEvent
	await(t, a, protocol.UserJoined, &joined)
	if joined.ID != idB {
		t.Errorf("user:joined = %+v", joined)
	}

	sendEvent(t, a, protocol.UserCall, map[string]any{"to": idB, "offer": map[string]string{"type": "offer", "sdp": "v=0"}})
	var incoming struct {
		From string `json:"from"`
	}
	await(t, b, protocol.IncomingCall, &incoming)
	if incoming.From != string(idA) {
		t.Errorf("from = %q", incoming.From)
	}

	_ = b.Close()
	var left protocol.UserEvent
	await(t, a, protocol.UserLeft, &left)
	if left.ID != idB {
		t.Errorf("user:left = %+v", left)
	}
}

func TestRESTEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)
	sendEvent(t, a, protocol.RoomJoin, map[string]string{"email": "a@x", "room": "r1"})
	await(t, a, protocol.AllUsers, nil)

	get := func(path string, v any) int {
		t.Helper()
		resp, err := http.Get(s.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if v != nil {
			_ = json.NewDecoder(resp.Body).Decode(v)
		}
		return resp.StatusCode
	}

	var health HealthResponse
	if code := get("/health", &health); code != http.StatusOK || health.Rooms != 1 || health.Connections != 1 {
		t.Errorf("health = %d %+v", code, health)
	}
	var rooms struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	if code := get("/api/rooms", &rooms); code != http.StatusOK || len(rooms.Rooms) != 1 || rooms.Rooms[0].MemberCount != 1 {
		t.Errorf("rooms = %d %+v", code, rooms)
	}
	var members RoomMembersResponse
	if code := get("/api/rooms/r1/members", &members); code != http.StatusOK || len(members.Members) != 1 {
		t.Errorf("members = %d %+v", code, members)
	}
	if code := get("/api/rooms/nope/members", nil); code != http.StatusNotFound {
		t.Errorf("missing room = %d", code)
	}
	var ice struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if code := get("/api/ice-servers", &ice); code != http.StatusOK || len(ice.ICEServers) != 1 {
		t.Errorf("ice = %d %+v", code, ice)
	}
	if code := get("/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics = %d", code)
	}

	req, _ := http.NewRequest(http.MethodDelete, s.URL+"/api/rooms/r1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("evict = %d", resp.StatusCode)
	}
	var ev protocol.RoomEvent
	await(t, a, protocol.RoomEvicted, &ev)
	if ev.Room != "r1" {
		t.Errorf("room:evicted = %+v", ev)
	}
}

func TestOriginPolicy(t *testing.T) {
	s := newTestServer(t)
	for origin, want := range map[string]int{
		"https://app.example.com":     http.StatusOK,
		"https://app.example.com:443": http.StatusOK,
		"https://evil.example.com":    http.StatusForbidden,
		"ftp://app.example.com":       http.StatusForbidden,
	} {
		req, _ := http.NewRequest(http.MethodGet, s.URL+"/health", nil)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: status = %d, want %d", origin, resp.StatusCode, want)
		}
	}

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/ws/signal"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	if err == nil {
		t.Fatal("upgrade from a foreign origin must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOriginPolicySameHost(t *testing.T) {
	p := NewOriginPolicy(nil)
	req := httptest.NewRequest(http.MethodGet, "http://callroom.local:8080/health", nil)
	req.Header.Set("Origin", "http://callroom.local:8080")
	if !p.Allowed(req) {
		t.Error("same host must be allowed")
	}
	req.Header.Set("Origin", "http://other.local:8080")
	if p.Allowed(req) {
		t.Error("other host must be refused")
	}
}
