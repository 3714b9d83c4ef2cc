package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
)

var testBase = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

type fakeProvider struct {
	snaps map[string]*events.RoomSnapshotPayload
}

func (f *fakeProvider) Snapshot(roomCode string) (*events.RoomSnapshotPayload, bool) {
	snap, ok := f.snaps[roomCode]
	return snap, ok
}

func newTestService(secret, hostKey string) (*Service, *fakeProvider) {
	oracle := clock.NewSyncedClock(clockwork.NewFakeClockAt(testBase))
	cm := NewConnectionManager(DefaultConnectionConfig(), oracle)
	provider := &fakeProvider{snaps: map[string]*events.RoomSnapshotPayload{
		"BANANA42": {
			RoomCode:     "BANANA42",
			Status:       models.RoomStatusLive,
			ServerTimeMs: testBase.UnixMilli(),
		},
	}}
	auth := NewAuth(secret, hostKey, time.Hour)
	return NewService(DefaultConfig(), auth, cm, provider, oracle), provider
}

func postJoin(t *testing.T, handler http.Handler, roomCode, body string, header http.Header) (*httptest.ResponseRecorder, joinResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+roomCode+"/join", bytes.NewBufferString(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp joinResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode join response: %v", err)
		}
	}
	return rec, resp
}

func TestJoinIssuesToken(t *testing.T) {
	s, _ := newTestService("show-secret", "")
	rec, resp := postJoin(t, s.Routes(), "BANANA42", `{"name":"alice"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body)
	}
	if resp.Token == "" {
		t.Error("no token issued with auth enabled")
	}
	if resp.Participant.Name != "alice" || resp.Participant.Role != models.RolePlayer {
		t.Errorf("participant = %+v, want player alice", resp.Participant)
	}
	if resp.Participant.ID == "" {
		t.Error("participant id missing")
	}
	if resp.ServerTimeMs != testBase.UnixMilli() {
		t.Errorf("server time = %d, want %d", resp.ServerTimeMs, testBase.UnixMilli())
	}
}

func TestJoinOpenMode(t *testing.T) {
	s, _ := newTestService("", "")
	rec, resp := postJoin(t, s.Routes(), "BANANA42", `{"name":"bob"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d", rec.Code)
	}
	if resp.Token != "" {
		t.Error("token issued in open mode")
	}
}

func TestJoinValidation(t *testing.T) {
	s, _ := newTestService("show-secret", "")
	handler := s.Routes()

	cases := []struct {
		name string
		body string
	}{
		{"empty name", `{"name":"  "}`},
		{"unknown role", `{"name":"alice","role":"DIRECTOR"}`},
		{"broken json", `{"name":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := postJoin(t, handler, "BANANA42", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestJoinHostRequiresKey(t *testing.T) {
	s, _ := newTestService("show-secret", "backstage")
	handler := s.Routes()

	rec, _ := postJoin(t, handler, "BANANA42", `{"name":"mc","role":"HOST"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("host join without key = %d, want 403", rec.Code)
	}

	rec, resp := postJoin(t, handler, "BANANA42", `{"name":"mc","role":"HOST"}`, http.Header{
		HostKeyHeader: []string{"backstage"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("host join with key = %d, want 200", rec.Code)
	}
	if resp.Participant.Role != models.RoleHost {
		t.Errorf("role = %s, want HOST", resp.Participant.Role)
	}
}

func TestStateEndpoint(t *testing.T) {
	s, _ := newTestService("", "")
	handler := s.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/BANANA42/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d", rec.Code)
	}
	var snap events.RoomSnapshotPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != models.RoomStatusLive {
		t.Errorf("status = %s, want LIVE", snap.Status)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/NOPE/state", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown room status = %d, want 404", rec.Code)
	}
}

func TestQREndpointServesPNG(t *testing.T) {
	s, _ := newTestService("", "")

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/BANANA42/qr", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("qr status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("body is not a PNG")
	}
}

func TestHealthAndStats(t *testing.T) {
	s, _ := newTestService("", "")
	handler := s.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["service"] != "stage_gateway" {
		t.Errorf("service = %v", stats["service"])
	}
	if _, ok := stats["total_connections"]; !ok {
		t.Error("stats missing total_connections")
	}
}

func TestWebSocketSessionFlow(t *testing.T) {
	s, _ := newTestService("show-secret", "")
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.cm.Start(ctx)

	_, joined := postJoinHTTP(t, srv.URL, "BANANA42", `{"name":"alice"}`)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/BANANA42/ws?token=" + url.QueryEscape(joined.Token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The snapshot lands first, before any broadcast traffic.
	var snapEv events.Event
	if err := conn.ReadJSON(&snapEv); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapEv.Type != events.EventTypeRoomSnapshot {
		t.Fatalf("first message = %s, want RoomSnapshot", snapEv.Type)
	}
	var snap events.RoomSnapshotPayload
	if err := json.Unmarshal(snapEv.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != models.RoomStatusLive {
		t.Errorf("snapshot status = %s, want LIVE", snap.Status)
	}

	// A time probe gets the oracle's reading back with t0 echoed.
	ping, err := events.New("BANANA42", events.EventTypeTimePing, time.Now(), events.TimePingPayload{T0: 12345})
	if err != nil {
		t.Fatalf("build ping: %v", err)
	}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pongEv events.Event
	if err := conn.ReadJSON(&pongEv); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pongEv.Type != events.EventTypeTimePong {
		t.Fatalf("probe answer = %s, want TimePong", pongEv.Type)
	}
	var pong events.TimePongPayload
	if err := json.Unmarshal(pongEv.Data, &pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if pong.T0 != 12345 {
		t.Errorf("pong t0 = %d, want 12345", pong.T0)
	}
	if pong.ServerTimeMs != testBase.UnixMilli() {
		t.Errorf("pong server time = %d, want %d", pong.ServerTimeMs, testBase.UnixMilli())
	}

	// Room broadcasts reach the socket.
	tick, err := events.New("BANANA42", events.EventTypeTimerTick, testBase, events.TimerTickPayload{
		PhaseID:      "phase-1",
		ServerTimeMs: testBase.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("build tick: %v", err)
	}
	s.cm.BroadcastToRoom("BANANA42", tick)

	var tickEv events.Event
	if err := conn.ReadJSON(&tickEv); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if tickEv.Type != events.EventTypeTimerTick {
		t.Errorf("broadcast = %s, want TimerTick", tickEv.Type)
	}
}

func TestWebSocketRejectsBadTokens(t *testing.T) {
	s, _ := newTestService("show-secret", "")
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/rooms/BANANA42/ws", nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dial without token = %+v, want 401", resp)
	}

	_, joined := postJoinHTTP(t, srv.URL, "OTHER", `{"name":"alice"}`)
	_, resp, err = websocket.DefaultDialer.Dial(base+"/rooms/BANANA42/ws?token="+url.QueryEscape(joined.Token), nil)
	if err == nil {
		t.Fatal("dial with another room's token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-room dial = %+v, want 403", resp)
	}
}

func postJoinHTTP(t *testing.T, baseURL, roomCode, body string) (*http.Response, joinResponse) {
	t.Helper()
	resp, err := http.Post(baseURL+"/api/rooms/"+roomCode+"/join", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	var joined joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&joined); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	return resp, joined
}
