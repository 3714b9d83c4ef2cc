package stageclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/countdown"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/quizlive/stagetime/go/internal/stage/gateway"
)

var testBase = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

type fakeProvider struct {
	snapshots map[string]*events.RoomSnapshotPayload
}

func (f *fakeProvider) Snapshot(roomCode string) (*events.RoomSnapshotPayload, bool) {
	snap, ok := f.snapshots[roomCode]
	return snap, ok
}

type testGateway struct {
	server *httptest.Server
	cm     *gateway.ConnectionManager
	cancel context.CancelFunc
}

func (g *testGateway) Close() {
	g.cancel()
	g.server.Close()
}

// newTestGateway stands up a real gateway over httptest: open auth, a fake
// wall clock pinned to testBase, and one LIVE room with a masked word phase.
func newTestGateway(t *testing.T, hostKey string) *testGateway {
	t.Helper()

	fc := clockwork.NewFakeClockAt(testBase)
	oracle := clock.NewSyncedClock(fc)
	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), oracle)

	provider := &fakeProvider{snapshots: map[string]*events.RoomSnapshotPayload{
		"BANANA42": {
			RoomCode:     "BANANA42",
			Status:       models.RoomStatusLive,
			ServerTimeMs: testBase.UnixMilli(),
			Phase: &events.PhaseSnapshot{
				PhaseID:       "phase-1",
				Kind:          models.PhaseKindWordReveal,
				Prompt:        "G_ ___",
				Units:         5,
				RevealedCount: 1,
				StartsAt:      testBase,
				EndsAt:        testBase.Add(10 * time.Second),
			},
			Subjects: []events.SubjectRemaining{
				{Subject: "room", RemainingMs: 5000, Status: countdown.StatusRunning.String()},
			},
		},
	}}

	auth := gateway.NewAuth("", hostKey, 0)
	svc := gateway.NewService(gateway.DefaultConfig(), auth, cm, provider, oracle)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	return &testGateway{
		server: httptest.NewServer(svc.Routes()),
		cm:     cm,
		cancel: cancel,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func broadcast(t *testing.T, g *testGateway, room string, typ events.EventType, payload interface{}) {
	t.Helper()
	event, err := events.New(room, typ, testBase, payload)
	if err != nil {
		t.Fatalf("build %s event: %v", typ, err)
	}
	g.cm.BroadcastToRoom(room, event)
}

func TestJoinAndState(t *testing.T) {
	g := newTestGateway(t, "")
	defer g.Close()

	c := New(g.server.URL)
	join, err := c.Join(context.Background(), "BANANA42", "casey", models.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if join.RoomCode != "BANANA42" {
		t.Fatalf("room code = %q", join.RoomCode)
	}
	if join.Participant.ID == "" || join.Participant.Role != models.RolePlayer {
		t.Fatalf("unexpected participant %+v", join.Participant)
	}
	if join.Token != "" {
		t.Fatalf("open gateway issued token %q", join.Token)
	}
	if join.ServerTimeMs != testBase.UnixMilli() {
		t.Fatalf("server time = %d, want %d", join.ServerTimeMs, testBase.UnixMilli())
	}

	snap, err := c.State(context.Background(), "BANANA42")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if snap.Status != models.RoomStatusLive || snap.Phase == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Phase.Prompt != "G_ ___" {
		t.Fatalf("prompt = %q", snap.Phase.Prompt)
	}

	if _, err := c.State(context.Background(), "NOSUCH"); err == nil {
		t.Fatal("expected error for unknown room")
	}
}

func TestJoinAsHostNeedsKey(t *testing.T) {
	g := newTestGateway(t, "backstage")
	defer g.Close()

	c := New(g.server.URL)
	if _, err := c.Join(context.Background(), "BANANA42", "casey", models.RoleHost); err == nil {
		t.Fatal("expected host join without key to fail")
	}

	c.SetHostKey("backstage")
	join, err := c.Join(context.Background(), "BANANA42", "casey", models.RoleHost)
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	if join.Participant.Role != models.RoleHost {
		t.Fatalf("role = %q", join.Participant.Role)
	}
}

func TestSessionMirrorsRoom(t *testing.T) {
	g := newTestGateway(t, "")
	defer g.Close()

	c := New(g.server.URL)
	join, err := c.Join(context.Background(), "BANANA42", "casey", models.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	session, err := c.Connect(context.Background(), join, DefaultSessionConfig())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	// The connect snapshot populates the mirror.
	waitFor(t, "initial snapshot", func() bool {
		return session.View().Status == models.RoomStatusLive
	})

	view := session.View()
	if view.Phase == nil || view.Phase.Prompt != "G_ ___" {
		t.Fatalf("unexpected phase view %+v", view.Phase)
	}
	if view.Phase.Revealed != 1 || view.Phase.Total != 5 {
		t.Fatalf("revealed %d/%d", view.Phase.Revealed, view.Phase.Total)
	}
	if len(view.Subjects) != 1 || view.Subjects[0].Subject != "room" {
		t.Fatalf("unexpected subjects %+v", view.Subjects)
	}
	if rem := view.Subjects[0].Remaining; rem <= 0 || rem > 5*time.Second {
		t.Fatalf("remaining = %s", rem)
	}

	// A reveal delta fills in one glyph without ever shipping the answer.
	broadcast(t, g, "BANANA42", events.EventTypeRevealAdvanced, events.RevealAdvancedPayload{
		PhaseID:  "phase-1",
		Unit:     1,
		Position: 3,
		Glyph:    "B",
		Revealed: 2,
		Total:    5,
	})
	waitFor(t, "reveal applied", func() bool {
		v := session.View()
		return v.Phase != nil && v.Phase.Prompt == "G_ B__"
	})
	if v := session.View(); v.Phase.Revealed != 2 {
		t.Fatalf("revealed = %d after delta", v.Phase.Revealed)
	}

	// A server tick re-anchors the countdown downwards.
	broadcast(t, g, "BANANA42", events.EventTypeTimerTick, events.TimerTickPayload{
		PhaseID:      "phase-1",
		ServerTimeMs: testBase.Add(2 * time.Second).UnixMilli(),
		Subjects: []events.SubjectRemaining{
			{Subject: "room", RemainingMs: 3000, Status: countdown.StatusRunning.String()},
		},
	})
	waitFor(t, "tick re-anchor", func() bool {
		rem, status := session.Remaining("room")
		return status == countdown.StatusRunning && rem <= 3*time.Second
	})

	// The authoritative expiry pins the subject at zero immediately.
	broadcast(t, g, "BANANA42", events.EventTypeTimerExpired, events.TimerExpiredPayload{
		PhaseID:   "phase-1",
		Subject:   "room",
		ExpiredAt: testBase.Add(5 * time.Second),
	})
	waitFor(t, "expiry applied", func() bool {
		rem, status := session.Remaining("room")
		return status == countdown.StatusExpired && rem == 0
	})
}

func TestSessionSyncsClock(t *testing.T) {
	g := newTestGateway(t, "")
	defer g.Close()

	c := New(g.server.URL)
	join, err := c.Join(context.Background(), "BANANA42", "casey", models.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	config := DefaultSessionConfig()
	config.PingInterval = 20 * time.Millisecond
	session, err := c.Connect(context.Background(), join, config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	// The gateway's oracle sits at testBase, so after a few pong round trips
	// the session's estimate lands there too regardless of local wall time.
	waitFor(t, "clock sync", func() bool {
		if !session.Clock().Synced() {
			return false
		}
		drift := session.ServerNow().Sub(testBase)
		if drift < 0 {
			drift = -drift
		}
		return drift < time.Second
	})
}

func TestSessionEndsOnServerClose(t *testing.T) {
	g := newTestGateway(t, "")

	c := New(g.server.URL)
	join, err := c.Join(context.Background(), "BANANA42", "casey", models.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	session, err := c.Connect(context.Background(), join, DefaultSessionConfig())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	g.Close()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after server close")
	}
}

func TestWSURLDerivation(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://host:8089", "ws://host:8089/rooms/ROOM/ws"},
		{"https://quiz.example.com", "wss://quiz.example.com/rooms/ROOM/ws"},
		{"http://host:8089/", "ws://host:8089/rooms/ROOM/ws"},
	}
	for _, tt := range tests {
		if got := New(tt.base).wsURL("ROOM"); got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
