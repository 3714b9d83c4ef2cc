package stageclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/countdown"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
)

// SessionConfig tunes a live session.
type SessionConfig struct {
	// PingInterval is the cadence of round-trip clock probes.
	PingInterval time.Duration
	// Wall overrides the local wall clock.
	Wall clockwork.Clock
	// OnEvent observes every decoded event after the session applied it.
	OnEvent func(*events.Event)
}

// DefaultSessionConfig returns the standard session tuning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{PingInterval: 2 * time.Second}
}

// Session is one live websocket connection to a room. It keeps a local
// replica of the room's timing state so render loops read it without ever
// touching the network: countdowns re-anchor on every server tick and drain
// against the synced clock in between.
//
// Clock sync rides on ping/pong probes rather than the broadcast ticks. Tick
// stamps carry the full fan-out delay as error and arrive ten times a second,
// which would flood the oracle's sample ring; probes are round-trip corrected.
type Session struct {
	roomCode string
	conn     *websocket.Conn
	wall     clockwork.Clock
	oracle   *clock.SyncedClock
	onEvent  func(*events.Event)
	config   SessionConfig

	mu       sync.Mutex
	snapshot *events.RoomSnapshotPayload
	phase    *events.PhaseSnapshot
	prompt   []rune
	revealed int
	total    int
	bank     *countdown.Bank
	order    []string
	pings    map[int64]time.Time
	err      error

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// PhaseView is the mirrored phase state. Prompt is the masked rendering with
// every glyph learned so far filled in; the hidden text itself never reaches
// the client.
type PhaseView struct {
	PhaseID  string
	Kind     models.PhaseKind
	Prompt   string
	Revealed int
	Total    int
	StartsAt time.Time
	EndsAt   time.Time
}

// RoomView is a point-in-time copy of the mirrored room.
type RoomView struct {
	RoomCode string
	Status   models.RoomStatus
	Phase    *PhaseView
	Subjects []countdown.Remaining
}

// Connect dials the room's websocket and starts the session loops. The join
// result provides the token when the gateway runs with auth; otherwise the
// participant identity rides in the query string.
func (c *Client) Connect(ctx context.Context, join *JoinResult, config SessionConfig) (*Session, error) {
	if join == nil {
		return nil, fmt.Errorf("nil join result")
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultSessionConfig().PingInterval
	}
	wall := config.Wall
	if wall == nil {
		wall = clockwork.NewRealClock()
	}

	endpoint := c.wsURL(join.RoomCode)
	query := url.Values{}
	if join.Token != "" {
		query.Set("token", join.Token)
	} else {
		query.Set("name", join.Participant.Name)
		query.Set("role", string(join.Participant.Role))
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	s := &Session{
		roomCode: join.RoomCode,
		conn:     conn,
		wall:     wall,
		oracle:   clock.NewSyncedClock(wall),
		onEvent:  config.OnEvent,
		config:   config,
		bank:     countdown.NewBank(nil),
		pings:    make(map[int64]time.Time),
		done:     make(chan struct{}),
	}
	if join.ServerTimeMs > 0 {
		s.oracle.Observe(time.UnixMilli(join.ServerTimeMs))
	}

	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// Clock exposes the session's synced server clock.
func (s *Session) Clock() *clock.SyncedClock {
	return s.oracle
}

// ServerNow returns the current best-estimate server time.
func (s *Session) ServerNow() time.Time {
	return s.oracle.Now()
}

// Done closes when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended, nil on a clean close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the session down.
func (s *Session) Close() error {
	s.close(nil)
	return nil
}

// View assembles a copy of the mirrored room, draining countdowns to the
// current estimated server time first.
func (s *Session) View() RoomView {
	now := s.oracle.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bank.TickAll(now)

	view := RoomView{RoomCode: s.roomCode}
	if s.snapshot != nil {
		view.Status = s.snapshot.Status
	}
	if s.phase != nil {
		view.Phase = &PhaseView{
			PhaseID:  s.phase.PhaseID,
			Kind:     s.phase.Kind,
			Prompt:   string(s.prompt),
			Revealed: s.revealed,
			Total:    s.total,
			StartsAt: s.phase.StartsAt,
			EndsAt:   s.phase.EndsAt,
		}
	}
	for _, subject := range s.order {
		rem, status := s.bank.Remaining(subject)
		if status == countdown.StatusIdle {
			continue
		}
		view.Subjects = append(view.Subjects, countdown.Remaining{
			Subject:   subject,
			Remaining: rem,
			Status:    status,
		})
	}
	return view
}

// Remaining drains one subject's countdown to the estimated server time and
// reports it. Unknown subjects read as Idle with zero remaining.
func (s *Session) Remaining(subject string) (time.Duration, countdown.Status) {
	now := s.oracle.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bank.Tick(subject, now)
	return s.bank.Remaining(subject)
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.close(err)
			return
		}

		var event events.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Debug().Err(err).Msg("dropping unparseable frame")
			continue
		}

		s.apply(&event)
		if s.onEvent != nil {
			s.onEvent(&event)
		}
	}
}

func (s *Session) pingLoop() {
	ticker := s.wall.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	s.sendPing()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			s.sendPing()
		}
	}
}

func (s *Session) sendPing() {
	sentAt := s.wall.Now()
	t0 := sentAt.UnixMilli()

	s.mu.Lock()
	// Unanswered probes pile up only when the link is wedged; start over.
	if len(s.pings) > 8 {
		s.pings = make(map[int64]time.Time)
	}
	s.pings[t0] = sentAt
	s.mu.Unlock()

	event, err := events.New(s.roomCode, events.EventTypeTimePing, sentAt, events.TimePingPayload{T0: t0})
	if err != nil {
		return
	}

	s.writeMu.Lock()
	err = s.conn.WriteJSON(event)
	s.writeMu.Unlock()
	if err != nil {
		s.close(err)
	}
}

func (s *Session) apply(event *events.Event) {
	payload, err := events.ParsePayload(event)
	if err != nil {
		log.Debug().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("dropping undecodable payload")
		return
	}

	switch p := payload.(type) {
	case events.RoomSnapshotPayload:
		s.applySnapshot(p)
	case events.TimerTickPayload:
		s.applyTick(p)
	case events.RevealAdvancedPayload:
		s.applyReveal(p)
	case events.TimerExpiredPayload:
		s.applyExpired(p)
	case events.TimePongPayload:
		s.applyPong(p)
	}
}

// applySnapshot rebuilds the whole mirror from an authoritative snapshot.
func (s *Session) applySnapshot(p events.RoomSnapshotPayload) {
	if p.ServerTimeMs > 0 {
		s.oracle.Observe(time.UnixMilli(p.ServerTimeMs))
	}
	now := s.oracle.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = &p
	s.phase = p.Phase
	s.prompt = nil
	s.revealed = 0
	s.total = 0
	if p.Phase != nil {
		s.prompt = []rune(p.Phase.Prompt)
		s.revealed = p.Phase.RevealedCount
		s.total = p.Phase.Units
	}

	s.bank.Reset()
	s.resyncLocked(p.Subjects, now)
}

// applyTick re-anchors every listed countdown to the server's reading. The
// stamp itself stays out of the oracle; see the type comment.
func (s *Session) applyTick(p events.TimerTickPayload) {
	now := s.oracle.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncLocked(p.Subjects, now)
}

func (s *Session) resyncLocked(subjects []events.SubjectRemaining, now time.Time) {
	order := make([]string, 0, len(subjects))
	for _, sub := range subjects {
		order = append(order, sub.Subject)
		remaining := time.Duration(sub.RemainingMs) * time.Millisecond

		s.bank.Stop(sub.Subject)
		switch sub.Status {
		case countdown.StatusRunning.String():
			s.bank.Start(sub.Subject, remaining, now)
		case countdown.StatusPaused.String():
			s.bank.Start(sub.Subject, remaining, now)
			s.bank.Pause(sub.Subject, now)
		case countdown.StatusExpired.String():
			s.bank.Start(sub.Subject, 0, now)
			s.bank.Tick(sub.Subject, now)
		}
	}
	s.order = order
}

func (s *Session) applyReveal(p events.RevealAdvancedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revealed = p.Revealed
	if p.Total > 0 {
		s.total = p.Total
	}
	if p.Glyph != "" && p.Position >= 0 && p.Position < len(s.prompt) {
		s.prompt[p.Position] = []rune(p.Glyph)[0]
	}
}

// applyExpired pins the subject at zero without waiting for the next tick.
func (s *Session) applyExpired(p events.TimerExpiredPayload) {
	now := s.oracle.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bank.Stop(p.Subject)
	s.bank.Start(p.Subject, 0, now)
	s.bank.Tick(p.Subject, now)
}

func (s *Session) applyPong(p events.TimePongPayload) {
	receivedAt := s.wall.Now()

	s.mu.Lock()
	sentAt, ok := s.pings[p.T0]
	if ok {
		delete(s.pings, p.T0)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.oracle.ObserveRoundTrip(sentAt, time.UnixMilli(p.ServerTimeMs), receivedAt)
}

func (s *Session) close(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.err = err
		}
		s.mu.Unlock()
		close(s.done)
		s.conn.Close()
	})
}
