package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans presentation events out to the websocket clients of
// each room. It satisfies the director's Broadcaster.
type ConnectionManager struct {
	// Connection pools organized by room code
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// oracle answers client time probes from the same estimate the
	// director ticks on.
	oracle clock.Oracle

	broadcastCh chan BroadcastMessage

	// Counters below are guarded by mu.
	droppedBroadcasts int64
	droppedSends      int64
}

// Connection represents one websocket client in a room.
type Connection struct {
	ID            string
	ParticipantID string
	Name          string
	Role          models.Role
	RoomCode      string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a queued fan-out to one room, optionally narrowed to a
// single participant.
type BroadcastMessage struct {
	RoomCode      string
	Event         *events.Event
	ParticipantID string
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a websocket connection manager.
func NewConnectionManager(config ConnectionConfig, oracle clock.Oracle) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		oracle:      oracle,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and registers it
// in the participant's room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomCode string, participant models.Participant) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participant.ID,
		Name:          participant.Name,
		Role:          participant.Role,
		RoomCode:      roomCode,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participant.ID).
		Str("role", string(participant.Role)).
		Str("room_code", roomCode).
		Msg("websocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomCode] == nil {
		cm.roomConnections[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", conn.RoomCode).
		Int("total_connections", len(cm.roomConnections[conn.RoomCode])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.roomConnections[conn.RoomCode]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomCode)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Str("room_code", conn.RoomCode).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToRoom sends an event to every connection in a room. It never
// blocks; when the queue is full the message is dropped and counted.
func (cm *ConnectionManager) BroadcastToRoom(roomCode string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomCode: roomCode, Event: event}:
	default:
		cm.mu.Lock()
		cm.droppedBroadcasts++
		cm.mu.Unlock()
		log.Warn().Str("room_code", roomCode).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToParticipant sends an event to one participant's connections in a
// room.
func (cm *ConnectionManager) BroadcastToParticipant(roomCode, participantID string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomCode: roomCode, Event: event, ParticipantID: participantID}:
	default:
		cm.mu.Lock()
		cm.droppedBroadcasts++
		cm.mu.Unlock()
		log.Warn().
			Str("room_code", roomCode).
			Str("participant_id", participantID).
			Msg("broadcast channel full, dropping participant message")
	}
}

// SendToConnection queues an event on a single connection, bypassing the
// room fan-out. Used for connect-time snapshots and time probe answers.
func (cm *ConnectionManager) SendToConnection(conn *Connection, event *events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for send")
		return
	}
	select {
	case conn.Send <- data:
	default:
		cm.mu.Lock()
		cm.droppedSends++
		cm.mu.Unlock()
		log.Warn().
			Str("connection_id", conn.ID).
			Str("event_type", string(event.Type)).
			Msg("connection send buffer full, dropping event")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.RoomCode]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot the targets so the lock is not held during the sends.
	var targets []*Connection
	for conn := range connections {
		if message.ParticipantID != "" && conn.ParticipantID != message.ParticipantID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow or dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_code", message.RoomCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for roomCode, connections := range cm.roomConnections {
		count := len(connections)
		totalConnections += count
		roomCounts[roomCode] = count
	}

	return map[string]interface{}{
		"total_connections":  totalConnections,
		"active_rooms":       len(cm.roomConnections),
		"room_connections":   roomCounts,
		"dropped_broadcasts": cm.droppedBroadcasts,
		"dropped_sends":      cm.droppedSends,
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with websocket pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes client messages until the socket dies.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage answers client time probes; everything else is logged
// and dropped, clients have no other say in room timing.
func (c *Connection) handleClientMessage(message []byte) {
	var event events.Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("ignoring undecodable client message")
		return
	}

	switch event.Type {
	case events.EventTypeTimePing:
		var ping events.TimePingPayload
		if err := json.Unmarshal(event.Data, &ping); err != nil {
			log.Debug().
				Str("connection_id", c.ID).
				Msg("ignoring malformed time ping")
			return
		}
		pong, err := events.New(c.RoomCode, events.EventTypeTimePong, c.Manager.oracle.Now(), events.TimePongPayload{
			T0:           ping.T0,
			ServerTimeMs: c.Manager.oracle.NowMillis(),
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to build time pong")
			return
		}
		c.Manager.SendToConnection(c, pong)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Str("event_type", string(event.Type)).
			Msg("ignoring unexpected client message")
	}
}
