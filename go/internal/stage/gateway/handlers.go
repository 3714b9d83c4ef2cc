package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Routes builds the gateway router.
func (s *Service) Routes() http.Handler {
	router := httprouter.New()
	router.POST("/api/rooms/:code/join", s.handleJoin)
	router.GET("/api/rooms/:code/state", s.handleState)
	router.GET("/rooms/:code/ws", s.handleWebSocket)
	router.GET("/rooms/:code/qr", s.handleQR)
	router.GET("/healthz", s.handleHealth)
	router.GET("/stats", s.handleStats)
	return router
}

type joinRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type joinResponse struct {
	RoomCode     string             `json:"room_code"`
	Participant  models.Participant `json:"participant"`
	Token        string             `json:"token,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	ServerTimeMs int64              `json:"server_time_ms"`
}

// handleJoin hands out a participant identity and, when auth is enabled, the
// join token the websocket dial must carry. The response is stamped with
// server time so clients can seed their clock sync before connecting.
func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomCode := ps.ByName("code")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid join request")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	role := models.RolePlayer
	if req.Role != "" {
		role = models.Role(strings.ToUpper(req.Role))
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "unknown role")
			return
		}
	}
	if role == models.RoleHost && !s.auth.AuthorizeHost(r) {
		writeError(w, http.StatusForbidden, "host key required")
		return
	}

	participant := models.Participant{
		ID:   uuid.New().String(),
		Name: name,
		Role: role,
	}
	resp := joinResponse{
		RoomCode:     roomCode,
		Participant:  participant,
		ServerTimeMs: s.oracle.NowMillis(),
	}
	if s.auth.Enabled() {
		token, exp, err := s.auth.SignJoinToken(roomCode, participant)
		if err != nil {
			log.Error().Err(err).Str("room_code", roomCode).Msg("failed to sign join token")
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		resp.Token = token
		resp.ExpiresAt = &exp
	}

	log.Info().
		Str("room_code", roomCode).
		Str("participant_id", participant.ID).
		Str("role", string(role)).
		Msg("participant joined")

	writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket upgrades a client and immediately pushes the room snapshot
// so a reconnect resyncs in one message.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomCode := ps.ByName("code")

	var participant models.Participant
	if s.auth.Enabled() {
		claims, err := s.auth.ParseJoinToken(tokenFromRequest(r))
		if err != nil {
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
		if claims.RoomCode != roomCode {
			http.Error(w, "token is for another room", http.StatusForbidden)
			return
		}
		participant = claims.Participant
	} else {
		// Development mode: identity comes from the query string.
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anonymous"
		}
		role := models.Role(strings.ToUpper(r.URL.Query().Get("role")))
		if !role.Valid() {
			role = models.RolePlayer
		}
		participant = models.Participant{
			ID:   uuid.New().String(),
			Name: name,
			Role: role,
		}
	}

	conn, err := s.cm.UpgradeConnection(w, r, roomCode, participant)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	s.sendSnapshot(conn, roomCode)
}

func (s *Service) sendSnapshot(conn *Connection, roomCode string) {
	snap, ok := s.provider.Snapshot(roomCode)
	if !ok {
		// Room not tracked yet; the client still gets a stamped lobby
		// view so its clock sync starts immediately.
		snap = &events.RoomSnapshotPayload{
			RoomCode:     roomCode,
			Status:       models.RoomStatusLobby,
			ServerTimeMs: s.oracle.NowMillis(),
		}
	}
	ev, err := events.New(roomCode, events.EventTypeRoomSnapshot, s.oracle.Now(), snap)
	if err != nil {
		log.Error().Err(err).Str("room_code", roomCode).Msg("failed to build snapshot event")
		return
	}
	s.cm.SendToConnection(conn, ev)
}

// handleState serves the same snapshot over plain HTTP for overlays that
// poll instead of holding a socket.
func (s *Service) handleState(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomCode := ps.ByName("code")
	snap, ok := s.provider.Snapshot(roomCode)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleQR serves a PNG QR code pointing at the room URL, respecting TLS and
// X-Forwarded-Proto from the usual reverse proxy setups.
func (s *Service) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("code") == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")
	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "stagetime-gateway",
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.GetStats())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
