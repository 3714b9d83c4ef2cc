// Package gateway serves the client-facing side of the timing service:
// join tokens, websocket fan-out of presentation events, room snapshots,
// QR codes, and client clock probes.
package gateway

import (
	"context"

	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
)

// StateProvider hands out client-safe room snapshots. The director
// implements it.
type StateProvider interface {
	Snapshot(roomCode string) (*events.RoomSnapshotPayload, bool)
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// Service ties the connection manager, auth, and snapshot source together
// behind one router.
type Service struct {
	config   Config
	cm       *ConnectionManager
	auth     *Auth
	provider StateProvider
	oracle   clock.Oracle
}

// NewService creates the gateway service around an existing connection
// manager, so the director can hold the same manager as its broadcaster.
func NewService(config Config, auth *Auth, cm *ConnectionManager, provider StateProvider, oracle clock.Oracle) *Service {
	return &Service{
		config:   config,
		cm:       cm,
		auth:     auth,
		provider: provider,
		oracle:   oracle,
	}
}

// Start runs the broadcast pump until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("auth_enabled", s.auth.Enabled()).Msg("starting stage gateway service")

	go s.cm.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("stage gateway service shutting down")
	return nil
}

// GetStats returns statistics about the gateway and, when the snapshot
// source exposes them, the director behind it.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.cm.GetConnectionStats()
	stats["service"] = "stage_gateway"
	if src, ok := s.provider.(interface{ Stats() map[string]interface{} }); ok {
		stats["director"] = src.Stats()
	}
	return stats
}
