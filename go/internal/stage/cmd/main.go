package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/stage/catalog"
	"github.com/quizlive/stagetime/go/internal/stage/director"
	"github.com/quizlive/stagetime/go/internal/stage/gateway"
	"github.com/quizlive/stagetime/go/internal/stage/relay"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := &Config{}
	if err := newCmd(cfg).Execute(); err != nil {
		log.Fatal().Err(err).Msg("stagetime exited")
	}
}

func run(ctx context.Context, cfg *Config) error {
	cat, err := catalog.Load(cfg.catalogPath)
	if err != nil {
		return fmt.Errorf("load phase catalog: %w", err)
	}

	tick := cfg.tickInterval
	if tick <= 0 {
		tick = cat.TickInterval()
	}

	wall := clockwork.NewRealClock()
	oracle := clock.NewSyncedClock(wall)

	log.Info().
		Str("nats_url", cfg.natsURL).
		Str("catalog", cfg.catalogPath).
		Dur("tick_interval", tick).
		Msg("starting stagetime")

	publisherConfig := relay.DefaultPublisherConfig()
	publisherConfig.URL = cfg.natsURL
	publisher, err := relay.NewPublisher(publisherConfig)
	if err != nil {
		return fmt.Errorf("create intent publisher: %w", err)
	}
	defer publisher.Close()

	consumerConfig := relay.DefaultConsumerConfig()
	consumerConfig.URL = cfg.natsURL
	consumer, err := relay.NewConsumer(consumerConfig)
	if err != nil {
		return fmt.Errorf("create control consumer: %w", err)
	}
	defer consumer.Stop()

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), oracle)

	dir := director.NewDirector(director.Config{
		TickInterval:    tick,
		RoomIdleTimeout: cfg.roomIdleTimeout,
	}, oracle, wall, cat, publisher, cm, nil)

	auth := gateway.NewAuth(cfg.joinSecret, cfg.hostKey, cfg.tokenTTL)
	if cfg.hostKey != "" && cfg.joinSecret == "" {
		log.Warn().Msg("host key set without a join secret, host role is only checked at join")
	}
	svc := gateway.NewService(gateway.DefaultConfig(), auth, cm, dir, oracle)

	// Context for service goroutines
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := consumer.Start(runCtx, dir.HandleControlEvent); err != nil {
			log.Error().Err(err).Msg("control consumer failed")
		}
	}()
	go func() {
		if err := dir.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("director failed")
		}
	}()
	go func() {
		if err := svc.Start(runCtx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	addr := fmt.Sprintf("%s:%d", cfg.bind, cfg.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	listener = netutil.LimitListener(listener, cfg.maxConns)

	server := &http.Server{
		Handler:      c.Handler(svc.Routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server
	go func() {
		log.Info().
			Str("addr", addr).
			Int("max_conns", cfg.maxConns).
			Msg("HTTP server starting")
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-runCtx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to stop the director and consumer
	cancel()

	// Give services time to clean up
	time.Sleep(1 * time.Second)

	log.Info().Msg("stagetime shutdown complete")
	return nil
}
