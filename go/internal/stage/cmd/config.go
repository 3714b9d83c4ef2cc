package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config carries every runtime knob for the stagetime service. Flags and
// STAGETIME_* environment variables populate it, with flags winning.
type Config struct {
	bind            string
	port            int
	natsURL         string
	catalogPath     string
	joinSecret      string
	hostKey         string
	tokenTTL        time.Duration
	tickInterval    time.Duration
	roomIdleTimeout time.Duration
	maxConns        int
	allowedOrigins  []string
	verbose         bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.tickInterval < 0 {
		return fmt.Errorf("tick interval must not be negative: %s", c.tickInterval)
	}
	if c.maxConns < 1 {
		return fmt.Errorf("max connections must be at least 1: %d", c.maxConns)
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STAGETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "stagetime",
		Short:         "Drives reveal schedules and countdowns for live quiz rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			if cfg.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STAGETIME_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8089, "port to listen on (env: STAGETIME_PORT)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL (env: STAGETIME_NATS_URL)")
	fs.StringVar(&cfg.catalogPath, "catalog", "", "path to a phase catalog YAML, empty for built-in defaults (env: STAGETIME_CATALOG)")
	fs.StringVar(&cfg.joinSecret, "join-secret", "", "HMAC secret for join tokens, empty runs the gateway open (env: STAGETIME_JOIN_SECRET)")
	fs.StringVar(&cfg.hostKey, "host-key", "", "shared key required to join a room as host (env: STAGETIME_HOST_KEY)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 12*time.Hour, "lifetime of issued join tokens (env: STAGETIME_TOKEN_TTL)")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", 0, "cadence of the room timing loop, 0 uses the catalog value (env: STAGETIME_TICK_INTERVAL)")
	fs.DurationVar(&cfg.roomIdleTimeout, "room-idle-timeout", 30*time.Minute, "time before idle rooms without a phase are dropped, 0 disables (env: STAGETIME_ROOM_IDLE_TIMEOUT)")
	fs.IntVar(&cfg.maxConns, "max-conns", 1024, "cap on concurrent HTTP connections (env: STAGETIME_MAX_CONNS)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"*"}, "CORS allowed origins (env: STAGETIME_ALLOWED_ORIGINS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: STAGETIME_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
