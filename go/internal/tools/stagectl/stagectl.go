// stagectl publishes stage control events by hand, standing in for the game
// service. Point it at the NATS server of a running stagetime instance and
// drive a room through its phases from the shell:
//
//	stagectl -r BANANA42 start -k WORD_REVEAL --prompt "GRAND PIANO" --duration 20s
//	stagectl -r BANANA42 pause --reason "host dispute"
//	stagectl -r BANANA42 resume
//	stagectl -r BANANA42 close
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/quizlive/stagetime/go/internal/stage/relay"
)

const publishTimeout = 5 * time.Second

func main() {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	var natsURL, room string

	root := &cobra.Command{
		Use:           "stagectl",
		Short:         "Publish stage control events by hand.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&natsURL, "nats-url", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	root.PersistentFlags().StringVarP(&room, "room", "r", "", "room code")
	_ = root.MarkPersistentFlagRequired("room")

	root.AddCommand(
		newStartCmd(&natsURL, &room),
		newPauseCmd(&natsURL, &room),
		newResumeCmd(&natsURL, &room),
		newEndCmd(&natsURL, &room),
		newCloseCmd(&natsURL, &room),
		newPulseCmd(&natsURL, &room),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stagectl: %v\n", err)
		os.Exit(1)
	}
}

func newStartCmd(natsURL, room *string) *cobra.Command {
	var (
		kind     string
		prompt   string
		phaseID  string
		units    int
		floor    float64
		duration time.Duration
		delay    time.Duration
		subjects []string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a phase in the room",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			if phaseID == "" {
				phaseID = uuid.New().String()
			}
			starts := time.Now().Add(delay)
			payload := events.PhaseStartedPayload{
				PhaseID:       phaseID,
				Kind:          k,
				Prompt:        prompt,
				Units:         units,
				FloorFraction: floor,
				StartsAt:      starts,
			}
			if duration > 0 {
				payload.EndsAt = starts.Add(duration)
			}
			if payload.Subjects, err = parseSubjects(subjects); err != nil {
				return err
			}
			return publish(*natsURL, *room, events.EventTypePhaseStarted, payload)
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", string(models.PhaseKindAnswerWindow), "IMAGE_REVEAL, WORD_REVEAL, TURN_CLOCK or ANSWER_WINDOW")
	cmd.Flags().StringVar(&prompt, "prompt", "", "answer text for word reveal phases")
	cmd.Flags().StringVar(&phaseID, "phase-id", "", "phase id, random when omitted")
	cmd.Flags().IntVar(&units, "units", 0, "reveal unit count for image phases, 0 uses the catalog default")
	cmd.Flags().Float64Var(&floor, "floor", 0, "fraction of the window that finishes the reveal, 0 uses the catalog default")
	cmd.Flags().DurationVar(&duration, "duration", 0, "phase window length, 0 uses the catalog default")
	cmd.Flags().DurationVar(&delay, "delay", 0, "schedule the start this far in the future")
	cmd.Flags().StringSliceVar(&subjects, "subject", nil, "turn clock entry as id=duration, repeatable")
	return cmd
}

func newPauseCmd(natsURL, room *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the running phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(*natsURL, *room, events.EventTypePhasePaused, events.PhasePausedPayload{
				PausedAt: time.Now(),
				Reason:   reason,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "operator note")
	return cmd
}

func newResumeCmd(natsURL, room *string) *cobra.Command {
	var extend time.Duration
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the paused phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := events.PhaseResumedPayload{ResumedAt: time.Now()}
			if extend > 0 {
				payload.EndsAt = time.Now().Add(extend)
			}
			return publish(*natsURL, *room, events.EventTypePhaseResumed, payload)
		},
	}
	cmd.Flags().DurationVar(&extend, "extend", 0, "push the deadline this far past now, 0 keeps the old one")
	return cmd
}

func newEndCmd(natsURL, room *string) *cobra.Command {
	var phaseID string
	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the running phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(*natsURL, *room, events.EventTypePhaseEnded, events.PhaseEndedPayload{
				PhaseID: phaseID,
				EndedAt: time.Now(),
			})
		},
	}
	cmd.Flags().StringVar(&phaseID, "phase-id", "", "only end this phase, empty ends whatever runs")
	return cmd
}

func newCloseCmd(natsURL, room *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the room and drop its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(*natsURL, *room, events.EventTypeRoomClosed, events.RoomClosedPayload{
				Reason: reason,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "operator note")
	return cmd
}

func newPulseCmd(natsURL, room *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pulse",
		Short: "Send one authoritative clock reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(*natsURL, *room, events.EventTypeTimePulse, events.TimePulsePayload{
				ServerTime: time.Now(),
			})
		},
	}
}

func publish(natsURL, room string, typ events.EventType, payload interface{}) error {
	config := relay.ControlPublisherConfig()
	config.URL = natsURL

	pub, err := relay.NewPublisher(config)
	if err != nil {
		return fmt.Errorf("connect publisher: %w", err)
	}
	defer pub.Close()

	event, err := events.New(room, typ, time.Now(), payload)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, event); err != nil {
		return err
	}

	fmt.Printf("published %s to room %s (event %s)\n", typ, room, event.ID)
	return nil
}

func parseKind(raw string) (models.PhaseKind, error) {
	k := models.PhaseKind(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
	switch k {
	case models.PhaseKindImageReveal, models.PhaseKindWordReveal,
		models.PhaseKindTurnClock, models.PhaseKindAnswerWindow:
		return k, nil
	}
	return "", fmt.Errorf("unknown phase kind %q", raw)
}

// parseSubjects turns repeated id=duration flags into wire subjects. The
// duration side accepts either a Go duration or plain milliseconds.
func parseSubjects(raw []string) ([]events.SubjectDuration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	subjects := make([]events.SubjectDuration, 0, len(raw))
	for _, entry := range raw {
		id, val, ok := strings.Cut(entry, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed subject %q, want id=duration", entry)
		}
		var ms int64
		if d, err := time.ParseDuration(val); err == nil {
			ms = d.Milliseconds()
		} else if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			ms = n
		} else {
			return nil, fmt.Errorf("malformed subject duration %q", val)
		}
		if ms <= 0 {
			return nil, fmt.Errorf("subject %s needs a positive duration", id)
		}
		subjects = append(subjects, events.SubjectDuration{SubjectID: id, DurationMs: ms})
	}
	return subjects, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
