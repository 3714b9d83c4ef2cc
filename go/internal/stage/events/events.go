// Package events defines the wire envelope and payloads shared by the relay,
// the director, and the gateway. Control events flow in from the game
// service, intent events flow back out, and presentation events fan out to
// connected clients.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every message travels in, on NATS and on the
// websocket alike.
type Event struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType discriminates the payload carried in Data.
type EventType string

// Control events published by the game service.
const (
	EventTypePhaseStarted EventType = "PhaseStarted"
	EventTypePhasePaused  EventType = "PhasePaused"
	EventTypePhaseResumed EventType = "PhaseResumed"
	EventTypePhaseEnded   EventType = "PhaseEnded"
	EventTypeRoomClosed   EventType = "RoomClosed"
	EventTypeTimePulse    EventType = "TimePulse"
)

// Intent events published back toward the game service.
const (
	EventTypeRevealAdvanced EventType = "RevealAdvanced"
	EventTypeTimerExpired   EventType = "TimerExpired"
)

// Presentation events broadcast to websocket clients, plus the probe pair
// clients use for their own clock sync.
const (
	EventTypeTimerTick    EventType = "TimerTick"
	EventTypeRoomSnapshot EventType = "RoomSnapshot"
	EventTypeTimePing     EventType = "TimePing"
	EventTypeTimePong     EventType = "TimePong"
)

// New builds an envelope around payload. ts should come from the synced show
// clock so consumers can feed envelope timestamps back into offset
// estimation.
func New(roomCode string, typ EventType, ts time.Time, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Type:      typ,
		Timestamp: ts,
		Data:      data,
	}, nil
}

// ParsePayload decodes Data into the payload struct for the event type.
// Unknown types return (nil, nil) so consumers can skip them without treating
// new upstream event kinds as failures.
func ParsePayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypePhaseStarted:
		var payload PhaseStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePhasePaused:
		var payload PhasePausedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePhaseResumed:
		var payload PhaseResumedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePhaseEnded:
		var payload PhaseEndedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoomClosed:
		var payload RoomClosedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimePulse:
		var payload TimePulsePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRevealAdvanced:
		var payload RevealAdvancedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerExpired:
		var payload TimerExpiredPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerTick:
		var payload TimerTickPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoomSnapshot:
		var payload RoomSnapshotPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimePing:
		var payload TimePingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimePong:
		var payload TimePongPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
