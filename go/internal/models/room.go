package models

// RoomStatus defines the lifecycle status of a room.
type RoomStatus string

const (
	RoomStatusLobby    RoomStatus = "LOBBY"
	RoomStatusLive     RoomStatus = "LIVE"
	RoomStatusPaused   RoomStatus = "PAUSED"
	RoomStatusFinished RoomStatus = "FINISHED"
)

var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusLobby:    {RoomStatusLive, RoomStatusFinished},
	RoomStatusLive:     {RoomStatusPaused, RoomStatusFinished},
	RoomStatusPaused:   {RoomStatusLive, RoomStatusFinished},
	RoomStatusFinished: {},
}

// CanTransitionTo reports whether the status change is legal.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	for _, allowed := range roomTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Role defines what kind of client a participant is.
type Role string

const (
	// RoleHost is the desktop/projector view driving the show.
	RoleHost Role = "HOST"
	// RolePlayer is a mobile participant.
	RolePlayer Role = "PLAYER"
)

// Valid reports whether the role is one this service issues tokens for.
func (r Role) Valid() bool {
	return r == RoleHost || r == RolePlayer
}

// Participant identifies one connected client within a room.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
