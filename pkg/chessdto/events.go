// Package chessdto defines the JSON event protocol spoken between room
// participants and the server. Every frame is an Envelope whose Type selects
// exactly one payload schema.
package chessdto

import "encoding/json"

type EventType string

// client → server
const (
	EventJoin      EventType = "join"
	EventMove      EventType = "move"
	EventReset     EventType = "reset"
	EventLeaveRoom EventType = "leaveRoom"
)

// server → client
const (
	EventColorAssigned EventType = "colorAssigned"
	EventState         EventType = "state"
	EventPlayers       EventType = "players"
	EventGameOver      EventType = "gameOver"
	EventMoveRejected  EventType = "moveRejected"
	EventError         EventType = "error"
)

// Envelope is the raw frame read from a client.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is a server → client frame.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type JoinRequest struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type MoveRequest struct {
	RoomID    string `json:"roomId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
}

type ResetRequest struct {
	RoomID string `json:"roomId"`
}

type LeaveRequest struct {
	RoomID string `json:"roomId"`
}

type ColorAssigned struct {
	RoomID string `json:"roomId,omitempty"`
	Color  string `json:"color"`
}

type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
}

type Players struct {
	RoomID string `json:"roomId,omitempty"`
	White  bool   `json:"white"`
	Black  bool   `json:"black"`
}

// State is the full snapshot. LastMove is null before the first move.
type State struct {
	RoomID   string    `json:"roomId,omitempty"`
	FEN      string    `json:"fen"`
	Turn     string    `json:"turn"`
	LastMove *LastMove `json:"lastMove"`
	Players  *Players  `json:"players,omitempty"`
}

type GameOver struct {
	RoomID    string `json:"roomId,omitempty"`
	Checkmate bool   `json:"checkmate"`
	Winner    string `json:"winner,omitempty"`
	Stalemate bool   `json:"stalemate"`
	Draw      bool   `json:"draw"`
}

type MoveRejected struct {
	RoomID  string `json:"roomId,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
