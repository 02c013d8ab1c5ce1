package room

import (
	"github.com/park285/Cheese-LiveChess/internal/session"
	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

func colorAssignedEvent(room string, role session.Role) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventColorAssigned, Data: chessdto.ColorAssigned{RoomID: room, Color: string(role)}}
}

func playersPayload(snap session.Snapshot) chessdto.Players {
	return chessdto.Players{RoomID: snap.Room, White: snap.White, Black: snap.Black}
}

func playersEvent(snap session.Snapshot) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventPlayers, Data: playersPayload(snap)}
}

// stateEvent renders a snapshot. Players are omitted when withPlayers is
// false, which clients read as "unchanged".
func stateEvent(snap session.Snapshot, withPlayers bool) chessdto.Event {
	st := chessdto.State{RoomID: snap.Room, FEN: snap.FEN, Turn: snap.Turn.Short()}
	if snap.LastMove != nil {
		st.LastMove = &chessdto.LastMove{From: snap.LastMove.From, To: snap.LastMove.To, SAN: snap.LastMove.SAN}
	}
	if withPlayers {
		pl := playersPayload(snap)
		pl.RoomID = ""
		st.Players = &pl
	}
	return chessdto.Event{Type: chessdto.EventState, Data: st}
}

func gameOverEvent(room string, t *session.Terminal) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventGameOver, Data: chessdto.GameOver{
		RoomID:    room,
		Checkmate: t.Checkmate,
		Winner:    string(t.Winner),
		Stalemate: t.Stalemate,
		Draw:      t.Draw,
	}}
}

func moveRejectedEvent(room, reason, message string) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventMoveRejected, Data: chessdto.MoveRejected{RoomID: room, Reason: reason, Message: message}}
}
