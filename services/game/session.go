package game

import (
	"sync"
	"time"
)

// Status of a session. There is no pause state: a session is live until it
// finishes, and a finished session only exists in the archive.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// End reasons carried in the final broadcast and the archive row.
const (
	ReasonFiveInARow = "five_in_a_row"
	ReasonDraw       = "draw"
	ReasonForfeit    = "forfeit"
	ReasonDisconnect = "disconnect"
)

// Move is one accepted stone placement. Seq is zero-based and strictly
// increasing per session.
type Move struct {
	Seq    int       `json:"seq"`
	Pos    Position  `json:"pos"`
	Color  Color     `json:"color"`
	Forced bool      `json:"forced,omitempty"`
	At     time.Time `json:"at"`
}

// Result of a finished session.
type Result struct {
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason"`
}

// Session is one two-player game. The engine owns it exclusively; all reads
// and writes happen under mu. The turn timer races client moves: whichever
// acquires mu first for the current turn wins and disables the other.
type Session struct {
	mu sync.Mutex

	ID    string
	Black string
	White string

	board      *Board
	moves      []Move
	current    Color
	deadline   time.Time
	timer      *time.Timer
	status     Status
	result     Result
	spectators map[string]struct{}
	startedAt  time.Time
	endedAt    time.Time
}

// PlayerColor returns the color assigned to username, or false if username
// is not a player of this session. Callers hold no lock; colors are
// immutable after creation.
func (s *Session) PlayerColor(username string) (Color, bool) {
	switch username {
	case s.Black:
		return Black, true
	case s.White:
		return White, true
	}
	return "", false
}

// Snapshot is the full client-facing state of a session, pushed on every
// change and returned to new spectators.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	Black         string    `json:"black"`
	White         string    `json:"white"`
	Board         [][]Color `json:"board"`
	CurrentTurn   Color     `json:"current_turn"`
	CurrentPlayer string    `json:"current_player"`
	LastMove      *Move     `json:"last_move,omitempty"`
	MoveCount     int       `json:"move_count"`
	Status        Status    `json:"status"`
	Winner        string    `json:"winner,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Deadline      time.Time `json:"deadline"`
	TimeRemaining int       `json:"time_remaining"`
}

// snapshotLocked builds a Snapshot. Caller holds s.mu.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.ID,
		Black:       s.Black,
		White:       s.White,
		Board:       s.board.Grid(),
		CurrentTurn: s.current,
		MoveCount:   len(s.moves),
		Status:      s.status,
		Winner:      s.result.Winner,
		Reason:      s.result.Reason,
	}
	if s.status == StatusInProgress {
		snap.CurrentPlayer = s.playerLocked(s.current)
		snap.Deadline = s.deadline
		if remaining := time.Until(s.deadline); remaining > 0 {
			snap.TimeRemaining = int(remaining.Seconds())
		}
	}
	if n := len(s.moves); n > 0 {
		mv := s.moves[n-1]
		snap.LastMove = &mv
	}
	return snap
}

// playerLocked maps a color to its username. Caller holds s.mu.
func (s *Session) playerLocked(c Color) string {
	if c == Black {
		return s.Black
	}
	return s.White
}

// LiveSummary is the compact listing entry for the spectator lobby.
type LiveSummary struct {
	SessionID   string `json:"session_id"`
	Black       string `json:"black"`
	White       string `json:"white"`
	BlackStones int    `json:"black_stones"`
	WhiteStones int    `json:"white_stones"`
	CurrentTurn Color  `json:"current_turn"`
}

// summaryLocked builds a LiveSummary. Caller holds s.mu.
func (s *Session) summaryLocked() LiveSummary {
	blacks := (len(s.moves) + 1) / 2
	return LiveSummary{
		SessionID:   s.ID,
		Black:       s.Black,
		White:       s.White,
		BlackStones: blacks,
		WhiteStones: len(s.moves) - blacks,
		CurrentTurn: s.current,
	}
}
