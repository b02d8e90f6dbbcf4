package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// Game results as stored in the archive.
const (
	ResultWin     = "win"
	ResultDraw    = "draw"
	ResultForfeit = "forfeit"
)

/*
 * 'GameRecord' is the append-only archive row written exactly once per
 * finished session. Moves are stored as an ordered jsonb list so a replay
 * can be reconstructed without any extra tables. Player usernames reference
 * User rows and are never rewritten; deleted opponents are masked at read
 * time, not in storage.
 */
type GameRecord struct {
	ID          string         `gorm:"primaryKey;size:50;not null"`
	BlackPlayer string         `gorm:"size:50;not null;index"`
	WhitePlayer string         `gorm:"size:50;not null;index"`
	Winner      string         `gorm:"size:50"` // empty on a draw
	Result      string         `gorm:"size:20;not null"`
	BlackDelta  int            `gorm:"not null;default:0"`
	WhiteDelta  int            `gorm:"not null;default:0"`
	Moves       datatypes.JSON `gorm:"type:jsonb;default:'[]'"`
	StartedAt   time.Time      `gorm:"not null"`
	EndedAt     time.Time      `gorm:"not null;index"`
}
