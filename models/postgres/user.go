package postgres

import (
	"time"
)

// DeletedDisplayName replaces a soft-deleted account's username anywhere it
// shows up in another player's history.
const DeletedDisplayName = "account deleted"

/*
 * 'User' contains the blueprint definition of a player account. Usernames are
 * immutable and stay reserved after deletion, since game records reference
 * them. Deletion is a soft flag, never a row removal.
 */
type User struct {
	Username     string    `gorm:"primaryKey;size:50;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Credits      int       `gorm:"not null;default:0;index"`
	Wins         int       `gorm:"not null;default:0"`
	Losses       int       `gorm:"not null;default:0"`
	Draws        int       `gorm:"not null;default:0"`
	Deleted      bool      `gorm:"not null;default:false"`
	MemberSince  time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// DisplayName resolves the name other players see for this account.
func (u *User) DisplayName() string {
	if u.Deleted {
		return DeletedDisplayName
	}
	return u.Username
}
