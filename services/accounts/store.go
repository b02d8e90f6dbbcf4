// Package accounts adapts persisted user records for the rest of the server.
// The core treats it as a key-value collaborator: everything is keyed by the
// immutable username, and deletion is a soft flag so historical games keep a
// resolvable identity.
package accounts

import (
	"Renju/models/postgres"
)

// Store is the account persistence boundary consumed by the session engine,
// the invite subsystem and the protocol handlers.
type Store interface {
	// Create registers a new account with a hashed credential. Usernames
	// stay reserved even after soft deletion.
	Create(username, password string) (*postgres.User, error)
	// Authenticate verifies a credential and returns the account.
	Authenticate(username, password string) (*postgres.User, error)
	// Get returns an account by username, deleted or not.
	Get(username string) (*postgres.User, error)
	// Settle applies a finished game to both accounts in one transaction:
	// both rows update or neither does. The loser's debit is clamped so
	// credits never go below zero; the applied deltas are returned.
	// On a draw only the draw counters move.
	Settle(winner, loser string, delta int, draw bool) (winnerApplied, loserApplied int, err error)
	// SoftDelete flags an account as deleted without removing it.
	SoftDelete(username string) error
	// Top returns the best accounts by credits (wins as tiebreaker),
	// excluding deleted ones. Used to rebuild the leaderboard.
	Top(limit int) ([]postgres.User, error)
}
