// Package history is the append-only move log and game archive. While a
// session runs its moves live in memory; on completion the full record is
// archived as one jsonb row. The store performs no playback logic; it is a
// pure ordered-move repository.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"Renju/models/postgres"
	"Renju/pkg/logger"
	"Renju/protocol"

	"gorm.io/gorm"
)

// MoveEntry is one recorded move. Entries are immutable once appended.
type MoveEntry struct {
	Seq   int       `json:"seq"`
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	Color string    `json:"color"`
	At    time.Time `json:"at"`
}

// Item is one row of a player's game history, opponent name already
// resolved.
type Item struct {
	GameID    string    `json:"game_id"`
	Opponent  string    `json:"opponent"`
	YourColor string    `json:"your_color"`
	Winner    string    `json:"winner,omitempty"`
	Result    string    `json:"result"`
	Delta     int       `json:"credit_delta"`
	MoveCount int       `json:"move_count"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Store keeps live move logs in memory and archived games in PostgreSQL.
type Store struct {
	mu   sync.Mutex
	live map[string][]MoveEntry
	db   *gorm.DB
}

// New creates a Store. db may be nil in tests; archive operations then fail
// and live logs still work.
func New(db *gorm.DB) *Store {
	return &Store{
		live: make(map[string][]MoveEntry),
		db:   db,
	}
}

// Append records one move for a live game. Moves must arrive in sequence
// order; an out-of-order append indicates a broken engine invariant and is
// dropped with an error log rather than corrupting the record.
func (s *Store) Append(gameID string, mv MoveEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.live[gameID]
	if mv.Seq != len(log) {
		logger.Get().Error().
			Str("game", gameID).
			Int("seq", mv.Seq).
			Int("expected", len(log)).
			Msg("history: move out of sequence")
		return
	}
	s.live[gameID] = append(log, mv)
}

// Replay returns the full ordered move list of a live or archived game.
func (s *Store) Replay(gameID string) ([]MoveEntry, error) {
	s.mu.Lock()
	if log, ok := s.live[gameID]; ok {
		out := make([]MoveEntry, len(log))
		copy(out, log)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil, protocol.NewError(protocol.CodeSessionNotFound, "game not found")
	}

	var rec postgres.GameRecord
	err := s.db.Where("id = ?", gameID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, protocol.NewError(protocol.CodeSessionNotFound, "game not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading game record: %w", err)
	}

	var moves []MoveEntry
	if err := json.Unmarshal(rec.Moves, &moves); err != nil {
		return nil, fmt.Errorf("decoding archived moves: %w", err)
	}
	return moves, nil
}

// Record returns the archived record of a finished game.
func (s *Store) Record(gameID string) (*postgres.GameRecord, error) {
	if s.db == nil {
		return nil, protocol.NewError(protocol.CodeSessionNotFound, "game not found")
	}

	var rec postgres.GameRecord
	err := s.db.Where("id = ?", gameID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, protocol.NewError(protocol.CodeSessionNotFound, "game not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading game record: %w", err)
	}
	return &rec, nil
}

// Archive persists the finished game's record together with its live move
// log and releases the log. Called exactly once per finished session.
func (s *Store) Archive(rec *postgres.GameRecord) error {
	s.mu.Lock()
	moves := s.live[rec.ID]
	data, err := json.Marshal(moves)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encoding moves: %w", err)
	}
	rec.Moves = data
	delete(s.live, rec.ID)
	s.mu.Unlock()

	if s.db == nil {
		return errors.New("history: no database configured")
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("archiving game %s: %w", rec.ID, err)
	}
	return nil
}

// Discard drops a live log without archiving it.
func (s *Store) Discard(gameID string) {
	s.mu.Lock()
	delete(s.live, gameID)
	s.mu.Unlock()
}

// HistoryFor returns a player's completed games, most recent first. resolve
// maps an opponent's username to its display name (sentinel when deleted).
func (s *Store) HistoryFor(username string, limit int, resolve func(string) string) ([]Item, error) {
	if s.db == nil {
		return nil, errors.New("history: no database configured")
	}

	var recs []postgres.GameRecord
	err := s.db.
		Where("black_player = ? OR white_player = ?", username, username).
		Order("ended_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		opponent, color, delta := rec.WhitePlayer, "black", rec.BlackDelta
		if rec.WhitePlayer == username {
			opponent, color, delta = rec.BlackPlayer, "white", rec.WhiteDelta
		}

		winner := rec.Winner
		if winner != "" && winner != username {
			winner = resolve(winner)
		}

		var moves []MoveEntry
		_ = json.Unmarshal(rec.Moves, &moves)

		items = append(items, Item{
			GameID:    rec.ID,
			Opponent:  resolve(opponent),
			YourColor: color,
			Winner:    winner,
			Result:    rec.Result,
			Delta:     delta,
			MoveCount: len(moves),
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
		})
	}
	return items, nil
}
