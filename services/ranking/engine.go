package ranking

import (
	"fmt"
	"time"

	"Renju/metrics"
	"Renju/models/postgres"
	"Renju/pkg/logger"
)

// Store is the slice of the account store the ranking engine needs.
type Store interface {
	Get(username string) (*postgres.User, error)
	Settle(winner, loser string, delta int, draw bool) (winnerApplied, loserApplied int, err error)
	Top(limit int) ([]postgres.User, error)
}

// Outcome describes one finished session, as handed over by the game engine
// exactly once.
type Outcome struct {
	GameID    string
	Black     string
	White     string
	Winner    string // empty on a draw
	Draw      bool
	Reason    string // postgres.ResultWin, ResultDraw or ResultForfeit
	MoveCount int
	StartedAt time.Time
	EndedAt   time.Time
}

// Settlement reports the credit deltas actually applied, keyed by color.
type Settlement struct {
	BlackDelta int
	WhiteDelta int
}

// Engine applies outcomes to the account store and the leaderboard.
type Engine struct {
	store Store
	lb    Leaderboard
}

func NewEngine(store Store, lb Leaderboard) *Engine {
	return &Engine{store: store, lb: lb}
}

// Settle computes the credit delta for an outcome, updates both accounts in
// one transaction and refreshes the leaderboard rows for both players.
func (e *Engine) Settle(out Outcome) (Settlement, error) {
	log := logger.Get()

	if out.Draw {
		if _, _, err := e.store.Settle(out.Black, out.White, 0, true); err != nil {
			return Settlement{}, fmt.Errorf("settling draw: %w", err)
		}
		metrics.GamesFinishedTotal.WithLabelValues(postgres.ResultDraw).Inc()
		e.refresh(out.Black)
		e.refresh(out.White)
		return Settlement{}, nil
	}

	winner, loser := out.Black, out.White
	if out.Winner == out.White {
		winner, loser = out.White, out.Black
	}

	w, err := e.store.Get(winner)
	if err != nil {
		return Settlement{}, fmt.Errorf("loading winner: %w", err)
	}
	l, err := e.store.Get(loser)
	if err != nil {
		return Settlement{}, fmt.Errorf("loading loser: %w", err)
	}

	delta := CreditDelta(w.Credits, l.Credits, out.MoveCount)
	winnerApplied, loserApplied, err := e.store.Settle(winner, loser, delta, false)
	if err != nil {
		return Settlement{}, fmt.Errorf("settling game %s: %w", out.GameID, err)
	}

	log.Info().
		Str("game", out.GameID).
		Str("winner", winner).
		Int("delta", winnerApplied).
		Int("moves", out.MoveCount).
		Msg("game settled")
	metrics.GamesFinishedTotal.WithLabelValues(out.Reason).Inc()

	e.refresh(winner)
	e.refresh(loser)

	s := Settlement{BlackDelta: winnerApplied, WhiteDelta: loserApplied}
	if winner == out.White {
		s.BlackDelta, s.WhiteDelta = loserApplied, winnerApplied
	}
	return s, nil
}

// refresh re-reads one account and rewrites its leaderboard row.
func (e *Engine) refresh(username string) {
	u, err := e.store.Get(username)
	if err != nil {
		logger.Get().Warn().Err(err).Str("user", username).Msg("leaderboard refresh: load failed")
		return
	}
	if u.Deleted {
		_ = e.lb.Remove(username)
		return
	}
	if err := e.lb.Update(username, u.Credits, u.Wins); err != nil {
		logger.Get().Warn().Err(err).Str("user", username).Msg("leaderboard refresh: update failed")
	}
}

// Resync rebuilds the leaderboard materialization from the account store.
func (e *Engine) Resync(limit int) error {
	users, err := e.store.Top(limit)
	if err != nil {
		return fmt.Errorf("rebuilding leaderboard: %w", err)
	}
	for _, u := range users {
		if err := e.lb.Update(u.Username, u.Credits, u.Wins); err != nil {
			return fmt.Errorf("rebuilding leaderboard row %s: %w", u.Username, err)
		}
	}
	return nil
}
