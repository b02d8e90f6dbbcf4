package game

import (
	"math/rand"
	"sync"
	"time"

	"Renju/metrics"
	"Renju/models/postgres"
	redis_models "Renju/models/redis"
	"Renju/pkg/logger"
	"Renju/protocol"
	"Renju/services/history"
	"Renju/services/ranking"

	"github.com/google/uuid"
)

// Notifier delivers pushes to connected players and mirrors their presence
// status. The connection registry implements it.
type Notifier interface {
	Push(username string, p protocol.Push) error
	SetStatus(username string, status redis_models.PlayerStatus)
}

// HistoryStore receives every accepted move and the final record of each
// finished session.
type HistoryStore interface {
	Append(gameID string, mv history.MoveEntry)
	Archive(rec *postgres.GameRecord) error
	Discard(gameID string)
}

// Settler applies a finished session to the credit ledgers, exactly once.
type Settler interface {
	Settle(out ranking.Outcome) (ranking.Settlement, error)
}

// Config are the engine's gameplay knobs.
type Config struct {
	BoardSize   int
	TurnTimeout time.Duration
}

// Engine owns every active session. The sessions table is guarded by mu;
// each session additionally has its own lock, and the engine never holds
// both at once.
type Engine struct {
	cfg      Config
	notifier Notifier
	history  HistoryStore
	settler  Settler

	mu       sync.Mutex
	sessions map[string]*Session
	byPlayer map[string]string // username -> session id

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(cfg Config, notifier Notifier, hist HistoryStore, settler Settler) *Engine {
	return &Engine{
		cfg:      cfg,
		notifier: notifier,
		history:  hist,
		settler:  settler,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateSession starts a new game between two players with randomly
// assigned stone colors. It is the single construction path shared by
// matchmaking and invite acceptance, and it re-checks the "at most one
// session per user" invariant under the table lock.
func (e *Engine) CreateSession(p1, p2 string) (string, error) {
	black, white := p1, p2
	e.rngMu.Lock()
	if e.rng.Intn(2) == 0 {
		black, white = p2, p1
	}
	e.rngMu.Unlock()

	s := &Session{
		ID:         uuid.NewString(),
		Black:      black,
		White:      white,
		board:      NewBoard(e.cfg.BoardSize),
		current:    Black,
		status:     StatusInProgress,
		spectators: make(map[string]struct{}),
		startedAt:  time.Now(),
	}

	e.mu.Lock()
	for _, p := range [2]string{p1, p2} {
		if _, busy := e.byPlayer[p]; busy {
			e.mu.Unlock()
			return "", protocol.NewError(protocol.CodeAlreadyInGame, p+" is already in a game")
		}
	}
	e.sessions[s.ID] = s
	e.byPlayer[p1] = s.ID
	e.byPlayer[p2] = s.ID
	e.mu.Unlock()

	metrics.SessionsActive.Inc()
	logger.Get().Info().
		Str("session", s.ID).
		Str("black", black).
		Str("white", white).
		Msg("session created")

	s.mu.Lock()
	e.scheduleTurnLocked(s)
	data := matchFoundData{
		SessionID:   s.ID,
		Black:       black,
		White:       white,
		BoardSize:   e.cfg.BoardSize,
		TurnTimeout: int(e.cfg.TurnTimeout.Seconds()),
		Deadline:    s.deadline,
	}
	s.mu.Unlock()

	var unreachable string
	for _, p := range [2]string{black, white} {
		if err := e.notifier.Push(p, protocol.Push{Type: protocol.TypeMatchFound, Data: data}); err != nil {
			if unreachable == "" {
				unreachable = p
			}
			continue
		}
		e.notifier.SetStatus(p, redis_models.StatusPlaying)
	}
	if unreachable != "" {
		// The player dropped between pairing and notification. Without this
		// the game would run to the end on forced moves alone.
		logger.Get().Warn().
			Str("session", s.ID).
			Str("player", unreachable).
			Msg("match notification failed, ending session")
		_ = e.endByForfeit(s.ID, unreachable, ReasonDisconnect)
	}
	return s.ID, nil
}

type matchFoundData struct {
	SessionID   string    `json:"session_id"`
	Black       string    `json:"black"`
	White       string    `json:"white"`
	BoardSize   int       `json:"board_size"`
	TurnTimeout int       `json:"turn_timeout"`
	Deadline    time.Time `json:"deadline"`
}

// SubmitMove validates and applies a move by username. The session lock
// serializes it against the turn timer: whichever applies first wins the
// turn and disables the other.
func (e *Engine) SubmitMove(sessionID, username string, pos Position) error {
	s, ok := e.get(sessionID)
	if !ok {
		return protocol.NewError(protocol.CodeSessionNotFound, "session not found")
	}

	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return protocol.NewError(protocol.CodeSessionNotActive, "session is not active")
	}
	color, isPlayer := s.PlayerColor(username)
	if !isPlayer || color != s.current {
		s.mu.Unlock()
		return protocol.NewError(protocol.CodeNotYourTurn, "it is not your turn")
	}
	if err := s.board.Place(pos, color); err != nil {
		s.mu.Unlock()
		return err
	}
	e.applyMoveLocked(s, color, pos, false)
	finished := s.status == StatusFinished
	s.mu.Unlock()

	if finished {
		e.release(s)
	}
	return nil
}

// Forfeit immediately ends the session with the other player as winner.
func (e *Engine) Forfeit(sessionID, username string) error {
	return e.endByForfeit(sessionID, username, ReasonForfeit)
}

// HandleDisconnect treats a dropped connection during a live game as an
// immediate forfeit. Users not in a game are ignored.
func (e *Engine) HandleDisconnect(username string) {
	if id, ok := e.SessionOf(username); ok {
		_ = e.endByForfeit(id, username, ReasonDisconnect)
	}
}

func (e *Engine) endByForfeit(sessionID, quitter, reason string) error {
	s, ok := e.get(sessionID)
	if !ok {
		return protocol.NewError(protocol.CodeSessionNotFound, "session not found")
	}

	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return protocol.NewError(protocol.CodeSessionNotActive, "session is not active")
	}
	color, isPlayer := s.PlayerColor(quitter)
	if !isPlayer {
		s.mu.Unlock()
		return protocol.NewError(protocol.CodeNotYourTurn, "you are not a player in this session")
	}
	e.finishLocked(s, Result{
		Winner: s.playerLocked(color.Opponent()),
		Reason: reason,
	})
	e.broadcastLocked(s, protocol.TypeGameUpdate, s.snapshotLocked())
	e.settleAndArchiveLocked(s)
	s.mu.Unlock()

	e.release(s)
	return nil
}

// Subscribe adds a viewer to the session's spectator set and returns the
// current snapshot. Archived sessions are not live and report
// SESSION_NOT_FOUND; their final state is available through the replay
// store.
func (e *Engine) Subscribe(sessionID, viewer string) (Snapshot, error) {
	s, ok := e.get(sessionID)
	if !ok {
		return Snapshot{}, protocol.NewError(protocol.CodeSessionNotFound, "session not found")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, isPlayer := s.PlayerColor(viewer); !isPlayer {
		s.spectators[viewer] = struct{}{}
	}
	return s.snapshotLocked(), nil
}

// Unsubscribe removes a viewer from the session's spectator set.
func (e *Engine) Unsubscribe(sessionID, viewer string) {
	if s, ok := e.get(sessionID); ok {
		s.mu.Lock()
		delete(s.spectators, viewer)
		s.mu.Unlock()
	}
}

// InGame reports whether username is a player of an active session.
func (e *Engine) InGame(username string) bool {
	_, ok := e.SessionOf(username)
	return ok
}

// SessionOf returns the active session id of a player.
func (e *Engine) SessionOf(username string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byPlayer[username]
	return id, ok
}

// LiveGames lists summaries of all in-progress sessions.
func (e *Engine) LiveGames() []LiveSummary {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	out := make([]LiveSummary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		if s.status == StatusInProgress {
			out = append(out, s.summaryLocked())
		}
		s.mu.Unlock()
	}
	return out
}

func (e *Engine) get(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// scheduleTurnLocked arms the deadline for the current turn. The callback
// captures the move count, so a timer that fires after the turn was
// completed recognizes it and does nothing. Caller holds s.mu.
func (e *Engine) scheduleTurnLocked(s *Session) {
	s.deadline = time.Now().Add(e.cfg.TurnTimeout)
	seq := len(s.moves)
	s.timer = time.AfterFunc(e.cfg.TurnTimeout, func() {
		e.forceMove(s.ID, seq)
	})
}

// forceMove places a uniformly random stone for the current player when the
// turn deadline expires. "Turn already advanced" is authoritative: if the
// session moved on (or finished) before the lock was acquired, this is a
// no-op.
func (e *Engine) forceMove(sessionID string, seq int) {
	s, ok := e.get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.status != StatusInProgress || len(s.moves) != seq {
		s.mu.Unlock()
		return
	}

	e.rngMu.Lock()
	pos, found := s.board.RandomEmpty(e.rng)
	e.rngMu.Unlock()
	if !found {
		s.mu.Unlock()
		return
	}

	color := s.current
	if err := s.board.Place(pos, color); err != nil {
		s.mu.Unlock()
		return
	}
	logger.Get().Debug().
		Str("session", s.ID).
		Str("player", s.playerLocked(color)).
		Int("row", pos.Row).Int("col", pos.Col).
		Msg("turn timed out, forced move")
	e.applyMoveLocked(s, color, pos, true)
	finished := s.status == StatusFinished
	s.mu.Unlock()

	if finished {
		e.release(s)
	}
}

// applyMoveLocked records an already-placed stone, advances or finishes the
// game, and broadcasts the state change. Caller holds s.mu and has placed
// the stone on the board.
func (e *Engine) applyMoveLocked(s *Session, color Color, pos Position, forced bool) {
	mv := Move{
		Seq:    len(s.moves),
		Pos:    pos,
		Color:  color,
		Forced: forced,
		At:     time.Now(),
	}
	s.moves = append(s.moves, mv)
	e.history.Append(s.ID, history.MoveEntry{
		Seq:   mv.Seq,
		Row:   pos.Row,
		Col:   pos.Col,
		Color: string(color),
		At:    mv.At,
	})

	origin := "player"
	if forced {
		origin = "timeout"
	}
	metrics.MovesTotal.WithLabelValues(origin).Inc()

	if s.timer != nil {
		s.timer.Stop()
	}

	switch {
	case s.board.WinningMove(pos):
		e.finishLocked(s, Result{
			Winner: s.playerLocked(color),
			Reason: ReasonFiveInARow,
		})
	case s.board.Full():
		e.finishLocked(s, Result{Reason: ReasonDraw})
	default:
		s.current = color.Opponent()
		e.scheduleTurnLocked(s)
	}

	frame := protocol.TypeGameUpdate
	if forced {
		frame = protocol.TypeTurnTimeoutMove
	}
	e.broadcastLocked(s, frame, s.snapshotLocked())

	if s.status == StatusFinished {
		e.settleAndArchiveLocked(s)
	}
}

// finishLocked transitions the session to Finished and disarms the timer.
// Caller holds s.mu.
func (e *Engine) finishLocked(s *Session, result Result) {
	s.status = StatusFinished
	s.result = result
	s.endedAt = time.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
}

type gameEndedData struct {
	SessionID     string         `json:"session_id"`
	Winner        string         `json:"winner,omitempty"`
	Reason        string         `json:"reason"`
	CreditChanges map[string]int `json:"credit_changes"`
}

// settleAndArchiveLocked hands the finished session to the credit engine
// (exactly once, guaranteed by the Finished transition under s.mu), writes
// the archive record and broadcasts GAME_ENDED. Caller holds s.mu.
func (e *Engine) settleAndArchiveLocked(s *Session) {
	log := logger.Get()

	out := ranking.Outcome{
		GameID:    s.ID,
		Black:     s.Black,
		White:     s.White,
		Winner:    s.result.Winner,
		Draw:      s.result.Reason == ReasonDraw,
		Reason:    archiveResult(s.result.Reason),
		MoveCount: len(s.moves),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
	settlement, err := e.settler.Settle(out)
	if err != nil {
		// The session still archives; balances stay as they were.
		log.Error().Err(err).Str("session", s.ID).Msg("settlement failed")
		settlement = ranking.Settlement{}
	}

	rec := &postgres.GameRecord{
		ID:          s.ID,
		BlackPlayer: s.Black,
		WhitePlayer: s.White,
		Winner:      s.result.Winner,
		Result:      archiveResult(s.result.Reason),
		BlackDelta:  settlement.BlackDelta,
		WhiteDelta:  settlement.WhiteDelta,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
	}
	if err := e.history.Archive(rec); err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("archiving failed")
	}

	e.broadcastLocked(s, protocol.TypeGameEnded, gameEndedData{
		SessionID: s.ID,
		Winner:    s.result.Winner,
		Reason:    s.result.Reason,
		CreditChanges: map[string]int{
			s.Black: settlement.BlackDelta,
			s.White: settlement.WhiteDelta,
		},
	})

	metrics.SessionsActive.Dec()
	e.notifier.SetStatus(s.Black, redis_models.StatusOnline)
	e.notifier.SetStatus(s.White, redis_models.StatusOnline)
}

func archiveResult(reason string) string {
	switch reason {
	case ReasonDraw:
		return postgres.ResultDraw
	case ReasonForfeit, ReasonDisconnect:
		return postgres.ResultForfeit
	default:
		return postgres.ResultWin
	}
}

// broadcastLocked pushes a frame to both players and every spectator.
// Spectator delivery is best-effort: a dead spectator is dropped from the
// set and never blocks game progress. Caller holds s.mu.
func (e *Engine) broadcastLocked(s *Session, t protocol.Type, data any) {
	p := protocol.Push{Type: t, Data: data}
	_ = e.notifier.Push(s.Black, p)
	_ = e.notifier.Push(s.White, p)
	for viewer := range s.spectators {
		if err := e.notifier.Push(viewer, p); err != nil {
			delete(s.spectators, viewer)
		}
	}
}

// release frees the session slot after completion.
func (e *Engine) release(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, s.ID)
	if e.byPlayer[s.Black] == s.ID {
		delete(e.byPlayer, s.Black)
	}
	if e.byPlayer[s.White] == s.ID {
		delete(e.byPlayer, s.White)
	}
}
