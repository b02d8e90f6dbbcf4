package server

import (
	"encoding/json"
	"time"

	"Renju/middleware"
	"Renju/pkg/logger"
	"Renju/protocol"
	"Renju/services/game"
	"Renju/services/invites"
	"Renju/utils"
)

const tokenTTL = 24 * time.Hour

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return protocol.NewError(protocol.CodeMalformed, "missing request data")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return protocol.NewError(protocol.CodeMalformed, "invalid request data")
	}
	return nil
}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountData struct {
	Username    string    `json:"username"`
	Credits     int       `json:"credits"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	MemberSince time.Time `json:"member_since"`
	Token       string    `json:"token,omitempty"`
}

func (s *Server) handleSignup(raw json.RawMessage) (any, error) {
	var req credentialsReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := utils.ValidateCredentials(req.Username, req.Password); err != nil {
		return nil, err
	}

	u, err := s.store.Create(req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	logger.Get().Info().Str("user", u.Username).Msg("account created")
	return accountData{
		Username:    u.Username,
		Credits:     u.Credits,
		MemberSince: u.MemberSince,
	}, nil
}

func (s *Server) handleLogin(cs *clientSession, raw json.RawMessage) (any, error) {
	if cs.username != "" {
		return nil, protocol.NewError(protocol.CodeAlreadyLoggedIn, "connection is already authenticated")
	}

	var req credentialsReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	u, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Bind(u.Username, cs.conn); err != nil {
		return nil, err
	}
	cs.username = u.Username

	token, err := middleware.GenerateToken(u.Username, s.cfg.JWTSecret, tokenTTL)
	if err != nil {
		logger.Get().Error().Err(err).Str("user", u.Username).Msg("token generation failed")
	}

	logger.Get().Info().Str("user", u.Username).Msg("login")
	return accountData{
		Username:    u.Username,
		Credits:     u.Credits,
		Wins:        u.Wins,
		Losses:      u.Losses,
		Draws:       u.Draws,
		MemberSince: u.MemberSince,
		Token:       token,
	}, nil
}

// handleLogout releases everything the user holds but keeps the connection
// open for a new login.
func (s *Server) handleLogout(cs *clientSession) (any, error) {
	s.teardown(cs)
	return nil, nil
}

func (s *Server) handleEnqueue(cs *clientSession) (any, error) {
	if err := s.queue.Enqueue(cs.username); err != nil {
		return nil, err
	}
	return map[string]any{"queued": true}, nil
}

func (s *Server) handleCancelQueue(cs *clientSession) (any, error) {
	if err := s.queue.Cancel(cs.username); err != nil {
		return nil, err
	}
	return map[string]any{"queued": false}, nil
}

type moveReq struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s *Server) handleSubmitMove(cs *clientSession, raw json.RawMessage) (any, error) {
	var req moveReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	id, ok := s.engine.SessionOf(cs.username)
	if !ok {
		return nil, protocol.NewError(protocol.CodeSessionNotActive, "no active session")
	}
	if err := s.engine.SubmitMove(id, cs.username, game.Position{Row: req.Row, Col: req.Col}); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleForfeit(cs *clientSession) (any, error) {
	id, ok := s.engine.SessionOf(cs.username)
	if !ok {
		return nil, protocol.NewError(protocol.CodeSessionNotActive, "no active session")
	}
	if err := s.engine.Forfeit(id, cs.username); err != nil {
		return nil, err
	}
	return nil, nil
}

type sendInviteReq struct {
	To string `json:"to"`
}

func (s *Server) handleSendInvite(cs *clientSession, raw json.RawMessage) (any, error) {
	var req sendInviteReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	id, err := s.invites.Send(cs.username, req.To)
	if err != nil {
		return nil, err
	}
	return map[string]string{"invite_id": id}, nil
}

type respondInviteReq struct {
	InviteID string `json:"invite_id"`
	Accept   bool   `json:"accept"`
}

func (s *Server) handleRespondInvite(cs *clientSession, raw json.RawMessage) (any, error) {
	var req respondInviteReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := s.invites.Respond(cs.username, req.InviteID, req.Accept); err != nil {
		return nil, err
	}
	return nil, nil
}

type listPlayersReq struct {
	NamePart   string `json:"name_part,omitempty"`
	MinCredits *int   `json:"min_credits,omitempty"`
	MaxCredits *int   `json:"max_credits,omitempty"`
}

func (s *Server) handleListPlayers(cs *clientSession, raw json.RawMessage) (any, error) {
	var req listPlayersReq
	if len(raw) > 0 {
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
	}

	players, err := s.invites.Candidates(cs.username, invites.Filter{
		NamePart:   req.NamePart,
		MinCredits: req.MinCredits,
		MaxCredits: req.MaxCredits,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"players": players}, nil
}

type sessionReq struct {
	SessionID string `json:"session_id"`
}

// finalSnapshot is the one-shot view of a finished, archived game. The
// viewer is not subscribed and receives no further updates.
type finalSnapshot struct {
	SessionID string    `json:"session_id"`
	Black     string    `json:"black"`
	White     string    `json:"white"`
	Winner    string    `json:"winner,omitempty"`
	Result    string    `json:"result"`
	MoveCount int       `json:"move_count"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (s *Server) handleSubscribeView(cs *clientSession, raw json.RawMessage) (any, error) {
	var req sessionReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	snap, err := s.engine.Subscribe(req.SessionID, cs.username)
	if err == nil {
		return snap, nil
	}
	if !protocol.IsCode(err, protocol.CodeSessionNotFound) {
		return nil, err
	}

	// The session may already be archived; serve its final state once.
	rec, recErr := s.history.Record(req.SessionID)
	if recErr != nil {
		return nil, err
	}
	var moves []json.RawMessage
	_ = json.Unmarshal(rec.Moves, &moves)
	return finalSnapshot{
		SessionID: rec.ID,
		Black:     s.displayName(rec.BlackPlayer),
		White:     s.displayName(rec.WhitePlayer),
		Winner:    rec.Winner,
		Result:    rec.Result,
		MoveCount: len(moves),
		Status:    "finished",
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}, nil
}

func (s *Server) handleUnsubscribeView(cs *clientSession, raw json.RawMessage) (any, error) {
	var req sessionReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	s.engine.Unsubscribe(req.SessionID, cs.username)
	return nil, nil
}

type historyReq struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleGetHistory(cs *clientSession, raw json.RawMessage) (any, error) {
	var req historyReq
	if len(raw) > 0 {
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	items, err := s.history.HistoryFor(cs.username, req.Limit, s.displayName)
	if err != nil {
		return nil, err
	}
	return map[string]any{"history": items}, nil
}

type replayReq struct {
	GameID string `json:"game_id"`
}

func (s *Server) handleGetReplay(raw json.RawMessage) (any, error) {
	var req replayReq
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	moves, err := s.history.Replay(req.GameID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"game_id": req.GameID, "moves": moves}, nil
}

type leaderboardReq struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleGetLeaderboard(raw json.RawMessage) (any, error) {
	var req leaderboardReq
	if len(raw) > 0 {
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 25
	}

	entries, err := s.lb.Top(req.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"leaderboard": entries}, nil
}

type statsReq struct {
	Username string `json:"username,omitempty"`
}

type statsData struct {
	Username      string    `json:"username"`
	Credits       int       `json:"credits"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	GamesPlayed   int       `json:"games_played"`
	MemberSince   time.Time `json:"member_since"`
	Online        bool      `json:"online"`
	OnlinePlayers int       `json:"online_players"`
}

func (s *Server) handleGetStats(cs *clientSession, raw json.RawMessage) (any, error) {
	var req statsReq
	if len(raw) > 0 {
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
	}
	if req.Username == "" {
		req.Username = cs.username
	}

	u, err := s.store.Get(req.Username)
	if err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, protocol.NewError(protocol.CodeUnknownUser, "user not found")
	}
	return statsData{
		Username:      u.Username,
		Credits:       u.Credits,
		Wins:          u.Wins,
		Losses:        u.Losses,
		Draws:         u.Draws,
		GamesPlayed:   u.Wins + u.Losses + u.Draws,
		MemberSince:   u.MemberSince,
		Online:        s.registry.IsOnline(u.Username),
		OnlinePlayers: s.registry.Count(),
	}, nil
}

func (s *Server) handleGetLiveGames() (any, error) {
	games := s.engine.LiveGames()
	return map[string]any{"count": len(games), "games": games}, nil
}

// handleDeleteAccount forfeits any live game, flags the account deleted and
// drops the user from the leaderboard. The username stays reserved and the
// game archive keeps its rows.
func (s *Server) handleDeleteAccount(cs *clientSession) (any, error) {
	username := cs.username
	s.teardown(cs)

	if err := s.store.SoftDelete(username); err != nil {
		return nil, err
	}
	if err := s.lb.Remove(username); err != nil {
		logger.Get().Warn().Err(err).Str("user", username).Msg("leaderboard removal failed")
	}
	logger.Get().Info().Str("user", username).Msg("account deleted")
	return map[string]any{"deleted": true}, nil
}

// displayName resolves a username for history rendering; deleted accounts
// show their sentinel name.
func (s *Server) displayName(username string) string {
	u, err := s.store.Get(username)
	if err != nil {
		return username
	}
	return u.DisplayName()
}
