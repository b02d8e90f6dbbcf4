package server

import (
	"Renju/protocol"
)

// dispatch routes one request to its handler and builds the single direct
// response. Only SIGNUP and LOGIN are allowed before authentication.
func (s *Server) dispatch(cs *clientSession, env protocol.Envelope) protocol.Response {
	if cs.username == "" {
		switch env.Type {
		case protocol.TypeSignup, protocol.TypeLogin:
		default:
			return protocol.ErrResponse(env.ID, env.Type,
				protocol.NewError(protocol.CodeNotAuthenticated, "login required"))
		}
	}

	var (
		data any
		err  error
	)
	switch env.Type {
	case protocol.TypeSignup:
		data, err = s.handleSignup(env.Data)
	case protocol.TypeLogin:
		data, err = s.handleLogin(cs, env.Data)
	case protocol.TypeLogout:
		data, err = s.handleLogout(cs)
	case protocol.TypeEnqueue:
		data, err = s.handleEnqueue(cs)
	case protocol.TypeCancelQueue:
		data, err = s.handleCancelQueue(cs)
	case protocol.TypeSubmitMove:
		data, err = s.handleSubmitMove(cs, env.Data)
	case protocol.TypeForfeit:
		data, err = s.handleForfeit(cs)
	case protocol.TypeSendInvite:
		data, err = s.handleSendInvite(cs, env.Data)
	case protocol.TypeRespondInvite:
		data, err = s.handleRespondInvite(cs, env.Data)
	case protocol.TypeListPlayers:
		data, err = s.handleListPlayers(cs, env.Data)
	case protocol.TypeSubscribeView:
		data, err = s.handleSubscribeView(cs, env.Data)
	case protocol.TypeUnsubscribeView:
		data, err = s.handleUnsubscribeView(cs, env.Data)
	case protocol.TypeGetHistory:
		data, err = s.handleGetHistory(cs, env.Data)
	case protocol.TypeGetReplay:
		data, err = s.handleGetReplay(env.Data)
	case protocol.TypeGetLeaderboard:
		data, err = s.handleGetLeaderboard(env.Data)
	case protocol.TypeGetStats:
		data, err = s.handleGetStats(cs, env.Data)
	case protocol.TypeGetLiveGames:
		data, err = s.handleGetLiveGames()
	case protocol.TypeDeleteAccount:
		data, err = s.handleDeleteAccount(cs)
	default:
		err = protocol.NewError(protocol.CodeMalformed, "unknown request type")
	}

	if err != nil {
		return protocol.ErrResponse(env.ID, env.Type, err)
	}
	return protocol.OKResponse(env.ID, env.Type, data)
}
