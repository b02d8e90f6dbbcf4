// Package protocol defines the line-framed JSON wire protocol spoken over
// the persistent TCP connection, plus the typed error vocabulary shared by
// every service.
//
// Each request line is an Envelope carrying a client-chosen correlation id.
// Every request yields exactly one Response with the same id; server pushes
// are Push frames with no id.
package protocol

import "encoding/json"

// Type tags the closed set of protocol messages. The server dispatches on
// this with an exhaustive switch; unknown tags are rejected as MALFORMED.
type Type string

// Client requests.
const (
	TypeSignup          Type = "SIGNUP"
	TypeLogin           Type = "LOGIN"
	TypeLogout          Type = "LOGOUT"
	TypeEnqueue         Type = "ENQUEUE"
	TypeCancelQueue     Type = "CANCEL_QUEUE"
	TypeSubmitMove      Type = "SUBMIT_MOVE"
	TypeForfeit         Type = "FORFEIT"
	TypeSendInvite      Type = "SEND_INVITE"
	TypeRespondInvite   Type = "RESPOND_INVITE"
	TypeListPlayers     Type = "LIST_PLAYERS"
	TypeSubscribeView   Type = "SUBSCRIBE_VIEW"
	TypeUnsubscribeView Type = "UNSUBSCRIBE_VIEW"
	TypeGetHistory      Type = "GET_HISTORY"
	TypeGetReplay       Type = "GET_REPLAY"
	TypeGetLeaderboard  Type = "GET_LEADERBOARD"
	TypeGetStats        Type = "GET_STATS"
	TypeGetLiveGames    Type = "GET_LIVE_GAMES"
	TypeDeleteAccount   Type = "DELETE_ACCOUNT"
)

// Server pushes.
const (
	TypeMatchFound      Type = "MATCH_FOUND"
	TypeGameUpdate      Type = "GAME_UPDATE"
	TypeTurnTimeoutMove Type = "TURN_TIMEOUT_MOVE"
	TypeGameEnded       Type = "GAME_ENDED"
	TypeInviteReceived  Type = "INVITE_RECEIVED"
	TypeInviteExpired   Type = "INVITE_EXPIRED"
	TypeInviteDeclined  Type = "INVITE_DECLINED"
)

// Envelope is one request line from a client.
type Envelope struct {
	ID   string          `json:"id"`
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the single direct answer to a request.
type Response struct {
	ID    string `json:"id"`
	Type  Type   `json:"type"`
	OK    bool   `json:"ok"`
	Error *Error `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Push is a server-initiated frame.
type Push struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// OKResponse builds a successful response for a request.
func OKResponse(id string, t Type, data any) Response {
	return Response{ID: id, Type: t, OK: true, Data: data}
}

// ErrResponse builds a failure response for a request.
func ErrResponse(id string, t Type, err error) Response {
	return Response{ID: id, Type: t, OK: false, Error: AsError(err)}
}
