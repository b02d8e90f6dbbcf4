package server

import (
	"bufio"
	"encoding/json"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"Renju/config"
	"Renju/models/postgres"
	"Renju/protocol"
	"Renju/services/accounts"
	"Renju/services/game"
	"Renju/services/history"
	"Renju/services/invites"
	"Renju/services/matchmaking"
	"Renju/services/ranking"
	"Renju/services/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a plaintext in-memory accounts.Store for protocol tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*postgres.User
	pass  map[string]string
}

var _ accounts.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*postgres.User),
		pass:  make(map[string]string),
	}
}

func (f *fakeStore) Create(username, password string) (*postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.users[username]; taken {
		return nil, protocol.NewError(protocol.CodeUsernameTaken, "username is taken")
	}
	u := &postgres.User{Username: username, MemberSince: time.Now()}
	f.users[username] = u
	f.pass[username] = password
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Authenticate(username, password string) (*postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok || u.Deleted {
		return nil, protocol.NewError(protocol.CodeUnknownUser, "user not found")
	}
	if f.pass[username] != password {
		return nil, protocol.NewError(protocol.CodeInvalidCredentials, "wrong credentials")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Get(username string) (*postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, protocol.NewError(protocol.CodeUnknownUser, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Settle(winner, loser string, delta int, draw bool) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, l := f.users[winner], f.users[loser]
	if draw {
		w.Draws++
		l.Draws++
		return 0, 0, nil
	}
	debit := delta
	if debit > l.Credits {
		debit = l.Credits
	}
	w.Credits += delta
	l.Credits -= debit
	w.Wins++
	l.Losses++
	return delta, -debit, nil
}

func (f *fakeStore) SoftDelete(username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok || u.Deleted {
		return protocol.NewError(protocol.CodeUnknownUser, "user not found")
	}
	u.Deleted = true
	return nil
}

func (f *fakeStore) Top(limit int) ([]postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postgres.User
	for _, u := range f.users {
		if !u.Deleted {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Credits > out[j].Credits })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer() *Server {
	cfg := &config.Config{
		JWTSecret: "test-secret",
		Game: config.GameConfig{
			BoardSize:       19,
			TurnTimeoutSecs: 60,
			InviteTTLSecs:   60,
			LeaderboardSize: 100,
		},
	}

	store := newFakeStore()
	lb := ranking.NewMemoryLeaderboard()
	reg := registry.New(nil)
	hist := history.New(nil)
	rank := ranking.NewEngine(store, lb)
	engine := game.NewEngine(game.Config{
		BoardSize:   cfg.Game.BoardSize,
		TurnTimeout: cfg.Game.TurnTimeout(),
	}, reg, hist, rank)
	queue := matchmaking.New(engine)
	inv := invites.New(cfg.Game.InviteTTL(), reg, engine, reg, store)
	inv.BindQueue(queue)

	return New(cfg, store, reg, engine, queue, inv, hist, lb)
}

// wirePush is a push frame as read back off the wire.
type wirePush struct {
	Type protocol.Type   `json:"type"`
	Data json.RawMessage `json:"data"`
}

// client drives the server through dispatch directly while reading pushed
// frames off an in-memory pipe.
type client struct {
	cs     *clientSession
	pushes chan wirePush
}

func newClient(t *testing.T) *client {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	c := &client{
		cs:     &clientSession{conn: newConn(serverSide)},
		pushes: make(chan wirePush, 32),
	}
	go func() {
		scanner := bufio.NewScanner(clientSide)
		scanner.Buffer(make([]byte, 64*1024), maxLine)
		for scanner.Scan() {
			var p wirePush
			if json.Unmarshal(scanner.Bytes(), &p) == nil {
				c.pushes <- p
			}
		}
	}()
	return c
}

func (c *client) request(s *Server, t protocol.Type, data any) protocol.Response {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	return s.dispatch(c.cs, protocol.Envelope{ID: "req-1", Type: t, Data: raw})
}

func (c *client) waitPush(t *testing.T, pt protocol.Type) wirePush {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-c.pushes:
			if p.Type == pt {
				return p
			}
		case <-deadline:
			t.Fatalf("no %s push received", pt)
			return wirePush{}
		}
	}
}

func login(t *testing.T, s *Server, c *client, username string) {
	t.Helper()
	creds := map[string]string{"username": username, "password": "secret"}
	resp := c.request(s, protocol.TypeSignup, creds)
	require.True(t, resp.OK, "signup %s: %+v", username, resp.Error)
	resp = c.request(s, protocol.TypeLogin, creds)
	require.True(t, resp.OK, "login %s: %+v", username, resp.Error)
}

func TestAuthenticationGate(t *testing.T) {
	s := newTestServer()
	c := newClient(t)

	resp := c.request(s, protocol.TypeEnqueue, nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeNotAuthenticated, resp.Error.Code)

	resp = c.request(s, protocol.TypeGetStats, nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeNotAuthenticated, resp.Error.Code)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer()
	c := newClient(t)

	creds := map[string]string{"username": "ana", "password": "secret"}

	resp := c.request(s, protocol.TypeSignup, map[string]string{"username": "a b", "password": "secret"})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeInvalidUsername, resp.Error.Code)

	resp = c.request(s, protocol.TypeSignup, creds)
	require.True(t, resp.OK)
	account := resp.Data.(accountData)
	assert.Equal(t, "ana", account.Username)
	assert.Zero(t, account.Credits)

	resp = c.request(s, protocol.TypeSignup, creds)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeUsernameTaken, resp.Error.Code)

	resp = c.request(s, protocol.TypeLogin, map[string]string{"username": "ana", "password": "wrong"})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeInvalidCredentials, resp.Error.Code)

	resp = c.request(s, protocol.TypeLogin, creds)
	require.True(t, resp.OK)
	account = resp.Data.(accountData)
	assert.NotEmpty(t, account.Token)

	// A second login on the same connection is rejected.
	resp = c.request(s, protocol.TypeLogin, creds)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeAlreadyLoggedIn, resp.Error.Code)

	// So is the same account from another connection.
	c2 := newClient(t)
	resp = c2.request(s, protocol.TypeLogin, creds)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeAlreadyLoggedIn, resp.Error.Code)
}

func TestUnknownTypeIsMalformed(t *testing.T) {
	s := newTestServer()
	c := newClient(t)
	login(t, s, c, "ana")

	resp := c.request(s, protocol.Type("BOGUS"), nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeMalformed, resp.Error.Code)
}

func TestMatchmakingFlow(t *testing.T) {
	s := newTestServer()
	ana, bob := newClient(t), newClient(t)
	login(t, s, ana, "ana")
	login(t, s, bob, "bob")

	resp := ana.request(s, protocol.TypeEnqueue, nil)
	require.True(t, resp.OK)
	resp = ana.request(s, protocol.TypeEnqueue, nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeAlreadyQueued, resp.Error.Code)

	resp = bob.request(s, protocol.TypeEnqueue, nil)
	require.True(t, resp.OK)

	var match struct {
		SessionID string `json:"session_id"`
		Black     string `json:"black"`
		White     string `json:"white"`
	}
	p := ana.waitPush(t, protocol.TypeMatchFound)
	require.NoError(t, json.Unmarshal(p.Data, &match))
	bob.waitPush(t, protocol.TypeMatchFound)

	clients := map[string]*client{"ana": ana, "bob": bob}
	black, white := clients[match.Black], clients[match.White]

	resp = white.request(s, protocol.TypeSubmitMove, map[string]int{"row": 0, "col": 0})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeNotYourTurn, resp.Error.Code)

	resp = black.request(s, protocol.TypeSubmitMove, map[string]int{"row": 9, "col": 9})
	require.True(t, resp.OK)

	var snap struct {
		MoveCount   int    `json:"move_count"`
		CurrentTurn string `json:"current_turn"`
	}
	p = white.waitPush(t, protocol.TypeGameUpdate)
	require.NoError(t, json.Unmarshal(p.Data, &snap))
	assert.Equal(t, 1, snap.MoveCount)
	assert.Equal(t, "white", snap.CurrentTurn)

	resp = white.request(s, protocol.TypeForfeit, nil)
	require.True(t, resp.OK)

	var ended struct {
		Winner string `json:"winner"`
		Reason string `json:"reason"`
	}
	p = black.waitPush(t, protocol.TypeGameEnded)
	require.NoError(t, json.Unmarshal(p.Data, &ended))
	assert.Equal(t, match.Black, ended.Winner)
	assert.Equal(t, "forfeit", ended.Reason)

	resp = black.request(s, protocol.TypeForfeit, nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeSessionNotActive, resp.Error.Code)
}

func TestInviteFlow(t *testing.T) {
	s := newTestServer()
	ana, bob := newClient(t), newClient(t)
	login(t, s, ana, "ana")
	login(t, s, bob, "bob")

	resp := ana.request(s, protocol.TypeSendInvite, map[string]string{"to": "bob"})
	require.True(t, resp.OK)
	inviteID := resp.Data.(map[string]string)["invite_id"]
	require.NotEmpty(t, inviteID)

	var received struct {
		InviteID string `json:"invite_id"`
		From     string `json:"from"`
	}
	p := bob.waitPush(t, protocol.TypeInviteReceived)
	require.NoError(t, json.Unmarshal(p.Data, &received))
	assert.Equal(t, "ana", received.From)

	resp = bob.request(s, protocol.TypeRespondInvite, map[string]any{"invite_id": received.InviteID, "accept": true})
	require.True(t, resp.OK)

	ana.waitPush(t, protocol.TypeMatchFound)
	bob.waitPush(t, protocol.TypeMatchFound)
}

func TestListPlayers(t *testing.T) {
	s := newTestServer()
	ana, bob := newClient(t), newClient(t)
	login(t, s, ana, "ana")
	login(t, s, bob, "bob")

	resp := ana.request(s, protocol.TypeListPlayers, nil)
	require.True(t, resp.OK)
	players := resp.Data.(map[string]any)["players"].([]invites.Candidate)
	require.Len(t, players, 1)
	assert.Equal(t, "bob", players[0].Username)

	// Players with a running game are not open to invites.
	eva, dan := newClient(t), newClient(t)
	login(t, s, eva, "eva")
	login(t, s, dan, "dan")
	require.True(t, eva.request(s, protocol.TypeEnqueue, nil).OK)
	require.True(t, dan.request(s, protocol.TypeEnqueue, nil).OK)
	eva.waitPush(t, protocol.TypeMatchFound)

	resp = ana.request(s, protocol.TypeListPlayers, nil)
	require.True(t, resp.OK)
	players = resp.Data.(map[string]any)["players"].([]invites.Candidate)
	require.Len(t, players, 1)
	assert.Equal(t, "bob", players[0].Username)
}

func TestGetStats(t *testing.T) {
	s := newTestServer()
	c := newClient(t)
	login(t, s, c, "ana")

	resp := c.request(s, protocol.TypeGetStats, nil)
	require.True(t, resp.OK)
	stats := resp.Data.(statsData)
	assert.Equal(t, "ana", stats.Username)
	assert.Zero(t, stats.Credits)
	assert.True(t, stats.Online)
	assert.Equal(t, 1, stats.OnlinePlayers)

	resp = c.request(s, protocol.TypeGetStats, map[string]string{"username": "ghost"})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeUnknownUser, resp.Error.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer()
	c := newClient(t)
	login(t, s, c, "ana")

	resp := c.request(s, protocol.TypeLogout, nil)
	require.True(t, resp.OK)

	resp = c.request(s, protocol.TypeEnqueue, nil)
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeNotAuthenticated, resp.Error.Code)

	// The connection can authenticate again.
	resp = c.request(s, protocol.TypeLogin, map[string]string{"username": "ana", "password": "secret"})
	require.True(t, resp.OK)
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer()
	c := newClient(t)
	login(t, s, c, "ana")

	resp := c.request(s, protocol.TypeDeleteAccount, nil)
	require.True(t, resp.OK)

	// The username stays reserved.
	resp = c.request(s, protocol.TypeSignup, map[string]string{"username": "ana", "password": "secret"})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeUsernameTaken, resp.Error.Code)

	resp = c.request(s, protocol.TypeLogin, map[string]string{"username": "ana", "password": "secret"})
	require.False(t, resp.OK)
	assert.Equal(t, protocol.CodeUnknownUser, resp.Error.Code)
}

func TestSpectatorFlow(t *testing.T) {
	s := newTestServer()
	ana, bob, eva := newClient(t), newClient(t), newClient(t)
	login(t, s, ana, "ana")
	login(t, s, bob, "bob")
	login(t, s, eva, "eva")

	require.True(t, ana.request(s, protocol.TypeEnqueue, nil).OK)
	require.True(t, bob.request(s, protocol.TypeEnqueue, nil).OK)

	var match struct {
		SessionID string `json:"session_id"`
		Black     string `json:"black"`
	}
	p := ana.waitPush(t, protocol.TypeMatchFound)
	require.NoError(t, json.Unmarshal(p.Data, &match))

	resp := eva.request(s, protocol.TypeGetLiveGames, nil)
	require.True(t, resp.OK)
	games := resp.Data.(map[string]any)["games"].([]game.LiveSummary)
	require.Len(t, games, 1)
	assert.Equal(t, match.SessionID, games[0].SessionID)

	resp = eva.request(s, protocol.TypeSubscribeView, map[string]string{"session_id": match.SessionID})
	require.True(t, resp.OK)
	snap := resp.Data.(game.Snapshot)
	assert.Equal(t, match.SessionID, snap.SessionID)

	clients := map[string]*client{"ana": ana, "bob": bob}
	require.True(t, clients[match.Black].request(s, protocol.TypeSubmitMove, map[string]int{"row": 3, "col": 3}).OK)
	eva.waitPush(t, protocol.TypeGameUpdate)

	resp = eva.request(s, protocol.TypeUnsubscribeView, map[string]string{"session_id": match.SessionID})
	require.True(t, resp.OK)
}
