package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"Renju/models/postgres"
	redis_models "Renju/models/redis"
	"Renju/protocol"
	"Renju/services/history"
	"Renju/services/ranking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu      sync.Mutex
	pushes  map[string][]protocol.Push
	offline map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		pushes:  make(map[string][]protocol.Push),
		offline: make(map[string]bool),
	}
}

func (f *fakeNotifier) Push(username string, p protocol.Push) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[username] {
		return errors.New("offline")
	}
	f.pushes[username] = append(f.pushes[username], p)
	return nil
}

func (f *fakeNotifier) SetStatus(string, redis_models.PlayerStatus) {}

func (f *fakeNotifier) setOffline(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[username] = true
}

func (f *fakeNotifier) pushesOf(username string, t protocol.Type) []protocol.Push {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Push
	for _, p := range f.pushes[username] {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

type fakeHistory struct {
	mu       sync.Mutex
	appended map[string][]history.MoveEntry
	archived []*postgres.GameRecord
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{appended: make(map[string][]history.MoveEntry)}
}

func (f *fakeHistory) Append(gameID string, mv history.MoveEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended[gameID] = append(f.appended[gameID], mv)
}

func (f *fakeHistory) Archive(rec *postgres.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, rec)
	return nil
}

func (f *fakeHistory) Discard(string) {}

type fakeSettler struct {
	mu         sync.Mutex
	outcomes   []ranking.Outcome
	settlement ranking.Settlement
}

func (f *fakeSettler) Settle(out ranking.Outcome) (ranking.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, out)
	return f.settlement, nil
}

func (f *fakeSettler) settled() []ranking.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ranking.Outcome(nil), f.outcomes...)
}

func newTestEngine(boardSize int, timeout time.Duration) (*Engine, *fakeNotifier, *fakeHistory, *fakeSettler) {
	n := newFakeNotifier()
	h := newFakeHistory()
	st := &fakeSettler{}
	e := NewEngine(Config{BoardSize: boardSize, TurnTimeout: timeout}, n, h, st)
	return e, n, h, st
}

func TestCreateSession(t *testing.T) {
	e, n, _, _ := newTestEngine(19, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.True(t, e.InGame("ana"))
	assert.True(t, e.InGame("bob"))

	s, ok := e.get(id)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"ana", "bob"}, []string{s.Black, s.White})

	for _, u := range []string{"ana", "bob"} {
		found := n.pushesOf(u, protocol.TypeMatchFound)
		require.Len(t, found, 1, "player %s", u)
		data := found[0].Data.(matchFoundData)
		assert.Equal(t, id, data.SessionID)
		assert.Equal(t, 19, data.BoardSize)
	}
}

func TestCreateSessionRejectsBusyPlayer(t *testing.T) {
	e, _, _, _ := newTestEngine(19, time.Minute)

	_, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)

	_, err = e.CreateSession("ana", "eva")
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeAlreadyInGame))
}

func TestCreateSessionForfeitsUnreachablePlayer(t *testing.T) {
	e, n, _, st := newTestEngine(19, time.Minute)
	n.setOffline("bob")

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)

	// The session ended immediately as a disconnect forfeit.
	assert.False(t, e.InGame("ana"))
	assert.False(t, e.InGame("bob"))
	err = e.SubmitMove(id, "ana", Position{Row: 0, Col: 0})
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))

	outcomes := st.settled()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "ana", outcomes[0].Winner)
	assert.Equal(t, postgres.ResultForfeit, outcomes[0].Reason)

	ended := n.pushesOf("ana", protocol.TypeGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, ReasonDisconnect, ended[0].Data.(gameEndedData).Reason)
}

func TestSubmitMoveTurnOrder(t *testing.T) {
	e, _, _, _ := newTestEngine(19, time.Minute)
	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	// White cannot open.
	err = e.SubmitMove(id, s.White, Position{Row: 0, Col: 0})
	assert.True(t, protocol.IsCode(err, protocol.CodeNotYourTurn))

	require.NoError(t, e.SubmitMove(id, s.Black, Position{Row: 0, Col: 0}))

	// Black cannot move twice.
	err = e.SubmitMove(id, s.Black, Position{Row: 0, Col: 1})
	assert.True(t, protocol.IsCode(err, protocol.CodeNotYourTurn))

	// Spectators never place stones.
	err = e.SubmitMove(id, "mallory", Position{Row: 0, Col: 1})
	assert.True(t, protocol.IsCode(err, protocol.CodeNotYourTurn))

	// Occupied cell is rejected and the turn is kept.
	err = e.SubmitMove(id, s.White, Position{Row: 0, Col: 0})
	assert.True(t, protocol.IsCode(err, protocol.CodeInvalidPosition))
	require.NoError(t, e.SubmitMove(id, s.White, Position{Row: 9, Col: 9}))
}

func TestFiveInARowEndsSession(t *testing.T) {
	e, n, h, st := newTestEngine(19, time.Minute)
	st.settlement = ranking.Settlement{BlackDelta: 7, WhiteDelta: -7}

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)
	black, white := s.Black, s.White

	for i := 0; i < 4; i++ {
		require.NoError(t, e.SubmitMove(id, black, Position{Row: 0, Col: i}))
		require.NoError(t, e.SubmitMove(id, white, Position{Row: 5, Col: i}))
	}
	require.NoError(t, e.SubmitMove(id, black, Position{Row: 0, Col: 4}))

	assert.False(t, e.InGame(black))
	assert.False(t, e.InGame(white))

	outcomes := st.settled()
	require.Len(t, outcomes, 1)
	assert.Equal(t, black, outcomes[0].Winner)
	assert.Equal(t, postgres.ResultWin, outcomes[0].Reason)
	assert.Equal(t, 9, outcomes[0].MoveCount)
	assert.False(t, outcomes[0].Draw)

	h.mu.Lock()
	require.Len(t, h.archived, 1)
	rec := h.archived[0]
	h.mu.Unlock()
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, black, rec.Winner)
	assert.Equal(t, 7, rec.BlackDelta)
	assert.Equal(t, -7, rec.WhiteDelta)

	ended := n.pushesOf(white, protocol.TypeGameEnded)
	require.Len(t, ended, 1)
	data := ended[0].Data.(gameEndedData)
	assert.Equal(t, black, data.Winner)
	assert.Equal(t, ReasonFiveInARow, data.Reason)
	assert.Equal(t, 7, data.CreditChanges[black])
	assert.Equal(t, -7, data.CreditChanges[white])

	// The slot is released; the session no longer exists.
	err = e.SubmitMove(id, black, Position{Row: 10, Col: 10})
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))
}

func TestDrawOnFullBoard(t *testing.T) {
	e, n, _, st := newTestEngine(3, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			s.mu.Lock()
			mover := s.playerLocked(s.current)
			s.mu.Unlock()
			require.NoError(t, e.SubmitMove(id, mover, Position{Row: r, Col: c}))
		}
	}

	outcomes := st.settled()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Draw)
	assert.Empty(t, outcomes[0].Winner)

	ended := n.pushesOf(s.Black, protocol.TypeGameEnded)
	require.Len(t, ended, 1)
	data := ended[0].Data.(gameEndedData)
	assert.Empty(t, data.Winner)
	assert.Equal(t, ReasonDraw, data.Reason)
}

func TestForfeit(t *testing.T) {
	e, n, _, st := newTestEngine(19, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	require.NoError(t, e.Forfeit(id, s.White))

	outcomes := st.settled()
	require.Len(t, outcomes, 1)
	assert.Equal(t, s.Black, outcomes[0].Winner)
	assert.Equal(t, postgres.ResultForfeit, outcomes[0].Reason)

	ended := n.pushesOf(s.Black, protocol.TypeGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, ReasonForfeit, ended[0].Data.(gameEndedData).Reason)

	err = e.Forfeit(id, s.White)
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))
}

func TestDisconnectForfeits(t *testing.T) {
	e, _, _, st := newTestEngine(19, time.Minute)

	_, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	id, _ := e.SessionOf("ana")
	s, _ := e.get(id)

	e.HandleDisconnect(s.Black)

	outcomes := st.settled()
	require.Len(t, outcomes, 1)
	assert.Equal(t, s.White, outcomes[0].Winner)
	assert.Equal(t, postgres.ResultForfeit, outcomes[0].Reason)
	assert.False(t, e.InGame("ana"))
	assert.False(t, e.InGame("bob"))

	// Disconnects of idle users are no-ops.
	e.HandleDisconnect("ana")
}

func TestTurnTimeoutForcesMove(t *testing.T) {
	e, n, _, _ := newTestEngine(19, 40*time.Millisecond)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.moves) >= 1
	}, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	first := s.moves[0]
	status := s.status
	s.mu.Unlock()
	assert.True(t, first.Forced)
	assert.Equal(t, Black, first.Color)
	assert.Equal(t, StatusInProgress, status)

	// The timer re-arms for the next player.
	require.Eventually(t, func() bool {
		return len(n.pushesOf(s.White, protocol.TypeTurnTimeoutMove)) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestStaleTimerIsNoop(t *testing.T) {
	e, _, _, _ := newTestEngine(19, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	require.NoError(t, e.SubmitMove(id, s.Black, Position{Row: 0, Col: 0}))

	// A timer armed for the already-completed turn must not fire a move.
	e.forceMove(id, 0)
	s.mu.Lock()
	count := len(s.moves)
	current := s.current
	s.mu.Unlock()
	assert.Equal(t, 1, count)
	assert.Equal(t, White, current)

	// The current turn's deadline does force a move.
	e.forceMove(id, 1)
	s.mu.Lock()
	count = len(s.moves)
	forced := s.moves[1].Forced
	current = s.current
	s.mu.Unlock()
	assert.Equal(t, 2, count)
	assert.True(t, forced)
	assert.Equal(t, Black, current)
}

func TestSpectators(t *testing.T) {
	e, n, _, _ := newTestEngine(19, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	snap, err := e.Subscribe(id, "eva")
	require.NoError(t, err)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, 0, snap.MoveCount)
	assert.Equal(t, StatusInProgress, snap.Status)

	require.NoError(t, e.SubmitMove(id, s.Black, Position{Row: 0, Col: 0}))
	require.Len(t, n.pushesOf("eva", protocol.TypeGameUpdate), 1)

	// A dead spectator is dropped on the next broadcast and never blocks
	// the game.
	n.setOffline("eva")
	require.NoError(t, e.SubmitMove(id, s.White, Position{Row: 1, Col: 1}))
	s.mu.Lock()
	remaining := len(s.spectators)
	s.mu.Unlock()
	assert.Zero(t, remaining)

	_, err = e.Subscribe("no-such-session", "eva")
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))
}

func TestUnsubscribe(t *testing.T) {
	e, n, _, _ := newTestEngine(19, time.Minute)

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)

	_, err = e.Subscribe(id, "eva")
	require.NoError(t, err)
	e.Unsubscribe(id, "eva")

	require.NoError(t, e.SubmitMove(id, s.Black, Position{Row: 0, Col: 0}))
	assert.Empty(t, n.pushesOf("eva", protocol.TypeGameUpdate))
}

func TestLiveGames(t *testing.T) {
	e, _, _, _ := newTestEngine(19, time.Minute)

	assert.Empty(t, e.LiveGames())

	id, err := e.CreateSession("ana", "bob")
	require.NoError(t, err)
	s, _ := e.get(id)
	require.NoError(t, e.SubmitMove(id, s.Black, Position{Row: 0, Col: 0}))

	games := e.LiveGames()
	require.Len(t, games, 1)
	assert.Equal(t, id, games[0].SessionID)
	assert.Equal(t, 1, games[0].BlackStones)
	assert.Equal(t, 0, games[0].WhiteStones)
	assert.Equal(t, White, games[0].CurrentTurn)
}
