package matchmaking

import (
	"sync"
	"testing"

	"Renju/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	created  [][2]string
	inGame   map[string]bool
	failNext bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{inGame: make(map[string]bool)}
}

func (f *fakeEngine) CreateSession(p1, p2 string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		// The second player entered a game some other way.
		f.failNext = false
		f.inGame[p2] = true
		return "", protocol.NewError(protocol.CodeAlreadyInGame, p2+" is already in a game")
	}
	f.created = append(f.created, [2]string{p1, p2})
	f.inGame[p1] = true
	f.inGame[p2] = true
	return "session-1", nil
}

func (f *fakeEngine) InGame(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inGame[username]
}

func TestEnqueuePairsFIFO(t *testing.T) {
	engine := newFakeEngine()
	q := New(engine)

	require.NoError(t, q.Enqueue("ana"))
	assert.Equal(t, 1, q.Size())
	assert.Empty(t, engine.created)

	require.NoError(t, q.Enqueue("bob"))
	assert.Equal(t, 0, q.Size())
	require.Len(t, engine.created, 1)
	assert.Equal(t, [2]string{"ana", "bob"}, engine.created[0])

	require.NoError(t, q.Enqueue("eva"))
	require.NoError(t, q.Enqueue("dan"))
	require.Len(t, engine.created, 2)
	assert.Equal(t, [2]string{"eva", "dan"}, engine.created[1])
}

func TestEnqueueRejectsDuplicates(t *testing.T) {
	q := New(newFakeEngine())

	require.NoError(t, q.Enqueue("ana"))
	err := q.Enqueue("ana")
	assert.True(t, protocol.IsCode(err, protocol.CodeAlreadyQueued))
}

func TestEnqueueRejectsActivePlayers(t *testing.T) {
	engine := newFakeEngine()
	engine.inGame["ana"] = true
	q := New(engine)

	err := q.Enqueue("ana")
	assert.True(t, protocol.IsCode(err, protocol.CodeAlreadyInGame))
}

func TestCancel(t *testing.T) {
	q := New(newFakeEngine())

	err := q.Cancel("ana")
	assert.True(t, protocol.IsCode(err, protocol.CodeNotQueued))

	require.NoError(t, q.Enqueue("ana"))
	require.NoError(t, q.Cancel("ana"))
	assert.Equal(t, 0, q.Size())
	assert.False(t, q.Contains("ana"))

	// Canceling frees the slot for a later enqueue.
	require.NoError(t, q.Enqueue("ana"))
}

func TestRemoveIsSilent(t *testing.T) {
	q := New(newFakeEngine())

	q.Remove("ghost")

	require.NoError(t, q.Enqueue("ana"))
	require.NoError(t, q.Enqueue("bob"))
	require.NoError(t, q.Enqueue("eva"))
	q.Remove("eva")
	assert.Equal(t, 0, q.Size())
	assert.False(t, q.Contains("eva"))
}

func TestFailedPairingRequeuesPartner(t *testing.T) {
	engine := newFakeEngine()
	q := New(engine)

	require.NoError(t, q.Enqueue("ana"))
	engine.mu.Lock()
	engine.failNext = true
	engine.mu.Unlock()
	require.NoError(t, q.Enqueue("bob"))

	// bob is in a game; ana is back at the head of the queue.
	assert.Empty(t, engine.created)
	assert.True(t, q.Contains("ana"))
	assert.False(t, q.Contains("bob"))
	assert.Equal(t, 1, q.Size())

	require.NoError(t, q.Enqueue("eva"))
	require.Len(t, engine.created, 1)
	assert.Equal(t, [2]string{"ana", "eva"}, engine.created[0])
}

func TestCanceledPlayerIsNotPaired(t *testing.T) {
	engine := newFakeEngine()
	q := New(engine)

	require.NoError(t, q.Enqueue("ana"))
	require.NoError(t, q.Cancel("ana"))
	require.NoError(t, q.Enqueue("bob"))

	assert.Empty(t, engine.created)
	assert.Equal(t, 1, q.Size())
}
