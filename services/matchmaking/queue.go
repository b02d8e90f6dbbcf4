// Package matchmaking pairs queued players in strict FIFO order. The queue
// holds at most one entry per user and drains as soon as two players wait.
package matchmaking

import (
	"sync"

	"Renju/metrics"
	"Renju/pkg/logger"
	"Renju/protocol"
)

// Engine is the slice of the game engine the queue needs to start matches.
type Engine interface {
	CreateSession(p1, p2 string) (string, error)
	InGame(username string) bool
}

// Queue is the FIFO matchmaking pool.
type Queue struct {
	mu      sync.Mutex
	waiting []string
	queued  map[string]struct{}
	engine  Engine
}

func New(engine Engine) *Queue {
	return &Queue{
		queued: make(map[string]struct{}),
		engine: engine,
	}
}

// Enqueue adds username to the pool and immediately pairs the two oldest
// entries when possible. The session is created outside the queue lock.
func (q *Queue) Enqueue(username string) error {
	q.mu.Lock()
	if _, ok := q.queued[username]; ok {
		q.mu.Unlock()
		return protocol.NewError(protocol.CodeAlreadyQueued, "already in the matchmaking queue")
	}
	if q.engine.InGame(username) {
		q.mu.Unlock()
		return protocol.NewError(protocol.CodeAlreadyInGame, "already in a game")
	}
	q.waiting = append(q.waiting, username)
	q.queued[username] = struct{}{}
	metrics.QueueDepth.Set(float64(len(q.waiting)))
	q.mu.Unlock()

	q.match()
	return nil
}

// match drains the pool two players at a time. When session creation fails,
// usually because one player entered a game through an invite between
// dequeue and creation, the still-eligible player returns to the head of
// the queue instead of being dropped.
func (q *Queue) match() {
	for {
		q.mu.Lock()
		if len(q.waiting) < 2 {
			q.mu.Unlock()
			return
		}
		p1, p2 := q.waiting[0], q.waiting[1]
		q.waiting = q.waiting[2:]
		delete(q.queued, p1)
		delete(q.queued, p2)
		metrics.QueueDepth.Set(float64(len(q.waiting)))
		q.mu.Unlock()

		if _, err := q.engine.CreateSession(p1, p2); err != nil {
			logger.Get().Warn().Err(err).
				Str("p1", p1).Str("p2", p2).
				Msg("matchmaking: session creation failed")
			q.requeue(p1, p2)
		}
	}
}

// requeue puts players back at the head of the pool, skipping anyone who is
// meanwhile in a game or already queued again.
func (q *Queue) requeue(players ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var head []string
	for _, p := range players {
		if _, ok := q.queued[p]; ok {
			continue
		}
		if q.engine.InGame(p) {
			continue
		}
		head = append(head, p)
		q.queued[p] = struct{}{}
	}
	q.waiting = append(head, q.waiting...)
	metrics.QueueDepth.Set(float64(len(q.waiting)))
}

// Cancel removes username from the pool.
func (q *Queue) Cancel(username string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[username]; !ok {
		return protocol.NewError(protocol.CodeNotQueued, "not in the matchmaking queue")
	}
	q.removeLocked(username)
	return nil
}

// Remove silently drops username from the pool, if present. Used on
// disconnect.
func (q *Queue) Remove(username string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(username)
}

func (q *Queue) removeLocked(username string) {
	if _, ok := q.queued[username]; !ok {
		return
	}
	delete(q.queued, username)
	for i, u := range q.waiting {
		if u == username {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	metrics.QueueDepth.Set(float64(len(q.waiting)))
}

// Contains reports whether username is currently queued.
func (q *Queue) Contains(username string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[username]
	return ok
}

// Size returns the number of waiting players.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
