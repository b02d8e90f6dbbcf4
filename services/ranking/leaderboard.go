package ranking

import (
	"sort"
	"sync"
)

// Entry is one leaderboard row: credits descending, wins breaking ties.
type Entry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Credits  int    `json:"credits"`
	Wins     int    `json:"wins"`
}

// Leaderboard is the materialized ranking view. The Redis client implements
// it in production; MemoryLeaderboard backs tests and redis-less runs.
type Leaderboard interface {
	Update(username string, credits, wins int) error
	Remove(username string) error
	Top(n int) ([]Entry, error)
}

// MemoryLeaderboard is an in-process Leaderboard guarded by one mutex.
type MemoryLeaderboard struct {
	mu   sync.Mutex
	rows map[string]Entry
}

func NewMemoryLeaderboard() *MemoryLeaderboard {
	return &MemoryLeaderboard{rows: make(map[string]Entry)}
}

func (m *MemoryLeaderboard) Update(username string, credits, wins int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[username] = Entry{Username: username, Credits: credits, Wins: wins}
	return nil
}

func (m *MemoryLeaderboard) Remove(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, username)
	return nil
}

func (m *MemoryLeaderboard) Top(n int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.rows))
	for _, e := range m.rows {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Credits != entries[j].Credits {
			return entries[i].Credits > entries[j].Credits
		}
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].Username < entries[j].Username
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
