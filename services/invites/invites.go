// Package invites manages direct game challenges between online players.
// An invite is pending until accepted, declined, expired or torn down by a
// disconnect; at most one pending invite exists per ordered sender/recipient
// pair.
package invites

import (
	"strings"
	"sync"
	"time"

	"Renju/metrics"
	"Renju/models/postgres"
	"Renju/pkg/logger"
	"Renju/protocol"

	"github.com/google/uuid"
)

// Notifier delivers invite pushes. The connection registry implements it.
type Notifier interface {
	Push(username string, p protocol.Push) error
}

// Engine is the slice of the game engine invites need.
type Engine interface {
	CreateSession(p1, p2 string) (string, error)
	InGame(username string) bool
}

// Roster reports who is connected.
type Roster interface {
	IsOnline(username string) bool
	Online() []string
}

// Accounts resolves credit balances for the player listing.
type Accounts interface {
	Get(username string) (*postgres.User, error)
}

// Dequeuer pulls a player out of the matchmaking queue. A user entering a
// game through an invite must not stay queued.
type Dequeuer interface {
	Remove(username string)
}

type state string

const (
	statePending  state = "pending"
	stateAccepted state = "accepted"
	stateDeclined state = "declined"
	stateExpired  state = "expired"
)

type invite struct {
	id        string
	from      string
	to        string
	createdAt time.Time
	expiresAt time.Time
	state     state
	timer     *time.Timer
}

type pairKey struct{ from, to string }

// Table holds all live invites.
type Table struct {
	mu      sync.Mutex
	ttl     time.Duration
	invites map[string]*invite
	byPair  map[pairKey]string

	notifier Notifier
	engine   Engine
	roster   Roster
	accounts Accounts
	queue    Dequeuer
}

func New(ttl time.Duration, notifier Notifier, engine Engine, roster Roster, accounts Accounts) *Table {
	return &Table{
		ttl:      ttl,
		invites:  make(map[string]*invite),
		byPair:   make(map[pairKey]string),
		notifier: notifier,
		engine:   engine,
		roster:   roster,
		accounts: accounts,
	}
}

// BindQueue attaches the matchmaking queue so accepted invites dequeue both
// parties. Optional; nil disables it.
func (t *Table) BindQueue(q Dequeuer) {
	t.queue = q
}

type inviteReceivedData struct {
	InviteID  string    `json:"invite_id"`
	From      string    `json:"from"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Send creates a pending invite from -> to and notifies the recipient.
func (t *Table) Send(from, to string) (string, error) {
	if from == to {
		return "", protocol.NewError(protocol.CodeSelfInvite, "cannot invite yourself")
	}
	if t.engine.InGame(from) {
		return "", protocol.NewError(protocol.CodeAlreadyInGame, "cannot invite while in a game")
	}
	if !t.roster.IsOnline(to) || t.engine.InGame(to) {
		return "", protocol.NewError(protocol.CodeRecipientUnavailable, to+" is not available")
	}

	t.mu.Lock()
	key := pairKey{from, to}
	if _, dup := t.byPair[key]; dup {
		t.mu.Unlock()
		return "", protocol.NewError(protocol.CodeDuplicateInvite, "an invite to "+to+" is already pending")
	}
	now := time.Now()
	inv := &invite{
		id:        uuid.NewString(),
		from:      from,
		to:        to,
		createdAt: now,
		expiresAt: now.Add(t.ttl),
		state:     statePending,
	}
	inv.timer = time.AfterFunc(t.ttl, func() { t.expire(inv.id) })
	t.invites[inv.id] = inv
	t.byPair[key] = inv.id
	t.mu.Unlock()

	err := t.notifier.Push(to, protocol.Push{
		Type: protocol.TypeInviteReceived,
		Data: inviteReceivedData{InviteID: inv.id, From: from, ExpiresAt: inv.expiresAt},
	})
	if err != nil {
		t.drop(inv.id)
		return "", protocol.NewError(protocol.CodeRecipientUnavailable, to+" is not available")
	}
	return inv.id, nil
}

type inviteResultData struct {
	InviteID string `json:"invite_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Reason   string `json:"reason,omitempty"`
}

// Respond resolves a pending invite. Only the recipient may respond; an
// accept starts the game through the same path matchmaking uses.
func (t *Table) Respond(username, inviteID string, accept bool) error {
	t.mu.Lock()
	inv, ok := t.invites[inviteID]
	if !ok || inv.to != username {
		t.mu.Unlock()
		return protocol.NewError(protocol.CodeInviteNotFound, "invite not found")
	}
	if inv.state != statePending {
		t.mu.Unlock()
		return protocol.NewError(protocol.CodeInviteNotPending, "invite is no longer pending")
	}
	if accept {
		inv.state = stateAccepted
	} else {
		inv.state = stateDeclined
	}
	inv.timer.Stop()
	t.removeLocked(inv)
	t.mu.Unlock()

	if accept && t.queue != nil {
		t.queue.Remove(inv.from)
		t.queue.Remove(inv.to)
	}

	if !accept {
		metrics.InvitesTotal.WithLabelValues("declined").Inc()
		_ = t.notifier.Push(inv.from, protocol.Push{
			Type: protocol.TypeInviteDeclined,
			Data: inviteResultData{InviteID: inv.id, From: inv.from, To: inv.to},
		})
		return nil
	}

	if _, err := t.engine.CreateSession(inv.from, inv.to); err != nil {
		// One party entered a game between send and accept. The invite is
		// spent; the sender learns it did not go through.
		metrics.InvitesTotal.WithLabelValues("declined").Inc()
		_ = t.notifier.Push(inv.from, protocol.Push{
			Type: protocol.TypeInviteDeclined,
			Data: inviteResultData{InviteID: inv.id, From: inv.from, To: inv.to, Reason: "unavailable"},
		})
		return protocol.NewError(protocol.CodeRecipientUnavailable, "opponent is no longer available")
	}
	metrics.InvitesTotal.WithLabelValues("accepted").Inc()
	return nil
}

// expire runs when an invite's deadline passes. A raced accept or decline
// already flipped the state; then this is a no-op.
func (t *Table) expire(inviteID string) {
	t.mu.Lock()
	inv, ok := t.invites[inviteID]
	if !ok || inv.state != statePending {
		t.mu.Unlock()
		return
	}
	inv.state = stateExpired
	t.removeLocked(inv)
	t.mu.Unlock()

	metrics.InvitesTotal.WithLabelValues("expired").Inc()
	logger.Get().Debug().Str("invite", inv.id).Str("from", inv.from).Str("to", inv.to).Msg("invite expired")
	data := inviteResultData{InviteID: inv.id, From: inv.from, To: inv.to}
	_ = t.notifier.Push(inv.from, protocol.Push{Type: protocol.TypeInviteExpired, Data: data})
	_ = t.notifier.Push(inv.to, protocol.Push{Type: protocol.TypeInviteExpired, Data: data})
}

// drop erases an invite entirely without notifying anyone. Used when the
// initial delivery to the recipient fails.
func (t *Table) drop(inviteID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if inv, ok := t.invites[inviteID]; ok {
		inv.timer.Stop()
		t.removeLocked(inv)
		delete(t.invites, inv.id)
	}
}

// RemoveFor expires every pending invite involving username. Called when
// the user disconnects; the other party is told the invite is gone.
func (t *Table) RemoveFor(username string) {
	t.mu.Lock()
	var gone []*invite
	for _, inv := range t.invites {
		if inv.from == username || inv.to == username {
			inv.state = stateExpired
			inv.timer.Stop()
			t.removeLocked(inv)
			gone = append(gone, inv)
		}
	}
	t.mu.Unlock()

	for _, inv := range gone {
		metrics.InvitesTotal.WithLabelValues("expired").Inc()
		other := inv.from
		if other == username {
			other = inv.to
		}
		_ = t.notifier.Push(other, protocol.Push{
			Type: protocol.TypeInviteExpired,
			Data: inviteResultData{InviteID: inv.id, From: inv.from, To: inv.to},
		})
	}
}

// resolvedRetention keeps resolved invites around long enough that a late
// response reads as "no longer pending" instead of "not found".
const resolvedRetention = time.Minute

// Sweep expires invites whose deadline passed without the timer firing and
// forgets long-resolved ones. Scheduled as a periodic job.
func (t *Table) Sweep() {
	t.mu.Lock()
	now := time.Now()
	var stale []string
	for id, inv := range t.invites {
		switch {
		case inv.state == statePending && now.After(inv.expiresAt):
			stale = append(stale, id)
		case inv.state != statePending && now.After(inv.expiresAt.Add(resolvedRetention)):
			delete(t.invites, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		t.expire(id)
	}
}

// Pending returns the number of pending invites.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, inv := range t.invites {
		if inv.state == statePending {
			n++
		}
	}
	return n
}

// removeLocked releases the invite's pair slot. The invite itself stays in
// the table until swept, so late responses see its resolved state.
func (t *Table) removeLocked(inv *invite) {
	key := pairKey{inv.from, inv.to}
	if t.byPair[key] == inv.id {
		delete(t.byPair, key)
	}
}

// Candidate is one row of the online player listing.
type Candidate struct {
	Username string `json:"username"`
	Credits  int    `json:"credits"`
}

// Filter narrows the player listing. Nil bounds are open.
type Filter struct {
	NamePart   string
	MinCredits *int
	MaxCredits *int
}

// Candidates lists the players currently open to an invite: online, not the
// requester and not in a game. Optionally filtered by name substring and
// credit range.
func (t *Table) Candidates(requester string, f Filter) ([]Candidate, error) {
	var out []Candidate
	for _, name := range t.roster.Online() {
		if name == requester || t.engine.InGame(name) {
			continue
		}
		if f.NamePart != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.NamePart)) {
			continue
		}
		u, err := t.accounts.Get(name)
		if err != nil {
			continue
		}
		if f.MinCredits != nil && u.Credits < *f.MinCredits {
			continue
		}
		if f.MaxCredits != nil && u.Credits > *f.MaxCredits {
			continue
		}
		out = append(out, Candidate{Username: name, Credits: u.Credits})
	}
	return out, nil
}
