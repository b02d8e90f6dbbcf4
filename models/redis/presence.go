package redis

type PlayerStatus string

const (
	StatusOnline  PlayerStatus = "online"
	StatusPlaying PlayerStatus = "playing"
	StatusQueued  PlayerStatus = "queued"
	StatusOffline PlayerStatus = "offline"
)

// PlayerPresence mirrors a connected player's status into Redis so external
// tooling can inspect who is online without talking to the game server.
type PlayerPresence struct {
	Username string       `json:"username"`
	Status   PlayerStatus `json:"status"`
	LastSeen int64        `json:"last_seen"` // Unix timestamp
}
