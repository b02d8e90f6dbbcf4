// Package metrics is the single source of truth for the server's Prometheus
// metric names, labels and help strings. Collectors register themselves with
// the default registry via promauto; the gin surface exposes them on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "renju"

// ConnectionsActive tracks currently open client TCP connections.
var ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "connections_active",
	Help:      "Number of open client connections.",
})

// SessionsActive tracks sessions currently in progress.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "sessions_active",
	Help:      "Number of game sessions in progress.",
})

// MovesTotal counts accepted moves, labelled by origin.
// Label:
//   - origin: "player" or "timeout"
var MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "moves_total",
	Help:      "Total number of accepted moves.",
}, []string{"origin"})

// GamesFinishedTotal counts finished sessions, labelled by result.
// Label:
//   - result: "win", "draw" or "forfeit"
var GamesFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "games_finished_total",
	Help:      "Total number of finished game sessions.",
}, []string{"result"})

// QueueDepth tracks the current matchmaking queue length.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "matchmaking_queue_depth",
	Help:      "Number of players waiting in the matchmaking queue.",
})

// InvitesTotal counts invite outcomes.
// Label:
//   - outcome: "accepted", "declined" or "expired"
var InvitesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "invites_total",
	Help:      "Total number of resolved invites.",
}, []string{"outcome"})
