// Package server is the TCP front door: it accepts persistent client
// connections, frames newline-delimited JSON requests and routes them to
// the game services. One goroutine reads each connection; writes go through
// the connection's serialized writer.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"

	"Renju/config"
	"Renju/metrics"
	"Renju/pkg/logger"
	"Renju/protocol"
	"Renju/services/accounts"
	"Renju/services/game"
	"Renju/services/history"
	"Renju/services/invites"
	"Renju/services/matchmaking"
	"Renju/services/ranking"
	"Renju/services/registry"
)

// maxLine caps one request frame at 1 MiB.
const maxLine = 1 << 20

// Server ties the protocol front end to the game services.
type Server struct {
	cfg      *config.Config
	store    accounts.Store
	registry *registry.Registry
	engine   *game.Engine
	queue    *matchmaking.Queue
	invites  *invites.Table
	history  *history.Store
	lb       ranking.Leaderboard
}

func New(
	cfg *config.Config,
	store accounts.Store,
	reg *registry.Registry,
	engine *game.Engine,
	queue *matchmaking.Queue,
	inv *invites.Table,
	hist *history.Store,
	lb ranking.Leaderboard,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: reg,
		engine:   engine,
		queue:    queue,
		invites:  inv,
		history:  hist,
		lb:       lb,
	}
}

// Serve listens on the configured TCP address until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return err
	}
	logger.Get().Info().Str("addr", s.cfg.TCPAddr).Msg("game server listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Get().Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handleConn(raw)
	}
}

// clientSession is the per-connection state. username is empty until LOGIN
// succeeds and is only touched by the connection's read goroutine.
type clientSession struct {
	conn     *Conn
	username string
}

func (s *Server) handleConn(raw net.Conn) {
	conn := newConn(raw)
	cs := &clientSession{conn: conn}
	log := logger.Get().With().Str("remote", conn.RemoteAddr()).Logger()

	metrics.ConnectionsActive.Inc()
	log.Debug().Msg("client connected")
	defer func() {
		s.teardown(cs)
		_ = conn.Close()
		metrics.ConnectionsActive.Dec()
		log.Debug().Str("user", cs.username).Msg("client disconnected")
	}()

	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			resp := protocol.ErrResponse("", "", protocol.NewError(protocol.CodeMalformed, "invalid request frame"))
			if conn.Respond(resp) != nil {
				return
			}
			continue
		}

		resp := s.dispatch(cs, env)
		if conn.Respond(resp) != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("connection read ended")
	}
}

// teardown releases everything the connection's user holds: queue slot,
// pending invites, live game (forfeited) and the registry binding.
func (s *Server) teardown(cs *clientSession) {
	if cs.username == "" {
		return
	}
	username := cs.username
	cs.username = ""

	s.registry.Unbind(username, cs.conn)
	s.queue.Remove(username)
	s.invites.RemoveFor(username)
	s.engine.HandleDisconnect(username)
}
