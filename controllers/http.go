// Package controllers holds the gin handlers of the HTTP read surface. The
// game itself is played over the TCP connection; HTTP only exposes
// observability and read-only account views.
package controllers

import (
	"net/http"
	"strconv"

	"Renju/middleware"
	"Renju/pkg/logger"
	"Renju/protocol"
	"Renju/services/accounts"
	"Renju/services/game"
	"Renju/services/history"
	"Renju/services/ranking"

	"github.com/gin-gonic/gin"
)

// Health reports liveness.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Leaderboard returns the top ranked players. ?limit= caps the page,
// default 25.
func Leaderboard(lb ranking.Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "25"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 25
		}
		entries, err := lb.Top(limit)
		if err != nil {
			logger.Get().Error().Err(err).Msg("http: leaderboard read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
	}
}

// LiveGames lists in-progress sessions.
func LiveGames(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		games := engine.LiveGames()
		c.JSON(http.StatusOK, gin.H{"count": len(games), "games": games})
	}
}

// History returns the authenticated user's completed games.
func History(hist *history.Store, store accounts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := middleware.Username(c)
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 20
		}
		items, err := hist.HistoryFor(username, limit, DisplayName(store))
		if err != nil {
			logger.Get().Error().Err(err).Str("user", username).Msg("http: history read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": items})
	}
}

// Replay returns the full ordered move list of one game.
func Replay(hist *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		moves, err := hist.Replay(c.Param("id"))
		if err != nil {
			if protocol.IsCode(err, protocol.CodeSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
				return
			}
			logger.Get().Error().Err(err).Str("game", c.Param("id")).Msg("http: replay read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "replay unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"game_id": c.Param("id"), "moves": moves})
	}
}

// DisplayName builds the username resolver used when rendering opponents:
// deleted accounts render as their sentinel display name.
func DisplayName(store accounts.Store) func(string) string {
	return func(username string) string {
		u, err := store.Get(username)
		if err != nil {
			return username
		}
		return u.DisplayName()
	}
}
