package routes

import (
	"Renju/controllers"
	"Renju/middleware"
	"Renju/services/accounts"
	"Renju/services/game"
	"Renju/services/history"
	"Renju/services/ranking"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes wires the HTTP read surface.
func SetupRoutes(r *gin.Engine, jwtSecret string, store accounts.Store, lb ranking.Leaderboard, engine *game.Engine, hist *history.Store) {
	middleware.SetUpMiddleware(r)

	r.GET("/health", controllers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/leaderboard", controllers.Leaderboard(lb))
	r.GET("/live", controllers.LiveGames(engine))

	authed := r.Group("/auth", middleware.AuthRequired(jwtSecret))
	{
		authed.GET("/history", controllers.History(hist, store))
		authed.GET("/replay/:id", controllers.Replay(hist))
	}
}
