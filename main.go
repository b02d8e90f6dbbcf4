package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Renju/config"
	"Renju/pkg/logger"
	"Renju/routes"
	"Renju/server"
	"Renju/services/accounts"
	"Renju/services/game"
	"Renju/services/history"
	"Renju/services/invites"
	"Renju/services/jobs"
	"Renju/services/matchmaking"
	"Renju/services/ranking"
	"Renju/services/registry"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("loading configuration")
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	db, err := config.ConnectGORM(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres")
	}
	if cfg.Postgres.Migrate {
		if err := config.MigrateDatabase(db); err != nil {
			log.Fatal().Err(err).Msg("migrating database")
		}
	}

	store := accounts.NewGormStore(db)
	hist := history.New(db)

	// Redis backs the leaderboard and presence mirror. Without it the
	// server still plays games on an in-memory leaderboard.
	var lb ranking.Leaderboard
	var sink registry.PresenceSink
	if rc, err := config.ConnectRedis(cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory leaderboard")
		lb = ranking.NewMemoryLeaderboard()
	} else {
		lb = rc
		sink = rc
	}

	reg := registry.New(sink)
	rank := ranking.NewEngine(store, lb)
	engine := game.NewEngine(game.Config{
		BoardSize:   cfg.Game.BoardSize,
		TurnTimeout: cfg.Game.TurnTimeout(),
	}, reg, hist, rank)
	queue := matchmaking.New(engine)
	inv := invites.New(cfg.Game.InviteTTL(), reg, engine, reg, store)
	inv.BindQueue(queue)

	if err := rank.Resync(cfg.Game.LeaderboardSize); err != nil {
		log.Warn().Err(err).Msg("initial leaderboard resync failed")
	}
	runner, err := jobs.Start(rank, inv, cfg.Game.LeaderboardSize)
	if err != nil {
		log.Fatal().Err(err).Msg("starting scheduler")
	}
	defer runner.Stop()

	if cfg.Prod {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	routes.SetupRoutes(r, cfg.JWTSecret, store, lb, engine, hist)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	srv := server.New(cfg, store, reg, engine, queue, inv, hist, lb)
	if err := srv.Serve(ctx); err != nil {
		log.Fatal().Err(err).Msg("game server failed")
	}
	log.Info().Msg("shutdown complete")
}
