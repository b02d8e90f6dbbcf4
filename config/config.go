package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds every tunable of the server. Values come from the
// environment (a .env file is loaded by main before parsing).
type Config struct {
	TCPAddr  string `env:"TCP_ADDR,  default=:4848"`
	HTTPAddr string `env:"HTTP_ADDR, default=:8080"`
	Prod     bool   `env:"PROD,      default=false"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=true"`

	JWTSecret string `env:"JWT_SECRET, default=renju-dev-secret"`

	Game     GameConfig
	Postgres PostgresConfig
	Redis    RedisConfig
}

// GameConfig carries the gameplay knobs: grid dimension, seconds per turn
// and seconds before an invite expires.
type GameConfig struct {
	BoardSize       int `env:"BOARD_SIZE,        default=19"`
	TurnTimeoutSecs int `env:"TURN_TIMEOUT,      default=30"`
	InviteTTLSecs   int `env:"INVITE_TTL,        default=15"`
	LeaderboardSize int `env:"LEADERBOARD_SIZE,  default=100"`
}

type PostgresConfig struct {
	User     string `env:"POSTGRES_USER,     default=renju"`
	Password string `env:"POSTGRES_PASSWORD, default=renju"`
	Host     string `env:"POSTGRES_HOST,     default=localhost"`
	Port     string `env:"POSTGRES_PORT,     default=5432"`
	Database string `env:"POSTGRES_DATABASE, default=renju"`
	Migrate  bool   `env:"MIGRATE_POSTGRES,  default=false"`
	Verbose  bool   `env:"VERBOSE_POSTGRES,  default=false"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL, default=localhost:6379"`
	DB  int    `env:"REDIS_DB,  default=0"`
}

// Load parses the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (g GameConfig) TurnTimeout() time.Duration {
	return time.Duration(g.TurnTimeoutSecs) * time.Second
}

func (g GameConfig) InviteTTL() time.Duration {
	return time.Duration(g.InviteTTLSecs) * time.Second
}
