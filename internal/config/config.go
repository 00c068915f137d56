// Package config reads process configuration from the environment.
//
// A .env file in the working directory is loaded first when present, so the
// same binary works in development (values in .env), CI and production
// (values in the real environment) without recompiling. Real environment
// variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server configures cmd/server.
type Server struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	// DatabaseURL uses modernc.org/sqlite URI parameters:
	//   _pragma=foreign_keys(1)    enforce FK constraints on every connection
	//   _pragma=journal_mode(WAL)  readers don't block writers
	//   _pragma=busy_timeout(5000) wait instead of returning SQLITE_BUSY
	DatabaseURL string   `env:"DATABASE_URL" envDefault:"checkpoint.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"`
	JWTSecret   string   `env:"JWT_SECRET" envDefault:"changeme-use-a-real-secret-in-production"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	// CloseSweepSchedule is a robfig/cron spec for the auto-close job.
	CloseSweepSchedule string `env:"CLOSE_SWEEP_SCHEDULE" envDefault:"@every 5m"`
	// EnableSeed exposes POST /api/admin/seed.
	EnableSeed bool `env:"ENABLE_SEED" envDefault:"true"`
}

// Console configures cmd/console.
type Console struct {
	APIURL      string        `env:"CHECKPOINT_API_URL" envDefault:"http://localhost:8080/api"`
	TokenFile   string        `env:"CHECKPOINT_TOKEN_FILE"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
}

// LoadServer reads the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := load(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.JWTSecret == "" {
		return Server{}, errors.New("config: JWT_SECRET must not be empty")
	}
	return cfg, nil
}

// LoadConsole reads the console configuration.
func LoadConsole() (Console, error) {
	var cfg Console
	if err := load(&cfg); err != nil {
		return Console{}, err
	}
	return cfg, nil
}

func load(target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
