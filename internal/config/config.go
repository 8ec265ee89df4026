package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDBPath    = "./dev.db"
	defaultPort      = "8080"
	defaultEnv       = "development"
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	defaultCacheTTL  = 5 * time.Minute
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	DBPath        string
	Port          string
	Env           string
	SessionSecret string
	LogLevel      string
	LogFormat     string
	// CatalogCacheTTL bounds how long materials and machines are served from
	// memory. Zero keeps them until invalidated.
	CatalogCacheTTL time.Duration
}

// IsDev reports whether the server runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == defaultEnv || c.Env == "dev"
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: production injects real environment variables.
	if err := loadDotEnv(".env"); err != nil {
		log.Printf("warning: .env: %v", err)
	}

	cfg := Config{
		DBPath:          getenv("DB_PATH", defaultDBPath),
		Port:            getenv("PORT", defaultPort),
		Env:             getenv("APP_ENV", defaultEnv),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		LogLevel:        getenv("LOG_LEVEL", defaultLogLevel),
		LogFormat:       getenv("LOG_FORMAT", defaultLogFormat),
		CatalogCacheTTL: defaultCacheTTL,
	}

	if raw := os.Getenv("CATALOG_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			log.Printf("warning: CATALOG_CACHE_TTL=%q is not a valid duration, using %s", raw, defaultCacheTTL)
		} else {
			cfg.CatalogCacheTTL = ttl
		}
	}

	if cfg.SessionSecret == "" {
		log.Print("warning: SESSION_SECRET is not set")
	}

	return cfg
}

// loadDotEnv loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error and variables already present
// in the environment are not overwritten.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
