// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Compile-time constants from spec §6. These are not meant to be
// environment-tunable: they define the wire contract listeners rely on.
const (
	BurstTargetSeconds   = 3.0
	ExpectedSampleRate   = 44100
	ProducerQueueSize    = 200
	BroadcastQueueSize   = 200
	HeartbeatTimeout     = 20 * time.Second
	JanitorInterval      = 10 * time.Second
	CreditGranularitySec = 1
	PlaylistRetryBackoff = 5 * time.Second
	PacingCatchUpWindow  = 100 * time.Millisecond
)

type Config struct {
	Port        string
	DataDir     string
	DatabaseURL string
	CookieKey   string
	CORSOrigins []string

	StationName string
	MaxClients  int
}

var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")
var ErrWeakCookieKey = errors.New("config: COOKIE_KEY must be at least 64 bytes")

// Load reads configuration from the environment, first loading a .env file
// from the working directory if one is present (missing is not an error).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		DataDir:     getEnv("DATA_DIR", "."),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CookieKey:   getEnv("COOKIE_KEY", ""),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "")),
		StationName: getEnv("STATION_NAME", "Airwave Radio"),
		MaxClients:  getEnvAsInt("MAX_CLIENTS", 500),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if len(cfg.CookieKey) < 64 {
		return nil, ErrWeakCookieKey
	}

	return cfg, nil
}

// MusicDir is where audio files are persisted, per spec §6:
// DATA_DIR/music/<song_id>.<ext>.
func (c *Config) MusicDir() string {
	return c.DataDir + "/music"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
