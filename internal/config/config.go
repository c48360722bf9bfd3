// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/game, cmd/lobby and cmd/statsctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration is wrapped by every error Load returns.
var ErrConfiguration = errors.New("configuration error")

// Role selects which settings are required.
type Role int

const (
	RoleLobby Role = iota
	RoleGame
	RoleTool
)

// Default HTTP ports per process.
const (
	LobbyPort = 8000
	GamePort  = 8001
)

// Transport and store drivers.
const (
	TransportPostgres  = "postgres"
	TransportWebsocket = "websocket"
	TransportMemory    = "memory"

	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Identity
	ServiceName string
	Environment string // development, staging, production
	Debug       bool

	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Transport
	Transport string
	BrokerURL string

	// Persistence
	StoreDriver   string
	SQLitePath    string
	RetentionDays int

	// API server
	APIHost string
	APIPort int

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Game side
	LobbyServer          string
	ProxyService         string
	TeleportDelay        time.Duration
	GameServerName       string
	ScoreboardEnabled    bool
	ScoreboardMergeMode  string
	ScoreboardFieldModes string

	// Wire
	WireFormat string

	// Lobby side
	PersistWorkers    int
	PersistQueueSize  int
	DedupeCapacity    int
	DisplayConfigFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load(role Role) (*Config, error) {
	port := LobbyPort
	if role == RoleGame {
		port = GamePort
	}

	cfg := &Config{
		ServiceName: envOr("SERVICE_NAME", hostname()),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		Transport: strings.ToLower(envOr("TRANSPORT", TransportPostgres)),
		BrokerURL: envOr("BROKER_URL", "ws://localhost:9090/ws"),

		StoreDriver:   strings.ToLower(envOr("STORE_DRIVER", StorePostgres)),
		SQLitePath:    envOr("SQLITE_PATH", "matchstats.db"),
		RetentionDays: envInt("RETENTION_DAYS", 90),

		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envInt("API_PORT", envInt("PORT", port)),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		LobbyServer:          envOr("LOBBY_SERVER", "Lobby-1"),
		ProxyService:         envOr("PROXY_SERVICE", "Proxy-1"),
		TeleportDelay:        time.Duration(envInt("TELEPORT_DELAY_SECONDS", 5)) * time.Second,
		GameServerName:       envOr("GAME_SERVER_NAME", "auto"),
		ScoreboardEnabled:    envBool("SCOREBOARD_ENABLED", true),
		ScoreboardMergeMode:  envOr("SCOREBOARD_MERGE_MODE", "MAX"),
		ScoreboardFieldModes: envOr("SCOREBOARD_FIELD_MODES", ""),

		WireFormat: strings.ToLower(envOr("WIRE_FORMAT", "dynamic")),

		PersistWorkers:    envInt("PERSIST_WORKERS", 2),
		PersistQueueSize:  envInt("PERSIST_QUEUE_SIZE", 64),
		DedupeCapacity:    envInt("DEDUPE_CAPACITY", 100000),
		DisplayConfigFile: envOr("DISPLAY_CONFIG_FILE", ""),
	}

	if err := cfg.validate(role); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(role Role) error {
	switch c.Transport {
	case TransportPostgres, TransportWebsocket, TransportMemory:
	default:
		return fmt.Errorf("%w: TRANSPORT %q: want postgres, websocket or memory", ErrConfiguration, c.Transport)
	}
	switch c.StoreDriver {
	case StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("%w: STORE_DRIVER %q: want postgres or sqlite", ErrConfiguration, c.StoreDriver)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("%w: SERVICE_NAME must be set", ErrConfiguration)
	}
	if c.DatabaseURL == "" && c.NeedsDatabase(role) {
		return fmt.Errorf("%w: DATABASE_URL must be set for TRANSPORT=%s STORE_DRIVER=%s",
			ErrConfiguration, c.Transport, c.StoreDriver)
	}
	if c.PersistWorkers < 1 || c.PersistQueueSize < 1 {
		return fmt.Errorf("%w: PERSIST_WORKERS and PERSIST_QUEUE_SIZE must be positive", ErrConfiguration)
	}
	return nil
}

// NeedsDatabase reports whether the given process has to open a Postgres
// pool under this configuration.
func (c *Config) NeedsDatabase(role Role) bool {
	if c.Transport == TransportPostgres && role != RoleTool {
		return true
	}
	return c.StoreDriver == StorePostgres && role != RoleGame
}

// GameName resolves GAME_SERVER_NAME: "auto" means the service name.
func (c *Config) GameName() string {
	name := strings.TrimSpace(c.GameServerName)
	if strings.EqualFold(name, "auto") {
		name = c.ServiceName
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
