package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Sentinel configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// AlertTimeout bounds a single alert dispatch. A slow or failed alert
	// degrades to logged-and-dropped, never blocking the caller.
	AlertTimeout time.Duration `json:"alertTimeout"`

	// VelocityWindow is the trailing window for VelocityCount rules.
	VelocityWindow time.Duration `json:"velocityWindow"`

	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// DefaultConfig returns the single-node default: SQLite, in-memory cache,
// channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		AlertTimeout:   3 * time.Second,
		VelocityWindow: 10 * time.Minute,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds a Config from environment variables on top of the
// defaults. Database host, credentials and name are the only externally
// required settings; everything else has a sane default.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Repository.Driver = "postgres"
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Repository.PostgresPort = p
		}
	}
	if v := os.Getenv("DB_USERNAME"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("DB_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Type = "redis"
		cfg.Cache.RedisAddr = v
		cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.EventBus.Type = "nats"
		cfg.EventBus.NATSUrl = v
		cfg.EventBus.NATSToken = os.Getenv("NATS_TOKEN")
	}

	if v := os.Getenv("SENTINEL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SENTINEL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("SENTINEL_ALERT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AlertTimeout = d
		}
	}
	if v := os.Getenv("SENTINEL_VELOCITY_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.VelocityWindow = d
		}
	}

	return cfg
}
