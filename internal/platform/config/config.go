// Package config loads process configuration from an optional TOML file and
// environment overrides. Defaults live in code so a bare `cardkeep serve`
// starts an in-memory gateway for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Audit    AuditConfig    `toml:"audit"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `toml:"addr"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout"`
}

// AuthConfig holds the key used to verify bearer tokens.
type AuthConfig struct {
	JWTSigningKey string `toml:"jwt_signing_key"`
}

// StorageConfig selects the entity backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `toml:"url"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// RedisConfig configures the optional display-name cache. An empty URL
// disables it.
type RedisConfig struct {
	URL          string        `toml:"url"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	NameCacheTTL time.Duration `toml:"name_cache_ttl"`
}

// KafkaConfig configures the optional audit stream. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string `toml:"brokers"`
	AuditTopic        string   `toml:"audit_topic"`
	Partitions        int32    `toml:"partitions"`
	ReplicationFactor int16    `toml:"replication_factor"`
}

// AuditConfig bounds the best-effort audit step that follows a mutation.
type AuditConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Auth: AuthConfig{
			// Development default; production deployments override it.
			JWTSigningKey: "dev-secret-key-change-in-production",
		},
		Storage: StorageConfig{Backend: StorageMemory},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			NameCacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			AuditTopic:        "cardkeep.activity",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Audit: AuditConfig{Timeout: 5 * time.Second},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("storage backend %q requires a database url", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("CARDKEEP_ADDR"); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup("JWT_SIGNING_KEY"); ok && v != "" {
		cfg.Auth.JWTSigningKey = v
	}
	if v, ok := lookup("CARDKEEP_STORAGE"); ok && v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.URL = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("KAFKA_AUDIT_TOPIC"); ok && v != "" {
		cfg.Kafka.AuditTopic = v
	}
	if v, ok := lookup("CARDKEEP_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup("CARDKEEP_AUDIT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARDKEEP_AUDIT_TIMEOUT: %w", err)
		}
		cfg.Audit.Timeout = d
	}
	if v, ok := lookup("DATABASE_MAX_OPEN_CONNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATABASE_MAX_OPEN_CONNS: %w", err)
		}
		cfg.Database.MaxOpenConns = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
