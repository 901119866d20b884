package auth_api_config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minJWTSecretLen = 32

// Load reads an optional YAML file, then lets the environment override it. A
// .env file in envFile (if present) is loaded first and never overrides real
// environment variables.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("app.name", "auth-api")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "crabiner:rt:")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "crabiner-auth-api")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "crabiner")
	v.SetDefault("auth.audience", "crabiner-api")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.cookie_name", "refresh_token")
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("auth.cookie_path", "/")
	v.SetDefault("auth.backend", BackendPostgres)
	v.SetDefault("auth.internal_key", "")
	v.SetDefault("auth.dev_subjects", []string{})

	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "crabiner.auth.events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.embedded_relay", true)

	v.SetDefault("outbox.workers", 1)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "30s")

	v.SetDefault("sweeper.enable", true)
	v.SetDefault("sweeper.interval", "1h")
	v.SetDefault("sweeper.expired_retention", "168h")
	v.SetDefault("sweeper.revoked_retention", "720h")
	v.SetDefault("sweeper.outbox_retention", "72h")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// Plain-HTTP cookies are opt-in and only the local env gets them by default.
	if v.IsSet("auth.cookie_secure") {
		cfg.Auth.CookieSecure = v.GetBool("auth.cookie_secure")
	} else {
		cfg.Auth.CookieSecure = !cfg.App.IsLocal()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsLocal reports an env where the API is reached over plain HTTP.
func (a App) IsLocal() bool {
	switch strings.ToLower(a.Env) {
	case "dev", "local", "test":
		return true
	}
	return false
}

func (a App) IsProduction() bool {
	switch strings.ToLower(a.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return ErrConfig("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return ErrConfig("auth.access_ttl and auth.refresh_ttl must be positive")
	}
	switch c.Auth.Backend {
	case BackendPostgres:
		if c.DB.DSN == "" {
			return ErrConfig("db.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return ErrConfig("redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return ErrConfig("auth.backend must be one of postgres, redis, memory")
	}
	if c.App.IsProduction() && !c.Auth.CookieSecure {
		return ErrConfig("auth.cookie_secure cannot be disabled in production")
	}
	if c.Kafka.Enable {
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return ErrConfig("kafka.brokers and kafka.topic are required when kafka is enabled")
		}
		if c.DB.DSN == "" {
			return ErrConfig("kafka relay reads the postgres outbox; db.dsn is required")
		}
	}
	return nil
}
