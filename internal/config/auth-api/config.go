package auth_api_config

import (
	"time"

	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/outbox"
	pg "github.com/NordCoder/Crabiner/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// MetricsAddr is used by auth-relay, which has no API listener of its own.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:         c.OTEL.Enable,
		Endpoint:       c.OTEL.OTLPEndpoint,
		ServiceName:    c.OTEL.ServiceName,
		ServiceVersion: c.App.Version,
		Environment:    c.App.Env,
		SampleRatio:    c.OTEL.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "crabiner/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Auth struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	Issuer       string        `mapstructure:"issuer"`
	Audience     string        `mapstructure:"audience"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	CookiePath   string        `mapstructure:"cookie_path"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	// Backend selects where refresh records live: postgres, redis or memory.
	Backend     string `mapstructure:"backend"`
	InternalKey string `mapstructure:"internal_key"`
	// DevSubjects seeds the in-memory identity repo when no database is configured.
	DevSubjects []string `mapstructure:"dev_subjects"`
}

type Kafka struct {
	Enable     bool     `mapstructure:"enable"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
	// EmbeddedRelay runs the outbox relay inside auth-api. Turn it off when
	// auth-relay is deployed separately.
	EmbeddedRelay bool `mapstructure:"embedded_relay"`
}

type Sweeper struct {
	Enable           bool          `mapstructure:"enable"`
	Interval         time.Duration `mapstructure:"interval"`
	ExpiredRetention time.Duration `mapstructure:"expired_retention"`
	RevokedRetention time.Duration `mapstructure:"revoked_retention"`
	OutboxRetention  time.Duration `mapstructure:"outbox_retention"`
}

type Config struct {
	App     App                 `mapstructure:"app"`
	Server  Server              `mapstructure:"server"`
	DB      pg.Config           `mapstructure:"db"`
	Redis   Redis               `mapstructure:"redis"`
	OTEL    OTEL                `mapstructure:"otel"`
	Log     Log                 `mapstructure:"log"`
	Auth    Auth                `mapstructure:"auth"`
	Kafka   Kafka               `mapstructure:"kafka"`
	Outbox  outbox.RunnerConfig `mapstructure:"outbox"`
	Sweeper Sweeper             `mapstructure:"sweeper"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
