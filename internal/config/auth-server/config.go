package auth_server_config

import (
	"time"

	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/outbox"
	pg "github.com/NordCoder/Gatekeeper/internal/repository/postgres"
	"github.com/NordCoder/Gatekeeper/internal/repository/redis"
	"github.com/NordCoder/Gatekeeper/internal/services/pruner"
	"github.com/NordCoder/Gatekeeper/internal/token"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
}

type Auth struct {
	AccessSecret      string        `mapstructure:"access_secret"`
	RefreshSecret     string        `mapstructure:"refresh_secret"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	LockDuration      time.Duration `mapstructure:"lock_duration"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	MinPasswordLen    int           `mapstructure:"min_password_len"`
}

func (a *Auth) AsTokenConfig() token.Config {
	return token.Config{
		AccessSecret:  []byte(a.AccessSecret),
		RefreshSecret: []byte(a.RefreshSecret),
		Issuer:        a.Issuer,
		AccessTTL:     a.AccessTTL,
		RefreshTTL:    a.RefreshTTL,
	}
}

type Kafka struct {
	Enable     bool     `mapstructure:"enable"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

func (o Outbox) AsRunnerConfig() outbox.RunnerConfig {
	return outbox.RunnerConfig{
		Workers:       o.Workers,
		BatchSize:     o.BatchSize,
		Interval:      o.WaitTime,
		InProgressTTL: o.InProgressTTL,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Sentry struct {
	DSN string `mapstructure:"dsn"`
	Env string `mapstructure:"env"`
}

type Config struct {
	App    App           `mapstructure:"app"`
	Server Server        `mapstructure:"server"`
	DB     pg.Config     `mapstructure:"db"`
	Store  Store         `mapstructure:"store"`
	Redis  redis.Config  `mapstructure:"redis"`
	Auth   Auth          `mapstructure:"auth"`
	Kafka  Kafka         `mapstructure:"kafka"`
	Outbox Outbox        `mapstructure:"outbox"`
	Pruner pruner.Config `mapstructure:"pruner"`
	OTEL   OTEL          `mapstructure:"otel"`
	Log    Log           `mapstructure:"log"`
	Sentry Sentry        `mapstructure:"sentry"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "gatekeeper/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

func (c *Config) AsSentryConfig() obs.SentryConfig {
	env := c.Sentry.Env
	if env == "" {
		env = c.App.Env
	}
	return obs.SentryConfig{DSN: c.Sentry.DSN, Environment: env, Release: c.App.Version}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
