package audit_writer_config

import (
	"github.com/NordCoder/Gatekeeper/internal/obs"
	pginfra "github.com/NordCoder/Gatekeeper/internal/repository/postgres"
)

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	Partitions    int      `mapstructure:"partitions"`
	FromBeginning bool     `mapstructure:"from_beginning"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Config struct {
	Env       string         `mapstructure:"env"`
	DB        pginfra.Config `mapstructure:"db"`
	In        KafkaIn        `mapstructure:"kafka_in"`
	Server    Server         `mapstructure:"server"`
	OTEL      OTEL           `mapstructure:"otel"`
	LogLevel  string         `mapstructure:"log_level"`
	LogPretty bool           `mapstructure:"log_pretty"`
	SentryDSN string         `mapstructure:"sentry_dsn"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{Level: c.LogLevel, Pretty: c.LogPretty, App: "gatekeeper/audit-writer", Env: c.Env}
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		SampleRatio: c.OTEL.SampleRatio,
	}
}
