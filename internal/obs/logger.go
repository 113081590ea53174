package obs

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the level and encoder. App, Env and Ver are attached to
// every entry.
type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
}

// ParseLevel falls back to info for an empty or unknown level.
func ParseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (c LogConfig) zapConfig() zap.Config {
	zc := zap.NewProductionConfig()
	if c.Pretty {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(c.Level))
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc
}

// NewLogger builds the process logger. Entries at error level and above are
// also reported to Sentry once InitSentry has run.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	l, err := c.zapConfig().Build(
		zap.Hooks(sentryHook),
		zap.Fields(
			zap.String("service", c.App),
			zap.String("env", c.Env),
			zap.String("version", c.Ver),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
