package obs

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry configures the global hub. An empty DSN leaves reporting off and
// every capture becomes a no-op.
func InitSentry(c SentryConfig) error {
	if c.DSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              c.DSN,
		Environment:      c.Environment,
		Release:          c.Release,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// sentryHook forwards error-level log entries as sentry messages.
func sentryHook(e zapcore.Entry) error {
	if e.Level < zapcore.ErrorLevel || sentry.CurrentHub().Client() == nil {
		return nil
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("logger", e.LoggerName)
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureMessage(e.Message)
	})
	return nil
}
