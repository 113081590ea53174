package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PublishPolicy retries broker publishes for roughly a minute before giving
// the message back to the outbox.
func PublishPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:      "kafka_publish",
		Attempts:  6,
		Backoff:   ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: notCanceled,
		OnAttempt: logAttempt(log, "publish retry"),
		OnExhaust: logExhaust(log, "publish retries exhausted"),
	}
}

// StorePolicy is for short database writes made by consumers.
func StorePolicy(log *zap.Logger) Policy {
	return Policy{
		Name:      "store_write",
		Attempts:  4,
		Backoff:   ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: notCanceled,
		OnAttempt: logAttempt(log, "store retry"),
		OnExhaust: logExhaust(log, "store retries exhausted"),
	}
}

func notCanceled(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func logAttempt(log *zap.Logger, msg string) func(int, error) {
	return func(i int, err error) {
		if log != nil {
			log.Warn(msg, zap.Int("attempt", i+1), zap.Error(err))
		}
	}
}

func logExhaust(log *zap.Logger, msg string) func(error) {
	return func(err error) {
		if log != nil && !errors.Is(err, context.Canceled) {
			log.Error(msg, zap.Error(err))
		}
	}
}
