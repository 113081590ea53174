package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backoff returns the wait after the given failed attempt (zero based).
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt up to Max, then spreads the result by
// +/- Jitter (a fraction, 0.2 means 20%).
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := float64(b.Base) * math.Exp2(float64(max(attempt, 0)))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// Policy describes how Do retries. A nil Retryable retries every error and a
// nil Backoff retries immediately.
type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

func (p Policy) label() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Next(attempt)
}

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Calls made through retry.Do, first attempts included.",
	}, []string{"name"})
	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_exhausted_total",
		Help: "Operations that ended with an error.",
	}, []string{"name"})
	doDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Wall time of retry.Do including waits.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. On ctx cancellation during a wait it returns ctx.Err().
func Do(ctx context.Context, fn func() error, p Policy) error {
	name := p.label()
	defer func(start time.Time) {
		doDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}(time.Now())

	span := trace.SpanFromContext(ctx)
	attempts := max(p.Attempts, 1)

	for i := range attempts {
		attemptsTotal.WithLabelValues(name).Inc()
		err := fn()
		if err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", name),
			attribute.Int("retry.attempt", i+1),
		))

		if i == attempts-1 || !p.retryable(err) {
			exhaustedTotal.WithLabelValues(name).Inc()
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}
		if err := sleep(ctx, p.wait(i)); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
