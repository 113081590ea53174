package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/outbox"
	"github.com/NordCoder/Gatekeeper/internal/obs"
)

var (
	relayPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_picked_total", Help: "Outbox messages claimed by the relay.",
	})
	relayDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Outbox messages delivered.",
	})
	relayFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Outbox pick, dispatch and mark failures.",
	})
	relayPass = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_tick_duration_seconds", Help: "Duration of one relay pass.",
		Buckets: prometheus.DefBuckets,
	})
	relayBatch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size", Help: "Messages claimed by the latest pass.",
	})
)

// RunnerConfig controls the relay. Zero Workers means one.
type RunnerConfig struct {
	Workers       int
	BatchSize     int
	Interval      time.Duration
	InProgressTTL time.Duration
}

// Runner relays pending outbox messages to their handlers. Delivery is at
// least once: a message whose handler fails stays pending and is claimed
// again after InProgressTTL.
type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler
	cfg      RunnerConfig

	tracer trace.Tracer
	prop   propagation.TextMapPropagator
	wg     sync.WaitGroup
}

func NewRunner(log *zap.Logger, repo outbox.Repository, dispatch outbox.GlobalHandler, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Runner{
		log:      log,
		repo:     repo,
		dispatch: dispatch,
		cfg:      cfg,
		tracer:   otel.Tracer("outbox.relay"),
		prop:     otel.GetTextMapPropagator(),
	}
}

// Start launches the workers. They stop when ctx is done; Wait blocks until then.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(r.cfg.Workers)
	for id := range r.cfg.Workers {
		go r.loop(ctx, id)
	}
}

func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) loop(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.log.With(zap.Int("worker", id))
	log.Info("outbox relay started", zap.Duration("interval", r.cfg.Interval))

	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("outbox relay stopped")
			return
		case <-t.C:
			r.pass(ctx)
		}
	}
}

// pass claims one batch, dispatches every message and acknowledges the
// delivered ones in a single update.
func (r *Runner) pass(ctx context.Context) {
	defer func(start time.Time) { relayPass.Observe(time.Since(start).Seconds()) }(time.Now())

	ctx, span := r.tracer.Start(ctx, "outbox.pass", trace.WithAttributes(
		attribute.Int("outbox.batch_size", r.cfg.BatchSize),
	))
	defer span.End()

	batch, err := r.repo.PickBatch(ctx, r.cfg.BatchSize, r.cfg.InProgressTTL)
	if err != nil {
		span.RecordError(err)
		relayFailed.Inc()
		obs.WithTrace(ctx, r.log).Error("outbox pick failed", zap.Error(err))
		return
	}
	relayPicked.Add(float64(len(batch)))
	relayBatch.Set(float64(len(batch)))

	var delivered []string
	for _, m := range batch {
		if r.deliver(m) {
			delivered = append(delivered, m.IdempotencyKey)
		}
	}
	if len(delivered) == 0 {
		return
	}
	if err := r.repo.MarkSuccess(ctx, delivered); err != nil {
		span.RecordError(err)
		relayFailed.Inc()
		obs.WithTrace(ctx, r.log).Error("outbox mark failed", zap.Int("count", len(delivered)), zap.Error(err))
	}
}

// deliver runs the handler under the trace that enqueued m.
func (r *Runner) deliver(m outbox.Message) bool {
	parent := r.prop.Extract(context.Background(), propagation.MapCarrier{
		"traceparent": m.Traceparent,
		"tracestate":  m.Tracestate,
		"baggage":     m.Baggage,
	})
	ctx, span := r.tracer.Start(parent, "outbox.deliver", trace.WithAttributes(
		attribute.String("outbox.key", m.IdempotencyKey),
		attribute.Int("outbox.kind", int(m.Kind)),
	))
	defer span.End()

	err := r.handle(ctx, m)
	if err != nil {
		span.RecordError(err)
		relayFailed.Inc()
		obs.WithTrace(ctx, r.log).Error("outbox delivery failed",
			zap.String("key", m.IdempotencyKey), zap.Int("kind", int(m.Kind)), zap.Error(err))
		return false
	}
	relayDelivered.Inc()
	return true
}

func (r *Runner) handle(ctx context.Context, m outbox.Message) error {
	h, err := r.dispatch(m.Kind)
	if err != nil {
		return err
	}
	return h(ctx, m)
}
