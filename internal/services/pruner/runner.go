package pruner

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	prunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pruner_refresh_tokens_pruned_total", Help: "Expired refresh records deleted",
	})
	purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pruner_outbox_purged_total", Help: "Delivered outbox messages deleted",
	})
	pruneErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pruner_errors_total", Help: "Errors in pruner loop",
	})
	pruneLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "pruner_loop_duration_seconds", Help: "Pruner tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Config struct {
	Tick            time.Duration `mapstructure:"tick"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	OutboxRetention time.Duration `mapstructure:"outbox_retention"`
}

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg Config
}

func New(log *zap.Logger, uc *Usecase, cfg Config) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Hour
	}
	return &Runner{Log: log, UC: uc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	n, err := r.UC.Tick(ctx, r.Cfg.BatchLimit)
	if err != nil {
		pruneErrors.Inc()
		r.Log.Warn("prune tick error", zap.Error(err))
	}
	if n > 0 {
		prunedTotal.Add(float64(n))
		r.Log.Debug("pruned refresh tokens", zap.Int("count", n))
	}

	purged, err := r.UC.PurgeOutbox(ctx, r.Cfg.BatchLimit)
	if err != nil {
		pruneErrors.Inc()
		r.Log.Warn("outbox purge error", zap.Error(err))
	}
	purgedTotal.Add(float64(purged))
	pruneLoopDur.Observe(time.Since(start).Seconds())
}

// Run prunes once immediately and then every Cfg.Tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
