package auditwriter

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/obs/retry"
)

var (
	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_writer_events_total",
		Help: "Auth events consumed, by outcome.",
	}, []string{"outcome"})
)

// Handler persists consumed auth events. Inserts are idempotent on the event
// id, so redelivery after a failed commit is harmless.
type Handler struct {
	repo audit.Repo
	pol  retry.Policy
	log  *zap.Logger
}

func NewHandler(repo audit.Repo, pol retry.Policy, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repo, pol: pol, log: log}
}

func (h *Handler) Handle(ctx context.Context, key []byte, ev audit.Event) error {
	if ev.ID == "" || ev.Action == "" || ev.At.IsZero() {
		// Malformed events would block the partition forever if retried.
		eventsConsumed.WithLabelValues("skipped").Inc()
		obs.WithTrace(ctx, h.log).Warn("skip malformed auth event",
			zap.ByteString("key", key), zap.String("id", ev.ID), zap.String("action", string(ev.Action)))
		return nil
	}

	err := retry.Do(ctx, func() error { return h.repo.Insert(ctx, &ev) }, h.pol)
	if err != nil {
		eventsConsumed.WithLabelValues("error").Inc()
		return fmt.Errorf("insert audit event %s: %w", ev.ID, err)
	}
	eventsConsumed.WithLabelValues("stored").Inc()
	obs.WithTrace(ctx, h.log).Debug("auth event stored",
		zap.String("id", ev.ID), zap.String("action", string(ev.Action)), zap.String("account_id", ev.AccountID))
	return nil
}
