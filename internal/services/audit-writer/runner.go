package auditwriter

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	kafkax "github.com/NordCoder/Gatekeeper/internal/repository/kafka"
)

// Source is the subscription the runner drains; *kafkax.Consumer satisfies it.
type Source interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

type Runner struct {
	log *zap.Logger
	src Source
	h   *Handler
}

func NewRunner(log *zap.Logger, src Source, h *Handler) *Runner {
	return &Runner{log: log, src: src, h: h}
}

// Run blocks until ctx is done or the source fails.
func (r *Runner) Run(ctx context.Context) error {
	err := r.src.Consume(ctx, kafkax.JSONHandler[audit.Event](r.h.Handle))
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}
