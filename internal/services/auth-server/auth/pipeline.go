package auth

import (
	"context"
	"strings"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/token"
)

// Request carries the state of one protected call through the pipeline.
// Stages fill Claims and Account in order.
type Request struct {
	Bearer  string
	Claims  token.Claims
	Account *account.Account
}

func (r *Request) View() account.View {
	if r.Account == nil {
		return account.View{}
	}
	return r.Account.View()
}

// Stage is one guard of the pipeline. A non-nil error stops the pipeline.
type Stage func(ctx context.Context, r *Request) error

type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Then returns a new pipeline with stages appended; p is left unchanged.
func (p *Pipeline) Then(stages ...Stage) *Pipeline {
	next := make([]Stage, 0, len(p.stages)+len(stages))
	next = append(next, p.stages...)
	next = append(next, stages...)
	return &Pipeline{stages: next}
}

func (p *Pipeline) Run(ctx context.Context, r *Request) error {
	for _, s := range p.stages {
		if err := s(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
