package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixeltools/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// UpdateProgress records percent only when it moves the job forward.
	UpdateProgress(ctx context.Context, id string, percent int) error
	Complete(ctx context.Context, id string, outputs []domain.VariantOutput) (domain.Job, error)
	Fail(ctx context.Context, id, reason string) (domain.Job, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, entry domain.UsageLog) error
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
