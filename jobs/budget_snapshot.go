package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/procureflow/procureflow/internal/budget"
)

// BudgetSnapshotJob mirrors committed purchase order amounts into the
// budget lines of every department.
type BudgetSnapshotJob struct {
	service *budget.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewBudgetSnapshotJob constructs the job.
func NewBudgetSnapshotJob(service *budget.Service, logger *slog.Logger) *BudgetSnapshotJob {
	return &BudgetSnapshotJob{service: service, logger: logger, now: time.Now}
}

// Handle processes TaskBudgetSnapshot tasks.
func (j *BudgetSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BudgetSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	year := payload.FiscalYear
	if year == 0 {
		year = j.now().Year()
	}
	start := j.now()
	if err := j.service.SnapshotCommitments(ctx, year); err != nil {
		j.logger.Error("budget snapshot failed", slog.Int("fiscal_year", year), slog.Any("error", err))
		return err
	}
	j.logger.Info("budget snapshot complete",
		slog.Int("fiscal_year", year),
		slog.Duration("took", time.Since(start)))
	return nil
}
