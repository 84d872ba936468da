package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBudgetSnapshot refreshes budget commitment figures.
	TaskBudgetSnapshot = "budget:snapshot"
)

// BudgetSnapshotPayload selects the fiscal year to snapshot. Zero means
// the current year.
type BudgetSnapshotPayload struct {
	FiscalYear int `json:"fiscal_year"`
}

// NewBudgetSnapshotTask constructs an Asynq task.
func NewBudgetSnapshotTask(fiscalYear int) (*asynq.Task, error) {
	data, err := json.Marshal(BudgetSnapshotPayload{FiscalYear: fiscalYear})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetSnapshot, data), nil
}
