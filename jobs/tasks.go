package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every regwatch task runs on.
	QueueDefault = "default"
	// TaskFiltersWarmup invalidates the catalog cache and reloads filter definitions.
	TaskFiltersWarmup = "filters:warmup"
	// TaskDashboardWarmup reloads the dashboard aggregates.
	TaskDashboardWarmup = "dashboard:warmup"
)

// TaskTypes lists the task types the worker understands.
var TaskTypes = []string{TaskFiltersWarmup, TaskDashboardWarmup}

// FiltersWarmupPayload narrows a filters warmup to some list endpoints. Empty means all.
type FiltersWarmupPayload struct {
	Endpoints  []string `json:"endpoints,omitempty"`
	Invalidate bool     `json:"invalidate"`
}

// DashboardWarmupPayload carries no options today; it exists so the wire shape can grow.
type DashboardWarmupPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewFiltersWarmupTask builds a filters warmup task.
func NewFiltersWarmupTask(payload FiltersWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiltersWarmup, data, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}

// NewDashboardWarmupTask builds a dashboard warmup task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data, asynq.MaxRetry(3), asynq.Timeout(time.Minute)), nil
}

// NewTask builds a task by type with an empty payload, for the CLI.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskFiltersWarmup:
		return NewFiltersWarmupTask(FiltersWarmupPayload{Invalidate: true})
	case TaskDashboardWarmup:
		return NewDashboardWarmupTask(DashboardWarmupPayload{RequestedAt: time.Now().UTC()})
	default:
		return nil, ErrUnknownTask
	}
}
