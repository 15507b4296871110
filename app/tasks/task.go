package tasks

import (
	"context"
	"time"
)

type TaskType string

const (
	TaskTypeIngest        TaskType = "ingest"
	TaskTypeReloadSources TaskType = "reload_sources"
)

// Retry budgets. An ingest pass is retried for transient feed and network
// failures; a source file that fails to parse stays broken until someone edits it.
const (
	IngestMaxRetries = 3
	ReloadMaxRetries = 1
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by ingest and reload tasks. ID is a uuid
// so a retried pass can be followed across log lines.
type Task struct {
	ID         string
	Type       TaskType
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Start stamps the current attempt; a retry restarts the clock.
func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
