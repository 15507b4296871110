package tasks

import (
	"context"
)

// TaskSchedulerInterface is what the serve command and the API need from the scheduler.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Runner performs one full ingest pass over all enabled sources.
type Runner interface {
	Run(ctx context.Context) error
}

// Reloader re-reads the source configuration files.
type Reloader interface {
	Run() error
	Count() int
}
