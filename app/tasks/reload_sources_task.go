package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ReloadSourcesTask picks up edits to the source files between runs.
type ReloadSourcesTask struct {
	Task
	sources Reloader
}

func NewReloadSourcesTask(sources Reloader) *ReloadSourcesTask {
	return &ReloadSourcesTask{
		Task: Task{
			ID:         uuid.NewString(),
			Type:       TaskTypeReloadSources,
			MaxRetries: ReloadMaxRetries,
		},
		sources: sources,
	}
}

func (t *ReloadSourcesTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.sources.Run(); err != nil {
		return fmt.Errorf("failed to reload sources: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"sources", t.sources.Count(),
		"duration", t.GetDuration())

	return nil
}
