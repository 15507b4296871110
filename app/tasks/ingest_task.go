package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bergham123/anime-news-bot/app/ingest"
)

type IngestTask struct {
	Task
	runner Runner
}

func NewIngestTask(runner Runner) *IngestTask {
	return &IngestTask{
		Task: Task{
			ID:         uuid.NewString(),
			Type:       TaskTypeIngest,
			MaxRetries: IngestMaxRetries,
		},
		runner: runner,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.runner.Run(ctx)
	if errors.Is(err, ingest.ErrBusy) {
		slog.Warn("Ingest skipped, another run holds the lock", "id", t.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to ingest: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"id", t.ID,
		"duration", t.GetDuration())

	return nil
}
