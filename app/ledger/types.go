package ledger

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Added      int
	Status     RunStatus
	Error      string
}

type Delivery struct {
	RunID       string
	RecordID    string
	Title       string
	OK          bool
	DeliveredAt time.Time
}

type RunRepository interface {
	StartRun(id, source string, startedAt time.Time) error
	FinishRun(id string, finishedAt time.Time, added int, status RunStatus, runErr string) error
	RecentRuns(limit int) ([]Run, error)
}

type DeliveryRepository interface {
	RecordDelivery(d Delivery) error
	RunDeliveries(runID string) ([]Delivery, error)
}

type VideoRepository interface {
	LastVideo(source string) (string, bool, error)
	RecordVideo(source, videoID string, sentAt time.Time) error
}
