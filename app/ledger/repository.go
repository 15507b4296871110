package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const timeLayout = time.RFC3339Nano

// Repository implements the ledger interfaces on top of the SQLite database.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) StartRun(id, source string, startedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO runs (id, source, started_at, status)
		VALUES (?, ?, ?, ?)
	`, id, source, startedAt.Format(timeLayout), string(RunStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func (r *Repository) FinishRun(id string, finishedAt time.Time, added int, status RunStatus, runErr string) error {
	res, err := r.db.Exec(`
		UPDATE runs SET finished_at = ?, added = ?, status = ?, error = NULLIF(?, '')
		WHERE id = ?
	`, finishedAt.Format(timeLayout), added, string(status), runErr, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (r *Repository) RecentRuns(limit int) ([]Run, error) {
	rows, err := r.db.Query(`
		SELECT id, source, started_at, finished_at, added, status, COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt sql.NullString
			status     string
		)
		if err := rows.Scan(&run.ID, &run.Source, &startedAt, &finishedAt, &run.Added, &status, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Status = RunStatus(status)
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(timeLayout, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse finished_at: %w", err)
			}
			run.FinishedAt = &t
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *Repository) RecordDelivery(d Delivery) error {
	_, err := r.db.Exec(`
		INSERT INTO deliveries (run_id, record_id, title, ok, delivered_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.RunID, d.RecordID, d.Title, d.OK, d.DeliveredAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (r *Repository) RunDeliveries(runID string) ([]Delivery, error) {
	rows, err := r.db.Query(`
		SELECT run_id, record_id, title, ok, delivered_at
		FROM deliveries
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var (
			d           Delivery
			deliveredAt string
		)
		if err := rows.Scan(&d.RunID, &d.RecordID, &d.Title, &d.OK, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		if d.DeliveredAt, err = time.Parse(timeLayout, deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to parse delivered_at: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// LastVideo returns the id of the last video sent for source.
func (r *Repository) LastVideo(source string) (string, bool, error) {
	var videoID string
	err := r.db.QueryRow(`SELECT video_id FROM video_state WHERE source = ?`, source).Scan(&videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get last video: %w", err)
	}
	return videoID, true, nil
}

func (r *Repository) RecordVideo(source, videoID string, sentAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO video_state (source, video_id, sent_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			video_id = excluded.video_id,
			sent_at = excluded.sent_at
	`, source, videoID, sentAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record video: %w", err)
	}
	return nil
}
