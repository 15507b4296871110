package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bergham123/anime-news-bot/app/feed"
)

// dueSlack lets a source whose slot is about to open ride along with the current pass.
const dueSlack = time.Minute

// ErrBusy is returned when another run holds the storage lock.
var ErrBusy = errors.New("another run is in progress")

// Lock takes the advisory run lock at path without blocking.
func Lock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to release run lock", "path", path, "error", err)
		}
	}, nil
}

// Sources lists enabled sources per kind.
type Sources interface {
	Enabled(kind feed.SourceKind) []*feed.Source
}

// Runner performs one full pass: every enabled news source, then every video
// source. A source fetched less than its refresh interval ago is skipped.
type Runner struct {
	sources  Sources
	news     *Orchestrator
	videos   *VideoWatcher
	lockPath string
	now      func() time.Time

	mu          sync.Mutex
	nextFetchAt map[string]time.Time
}

func NewRunner(sources Sources, news *Orchestrator, videos *VideoWatcher, lockPath string) *Runner {
	return &Runner{
		sources:     sources,
		news:        news,
		videos:      videos,
		lockPath:    lockPath,
		now:         time.Now,
		nextFetchAt: make(map[string]time.Time),
	}
}

// due reports whether source should be fetched now and, if so, books its next slot.
func (r *Runner) due(source *feed.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if next, ok := r.nextFetchAt[source.Name]; ok && now.Add(dueSlack).Before(next) {
		slog.Debug("Source not due for refresh yet", "feed", source.Name, "next_fetch_at", next)
		return false
	}

	interval := time.Duration(source.Settings.RefreshInterval) * time.Second
	r.nextFetchAt[source.Name] = now.Add(interval)
	return true
}

// release makes a failed source due again on the next pass.
func (r *Runner) release(source *feed.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nextFetchAt, source.Name)
}

// Run processes each source in turn. A failing source is logged and does not
// stop the others; the joined error reports all of them.
func (r *Runner) Run(ctx context.Context) error {
	unlock, err := Lock(r.lockPath)
	if err != nil {
		return err
	}
	defer unlock()

	var errs []error

	for _, source := range r.sources.Enabled(feed.SourceKindNews) {
		if !r.due(source) {
			continue
		}
		if _, err := r.news.Run(ctx, source); err != nil {
			slog.Error("News run failed", "feed", source.Name, "error", err)
			r.release(source)
			errs = append(errs, fmt.Errorf("%s: %w", source.Name, err))
		}
	}

	if r.videos != nil {
		for _, source := range r.sources.Enabled(feed.SourceKindVideo) {
			if !r.due(source) {
				continue
			}
			if _, err := r.videos.Run(ctx, source); err != nil {
				slog.Error("Video run failed", "feed", source.Name, "error", err)
				r.release(source)
				errs = append(errs, fmt.Errorf("%s: %w", source.Name, err))
			}
		}
	}

	return errors.Join(errs...)
}
