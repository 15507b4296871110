package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/metrics"
	"github.com/bergham123/anime-news-bot/app/notify"
)

// VideoWatcher announces the newest entry of a video channel feed once.
type VideoWatcher struct {
	fetcher  Fetcher
	parser   *feed.Parser
	notifier notify.Notifier
	videos   ledger.VideoRepository
	now      func() time.Time
}

func NewVideoWatcher(fetcher Fetcher, parser *feed.Parser, notifier notify.Notifier,
	videos ledger.VideoRepository, now func() time.Time) *VideoWatcher {
	if now == nil {
		now = time.Now
	}
	return &VideoWatcher{
		fetcher:  fetcher,
		parser:   parser,
		notifier: notifier,
		videos:   videos,
		now:      now,
	}
}

// Run reports whether a new video was announced.
func (w *VideoWatcher) Run(ctx context.Context, source *feed.Source) (bool, error) {
	data, err := w.fetcher.GetWithTimeout(ctx, source.URL, source.Settings.TimeoutDuration())
	if err != nil {
		return false, fmt.Errorf("failed to fetch video feed: %w", err)
	}

	_, entries, err := w.parser.Run(data)
	if err != nil {
		return false, fmt.Errorf("failed to parse video feed: %w", err)
	}
	if len(entries) == 0 {
		slog.Debug("Video feed has no entries", "feed", source.Name)
		return false, nil
	}

	latest := entries[0]
	videoID, ok := latest.VideoID.Get()
	if !ok {
		videoID, ok = latest.GUID.Get()
	}
	if !ok {
		return false, fmt.Errorf("latest video in %s has no id", source.Name)
	}

	last, found, err := w.videos.LastVideo(source.Name)
	if err != nil {
		return false, fmt.Errorf("failed to read last video: %w", err)
	}
	if found && last == videoID {
		slog.Debug("No new video", "feed", source.Name, "video_id", videoID)
		return false, nil
	}

	title := latest.Title.OrElse("")
	link := latest.Link.OrElse("")
	thumb := latest.MediaThumbnail.OrElse("")

	sent := w.notifier.SendVideo(ctx, title, link, thumb)
	metrics.Deliveries.WithLabelValues("video", metrics.Result(sent)).Inc()
	if !sent {
		return false, nil
	}

	if err := w.videos.RecordVideo(source.Name, videoID, w.now()); err != nil {
		slog.Warn("Failed to record sent video", "feed", source.Name, "video_id", videoID, "error", err)
	}

	slog.Info("Task completed",
		"type", "WatchVideo",
		"feed", source.Name,
		"video_id", videoID,
		"title", title)

	return true, nil
}
