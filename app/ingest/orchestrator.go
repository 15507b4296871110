package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/media"
	"github.com/bergham123/anime-news-bot/app/metrics"
	"github.com/bergham123/anime-news-bot/app/notify"
	"github.com/bergham123/anime-news-bot/app/store"
)

const finishGrace = time.Minute

// Fetcher retrieves remote documents under a per-call timeout.
type Fetcher interface {
	GetWithTimeout(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Ledger records runs and deliveries. It is optional; failures never abort a run.
type Ledger interface {
	ledger.RunRepository
	ledger.DeliveryRepository
}

type Components struct {
	Fetcher    Fetcher
	Parser     *feed.Parser
	Normalizer *feed.Normalizer
	Filterer   *feed.Filterer
	Extractor  *feed.ContentExtractor
	Store      *store.DailyStore
	Manifests  *manifest.Builder
	Index      *index.GlobalIndex
	Pipeline   *media.Pipeline
	Assets     *media.AssetStore
	Notifier   notify.Notifier
	Ledger     Ledger

	AssetFormat  media.Format
	ImageWorkers int
	SiteBaseURL  string
	ArticlePage  string
	Now          func() time.Time
}

// Result summarizes one news run.
type Result struct {
	RunID     string
	Entries   int
	Added     int
	Skipped   int
	Delivered bool
	Duration  time.Duration
}

// Orchestrator runs the news pipeline for one source: fetch, normalize, store,
// derive images, rebuild manifests, index and notify.
type Orchestrator struct {
	c Components
}

func NewOrchestrator(c Components) *Orchestrator {
	if c.ImageWorkers <= 0 {
		c.ImageWorkers = 1
	}
	if c.AssetFormat == "" {
		c.AssetFormat = media.FormatWebP
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Orchestrator{c: c}
}

// stored is a record that made it into today's daily file.
type stored struct {
	record   article.Record
	loc      article.Locator
	original string // image URL as published by the source
	photo    []byte // delivery JPEG, nil when the image pipeline failed
}

// Run stores every new entry of source and then indexes and announces what was
// stored. A run cut short by ctx still finishes the records already written.
func (o *Orchestrator) Run(ctx context.Context, source *feed.Source) (Result, error) {
	started := time.Now()
	result := Result{RunID: uuid.NewString()}

	o.startRun(result.RunID, source.Name, o.c.Now())

	added, err := o.collect(ctx, source, &result)

	if len(added) > 0 {
		finishCtx, cancel := finishContext(ctx)
		o.deriveImages(finishCtx, added)
		o.rebuildManifests(added[0].record.CreatedAt)
		o.appendIndex(added)
		result.Delivered = o.deliver(finishCtx, result.RunID, added)
		cancel()
	}

	result.Added = len(added)
	result.Duration = time.Since(started)
	o.finishRun(result.RunID, result.Added, err)

	if err != nil {
		metrics.RunsTotal.WithLabelValues(source.Name, string(ledger.RunStatusFailed)).Inc()
		return result, err
	}

	metrics.RunsTotal.WithLabelValues(source.Name, string(ledger.RunStatusSucceeded)).Inc()
	metrics.RunDuration.WithLabelValues(source.Name).Observe(result.Duration.Seconds())

	slog.Info("Task completed",
		"type", "IngestNews",
		"feed", source.Name,
		"run_id", result.RunID,
		"duration", result.Duration,
		"entries", result.Entries,
		"new", result.Added,
		"skipped", result.Skipped,
		"delivered", result.Delivered)

	return result, nil
}

// finishContext returns ctx while it is live. Once ctx is done, stored records
// still get a short grace period to be derived and announced.
func finishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), finishGrace)
}

// collect fetches the source and appends every new, accepted entry to today's daily file.
func (o *Orchestrator) collect(ctx context.Context, source *feed.Source, result *Result) ([]stored, error) {
	data, err := o.c.Fetcher.GetWithTimeout(ctx, source.URL, source.Settings.TimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	_, entries, err := o.c.Parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	if limit := source.Settings.MaxItems; limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	result.Entries = len(entries)

	var added []stored
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		record := o.c.Normalizer.Run(entry)
		path := o.c.Store.DailyPath(record.CreatedAt)

		if o.c.Store.Has(path, record.ID) {
			o.skip(source.Name, "duplicate", result)
			continue
		}

		if rejected, reason := o.c.Filterer.Run(record, source.Filters); rejected {
			slog.Debug("Entry filtered", "feed", source.Name, "title", record.Title, "reason", reason)
			o.skip(source.Name, "filtered", result)
			continue
		}

		if source.Settings.ExtractContent && record.DescriptionFull == "" {
			if link, ok := entry.Link.Get(); ok {
				record.DescriptionFull = o.extractText(ctx, source, link)
			}
		}

		res, err := o.c.Store.AppendIfNew(path, record)
		if err != nil {
			slog.Error("Failed to store record", "feed", source.Name, "id", record.ID, "error", err)
			o.skip(source.Name, "failed", result)
			continue
		}
		if !res.Inserted {
			o.skip(source.Name, "duplicate", result)
			continue
		}

		metrics.ArticlesAdded.WithLabelValues(source.Name).Inc()
		added = append(added, stored{
			record:   record,
			loc:      article.Locator{Path: path, Index: res.Index},
			original: record.ImageURL(),
		})
	}

	return added, nil
}

func (o *Orchestrator) skip(source, reason string, result *Result) {
	result.Skipped++
	metrics.ArticlesSkipped.WithLabelValues(source, reason).Inc()
}

func (o *Orchestrator) extractText(ctx context.Context, source *feed.Source, link string) string {
	if o.c.Extractor == nil {
		return ""
	}

	page, err := o.c.Fetcher.GetWithTimeout(ctx, link, source.Settings.TimeoutDuration())
	if err != nil {
		slog.Warn("Failed to fetch article page", "feed", source.Name, "url", link, "error", err)
		return ""
	}

	text, err := o.c.Extractor.Run(page, link)
	if err != nil {
		slog.Warn("Failed to extract article text", "feed", source.Name, "url", link, "error", err)
		return ""
	}
	return text
}

// deriveImages renders every stored image concurrently, then patches the daily
// file one record at a time. A record whose image cannot be derived keeps its
// original URL.
func (o *Orchestrator) deriveImages(ctx context.Context, added []stored) {
	urls := make([]string, len(added))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.c.ImageWorkers)

	for i := range added {
		if !added[i].record.HasImage() || o.c.Pipeline == nil {
			continue
		}
		g.Go(func() error {
			urls[i], added[i].photo = o.deriveImage(gctx, added[i].record)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range added {
		if urls[i] == "" || urls[i] == s.record.ImageURL() {
			continue
		}

		patched := s.record.WithImage(urls[i], o.c.Now())
		if err := o.c.Store.ReplaceAt(s.loc.Path, s.loc.Index, patched); err != nil {
			slog.Error("Failed to patch record image", "id", s.record.ID, "error", err)
			continue
		}
		added[i].record = patched
	}
}

// deriveImage returns the archived asset URL and the delivery JPEG. Empty URL
// means the original reference stays.
func (o *Orchestrator) deriveImage(ctx context.Context, record article.Record) (string, []byte) {
	original := record.ImageURL()

	img, err := o.c.Pipeline.Prepare(ctx, original)
	if err != nil {
		slog.Warn("Failed to prepare image, keeping original", "id", record.ID, "url", original, "error", err)
		metrics.ImagesProcessed.WithLabelValues("fallback").Inc()
		return "", nil
	}

	photo, err := o.c.Pipeline.Encode(img, media.FormatJPEG)
	if err != nil {
		slog.Warn("Failed to encode delivery image", "id", record.ID, "error", err)
		photo = nil
	}

	if o.c.Assets == nil {
		return "", photo
	}

	if asset, ok := o.c.Assets.Lookup(record.Title, original, record.CreatedAt, o.c.AssetFormat); ok {
		metrics.ImagesProcessed.WithLabelValues("reused").Inc()
		return asset.URL, photo
	}

	data, err := o.c.Pipeline.Encode(img, o.c.AssetFormat)
	if err != nil {
		slog.Warn("Failed to encode asset, keeping original", "id", record.ID, "error", err)
		metrics.ImagesProcessed.WithLabelValues("fallback").Inc()
		return "", photo
	}

	asset, err := o.c.Assets.Persist(record.Title, original, data, record.CreatedAt, o.c.AssetFormat)
	if err != nil {
		slog.Error("Failed to persist asset, keeping original", "id", record.ID, "error", err)
		metrics.ImagesProcessed.WithLabelValues("fallback").Inc()
		return "", photo
	}

	outcome := "reused"
	if asset.CreatedNew {
		outcome = "created"
	}
	metrics.ImagesProcessed.WithLabelValues(outcome).Inc()

	return asset.URL, photo
}

func (o *Orchestrator) rebuildManifests(day time.Time) {
	if o.c.Manifests == nil {
		return
	}
	if _, err := o.c.Manifests.RebuildMonth(day.Year(), int(day.Month())); err != nil {
		slog.Error("Failed to rebuild month manifest", "year", day.Year(), "month", int(day.Month()), "error", err)
	}
	if _, err := o.c.Manifests.RebuildYear(day.Year()); err != nil {
		slog.Error("Failed to rebuild year manifest", "year", day.Year(), "error", err)
	}
}

func (o *Orchestrator) appendIndex(added []stored) {
	if o.c.Index == nil {
		return
	}

	slims := make([]article.Slim, 0, len(added))
	for _, s := range added {
		slims = append(slims, article.ToSlim(s.record, s.loc))
	}

	if err := o.c.Index.Append(slims); err != nil {
		slog.Error("Failed to append to global index", "records", len(slims), "error", err)
		return
	}

	if pag, err := o.c.Index.Pagination(); err == nil {
		metrics.IndexArticles.Set(float64(pag.TotalArticles))
	}
}

func (o *Orchestrator) deliver(ctx context.Context, runID string, added []stored) bool {
	if o.c.Notifier == nil {
		return false
	}

	posts := make([]notify.Post, 0, len(added))
	for _, s := range added {
		posts = append(posts, notify.Post{
			Title:    s.record.Title,
			Caption:  o.caption(s),
			Photo:    s.photo,
			PhotoURL: s.original,
		})
	}

	ok := o.c.Notifier.Publish(ctx, posts)
	metrics.Deliveries.WithLabelValues("news", metrics.Result(ok)).Inc()

	if o.c.Ledger != nil {
		now := o.c.Now()
		for _, s := range added {
			err := o.c.Ledger.RecordDelivery(ledger.Delivery{
				RunID:       runID,
				RecordID:    s.record.ID,
				Title:       s.record.Title,
				OK:          ok,
				DeliveredAt: now,
			})
			if err != nil {
				slog.Warn("Failed to record delivery", "run_id", runID, "id", s.record.ID, "error", err)
			}
		}
	}

	return ok
}

func (o *Orchestrator) caption(s stored) string {
	if o.c.SiteBaseURL == "" {
		return s.record.Title
	}
	return s.record.Title + "\n" + article.Permalink(o.c.SiteBaseURL, o.c.ArticlePage, s.loc)
}

func (o *Orchestrator) startRun(id, source string, at time.Time) {
	if o.c.Ledger == nil {
		return
	}
	if err := o.c.Ledger.StartRun(id, source, at); err != nil {
		slog.Warn("Failed to record run start", "run_id", id, "error", err)
	}
}

func (o *Orchestrator) finishRun(id string, added int, runErr error) {
	if o.c.Ledger == nil {
		return
	}

	status, msg := ledger.RunStatusSucceeded, ""
	if runErr != nil {
		status, msg = ledger.RunStatusFailed, runErr.Error()
	}

	if err := o.c.Ledger.FinishRun(id, o.c.Now(), added, status, msg); err != nil {
		slog.Warn("Failed to record run finish", "run_id", id, "error", err)
	}
}
