package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bergham123/anime-news-bot/app/cfg"
	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ingest"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/media"
	"github.com/bergham123/anime-news-bot/app/notify"
	"github.com/bergham123/anime-news-bot/app/store"
)

type components struct {
	cfg       *cfg.Cfg
	sources   *feed.SourceCache
	store     *store.DailyStore
	manifests *manifest.Builder
	index     *index.GlobalIndex
	db        *ledger.DB
	repo      *ledger.Repository
	runner    *ingest.Runner
}

func newComponents(c *cfg.Cfg) (*components, error) {
	format, err := media.ParseFormat(c.AssetFormat)
	if err != nil {
		return nil, err
	}

	sources := feed.NewSourceCache(c.SourcesDir)
	if err := sources.Run(); err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	slog.Info("Sources loaded", "dir", c.SourcesDir, "count", sources.Count())

	comp := &components{
		cfg:       c,
		sources:   sources,
		store:     store.NewDailyStore(c.DataDir),
		manifests: manifest.NewBuilder(c.DataDir),
		index:     index.NewGlobalIndex(c.IndexDir, c.PageSize, c.Now),
	}

	db, err := ledger.Open(c.LedgerPath())
	if err != nil {
		slog.Warn("Ledger unavailable, runs will not be recorded", "path", c.LedgerPath(), "error", err)
	} else {
		comp.db = db
		comp.repo = ledger.NewRepository(db)
	}

	fetcher := feed.NewFetcher(&http.Client{Timeout: c.HTTPTimeout}, c.UserAgent, c.HTTPTimeout)
	parser := feed.NewParser()
	notifier := newNotifier(c)

	orchestrator := ingest.NewOrchestrator(ingest.Components{
		Fetcher:    fetcher,
		Parser:     parser,
		Normalizer: feed.NewNormalizer(c.Now),
		Filterer:   feed.NewFilterer(),
		Extractor:  feed.NewContentExtractor(),
		Store:      comp.store,
		Manifests:  comp.manifests,
		Index:      comp.index,
		Pipeline: media.NewPipeline(fetcher, media.Options{
			MaxWidth:       c.MaxImageWidth,
			MaxHeight:      c.MaxImageHeight,
			JPEGQuality:    c.JPEGQuality,
			WebPQuality:    c.WebPQuality,
			LogoPath:       c.LogoPath,
			LogoMargin:     c.LogoMargin,
			LogoSmallRatio: c.LogoSmallRatio,
			LogoLargeRatio: c.LogoLargeRatio,
			LogoBreakpoint: c.LogoBreakpoint,
		}),
		Assets:       media.NewAssetStore(c.AssetsDir, c.PublicBaseURL, c.Branch),
		Notifier:     notifier,
		Ledger:       comp.ledger(),
		AssetFormat:  format,
		ImageWorkers: c.ImageWorkers,
		SiteBaseURL:  c.SiteBaseURL,
		ArticlePage:  c.ArticlePage,
		Now:          c.Now,
	})

	var watcher *ingest.VideoWatcher
	if comp.repo != nil {
		watcher = ingest.NewVideoWatcher(fetcher, parser, notifier, comp.repo, c.Now)
	} else {
		slog.Warn("Video sources skipped, the ledger holds the last sent video")
	}

	comp.runner = ingest.NewRunner(sources, orchestrator, watcher, c.LockPath())

	return comp, nil
}

func newNotifier(c *cfg.Cfg) notify.Notifier {
	if c.DryRun {
		slog.Info("Dry run, notifications disabled")
		return notify.Noop{}
	}
	return notify.NewNotifier(c.TelegramAPI, c.TelegramToken, c.TelegramChatID, c.HTTPTimeout)
}

// ledger returns the repository as an interface, nil when the ledger is unavailable.
func (comp *components) ledger() ingest.Ledger {
	if comp.repo == nil {
		return nil
	}
	return comp.repo
}

func (comp *components) runs() ledger.RunRepository {
	if comp.repo == nil {
		return nil
	}
	return comp.repo
}

func (comp *components) Close() {
	if comp.db == nil {
		return
	}
	if err := comp.db.Close(); err != nil {
		slog.Warn("Failed to close ledger", "error", err)
	}
}
