package api

import (
	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/store"
	"github.com/bergham123/anime-news-bot/app/tasks"
)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []article.Slim, permalink func(locator string) string) string
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// SourceLister is the read side of the source cache.
type SourceLister interface {
	Enabled(kind feed.SourceKind) []*feed.Source
	Count() int
}

// Site holds the public URLs used in links and the republished feed.
type Site struct {
	BaseURL     string
	ArticlePage string
	Version     string
}

type Handler struct {
	store     *store.DailyStore
	index     *index.GlobalIndex
	manifests *manifest.Builder
	generator GeneratorInterface
	sources   SourceLister
	reloader  tasks.Reloader
	runs      ledger.RunRepository
	scheduler tasks.TaskSchedulerInterface
	runner    tasks.Runner
	site      Site
}
