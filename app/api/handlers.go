package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/fault"
	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/store"
	"github.com/bergham123/anime-news-bot/app/tasks"
)

const (
	feedItems      = 50
	maxRecentRuns  = 100
	defaultRunList = 20
)

// NewHandler wires the read API. reloader, runs, scheduler and runner may be nil;
// the endpoints that need them then answer 503.
func NewHandler(dailyStore *store.DailyStore, globalIndex *index.GlobalIndex, manifests *manifest.Builder,
	sources SourceLister, reloader tasks.Reloader, runs ledger.RunRepository,
	scheduler tasks.TaskSchedulerInterface, runner tasks.Runner, site Site) *Handler {
	return &Handler{
		store:     dailyStore,
		index:     globalIndex,
		manifests: manifests,
		generator: feed.NewGenerator(),
		sources:   sources,
		reloader:  reloader,
		runs:      runs,
		scheduler: scheduler,
		runner:    runner,
		site:      site,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   h.site.Version,
	}

	if h.sources != nil {
		health["loaded_sources"] = h.sources.Count()
	}

	if stats, found, err := h.index.Stats(); err == nil && found {
		health["last_update"] = stats.LastUpdate
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	pag, err := h.index.Pagination()
	if err != nil {
		slog.Error("Index error", "operation", "get_pagination", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Index unreadable"})
		return
	}

	stats, found, err := h.index.Stats()
	if err != nil {
		slog.Error("Index error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Index unreadable"})
		return
	}

	response := gin.H{"pagination": pag, "stats": nil}
	if found {
		response["stats"] = stats
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetIndexPage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	pag, err := h.index.Pagination()
	if err != nil {
		slog.Error("Index error", "operation", "get_pagination", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Index unreadable"})
		return
	}
	if n > len(pag.Files) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}

	items, err := h.index.Page(n)
	if err != nil {
		slog.Error("Index error", "operation", "get_page", "page", n, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Index unreadable"})
		return
	}

	c.Header("X-Total-Pages", strconv.Itoa(len(pag.Files)))
	c.JSON(http.StatusOK, items)
}

// GetArticle resolves a permalink locator to the full stored record.
func (h *Handler) GetArticle(c *gin.Context) {
	loc, err := article.ParseLocator(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.withinStore(loc.Path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path outside the data directory"})
		return
	}

	record, err := h.store.Get(loc)
	if err != nil {
		if fault.Is(err, fault.CorruptState) {
			slog.Error("Store error", "operation", "get_article", "path", loc.String(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Daily file unreadable"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) withinStore(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(h.store.Root()), filepath.Clean(filepath.FromSlash(path)))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (h *Handler) GetYearManifest(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	m, found, err := h.manifests.LoadYear(year)
	h.writeManifest(c, m, found, err)
}

func (h *Handler) GetMonthManifest(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month"})
		return
	}

	m, found, err := h.manifests.LoadMonth(year, month)
	h.writeManifest(c, m, found, err)
}

func parseYear(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1000 || year > 9999 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
		return 0, false
	}
	return year, true
}

func (h *Handler) writeManifest(c *gin.Context, m any, found bool, err error) {
	if err != nil {
		slog.Error("Manifest error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Manifest unreadable"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Manifest not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetFeed republishes the newest index entries as RSS.
func (h *Handler) GetFeed(c *gin.Context) {
	items, err := h.index.Latest(feedItems)
	if err != nil {
		slog.Error("Index error", "operation", "get_latest", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	var permalink func(string) string
	if h.site.BaseURL != "" {
		permalink = func(locator string) string {
			loc, err := article.ParseLocator(locator)
			if err != nil {
				return ""
			}
			return article.Permalink(h.site.BaseURL, h.site.ArticlePage, loc)
		}
	}

	channel := feed.Channel{
		Title:       "أخبار الأنمي",
		Link:        h.site.BaseURL,
		Description: "Latest anime news",
		SelfLink:    selfLink(c),
		Version:     h.site.Version,
	}

	rss := h.generator.Run(channel, items, permalink)

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.String(http.StatusOK, rss)
}

func selfLink(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}

func (h *Handler) APIListSources(c *gin.Context) {
	sources := make([]map[string]interface{}, 0)

	for _, kind := range []feed.SourceKind{feed.SourceKindNews, feed.SourceKindVideo} {
		for _, source := range h.sources.Enabled(kind) {
			sources = append(sources, map[string]interface{}{
				"name":             source.Name,
				"url":              source.URL,
				"kind":             source.Kind,
				"max_items":        source.Settings.MaxItems,
				"refresh_interval": (time.Duration(source.Settings.RefreshInterval) * time.Second).String(),
				"extract_content":  source.Settings.ExtractContent,
				"filters":          len(source.Filters),
			})
		}
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger not available"})
		return
	}

	limit := defaultRunList
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxRecentRuns)
	}

	runs, err := h.runs.RecentRuns(limit)
	if err != nil {
		slog.Error("Database error", "operation", "recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// APITriggerRun queues a source reload and an immediate ingest pass.
func (h *Handler) APITriggerRun(c *gin.Context) {
	if h.scheduler == nil || h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not running"})
		return
	}

	queued := []gin.H{}

	if h.reloader != nil {
		reload := tasks.NewReloadSourcesTask(h.reloader)
		if err := h.scheduler.EnqueueTask(reload); err != nil {
			slog.Error("Error enqueueing reload task", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to enqueue reload task",
				"details": err.Error(),
			})
			return
		}
		queued = append(queued, gin.H{"id": reload.ID, "type": reload.Type})
	}

	run := tasks.NewIngestTask(h.runner)
	if err := h.scheduler.EnqueueTask(run); err != nil {
		slog.Error("Error enqueueing ingest task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue ingest task",
			"details": err.Error(),
		})
		return
	}
	queued = append(queued, gin.H{"id": run.ID, "type": run.Type})

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Ingest run enqueued",
		"tasks":   queued,
	})
}
