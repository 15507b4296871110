package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/fault"
	"github.com/bergham123/anime-news-bot/app/fsutil"
)

const (
	DefaultPageSize = 500

	paginationFile = "pagination.json"
	statsFile      = "stats.json"
)

type Pagination struct {
	TotalArticles int      `json:"total_articles"`
	Files         []string `json:"files"`
}

type Stats struct {
	TotalArticles int       `json:"total_articles"`
	AddedToday    int       `json:"added_today"`
	LastUpdate    time.Time `json:"last_update"`
}

// GlobalIndex is the rotating, size-bounded slim index plus running statistics.
type GlobalIndex struct {
	dir      string
	pageSize int
	now      func() time.Time
}

func NewGlobalIndex(dir string, pageSize int, now func() time.Time) *GlobalIndex {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &GlobalIndex{dir: dir, pageSize: pageSize, now: now}
}

func PageName(n int) string {
	return fmt.Sprintf("index_%d.json", n)
}

// Append adds a batch of slim records to the current page. A page already at
// capacity is rotated before anything is added; a batch larger than the free
// room fills the page to capacity and continues on fresh pages, so every page
// but the last holds exactly pageSize records.
//
// Fresh pages are written first, then the current page, then pagination. A
// failed write leaves pagination and the pages it lists as they were.
func (g *GlobalIndex) Append(records []article.Slim) error {
	if len(records) == 0 {
		return nil
	}

	pag := g.loadPagination()
	files := slices.Clone(pag.Files)
	if len(files) == 0 {
		files = append(files, PageName(1))
	}

	current := files[len(files)-1]
	original := g.loadPage(current)
	items := slices.Clone(original)

	take := min(max(g.pageSize-len(items), 0), len(records))
	items = append(items, records[:take]...)

	var fresh [][]article.Slim
	for rest := records[take:]; len(rest) > 0; {
		n := min(g.pageSize, len(rest))
		fresh = append(fresh, rest[:n])
		rest = rest[n:]
	}

	base := len(files)
	for i, page := range fresh {
		name := PageName(base + i + 1)
		if err := fsutil.WriteJSON(g.path(name), page); err != nil {
			return fmt.Errorf("failed to write index page %s: %w", name, err)
		}
		files = append(files, name)
	}

	currentChanged := len(items) != len(original)
	if currentChanged {
		if err := fsutil.WriteJSON(g.path(current), items); err != nil {
			return fmt.Errorf("failed to write index page %s: %w", current, err)
		}
	}

	next := Pagination{TotalArticles: pag.TotalArticles + len(records), Files: files}
	if err := fsutil.WriteJSON(g.path(paginationFile), next); err != nil {
		if currentChanged {
			g.restorePage(current, original)
		}
		return fmt.Errorf("failed to write pagination: %w", err)
	}

	stats := Stats{
		TotalArticles: next.TotalArticles,
		AddedToday:    len(records),
		LastUpdate:    g.now(),
	}
	if err := fsutil.WriteJSON(g.path(statsFile), stats); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	slog.Debug("Global index updated", "page", files[len(files)-1], "added", len(records), "total", next.TotalArticles)

	return nil
}

func (g *GlobalIndex) restorePage(name string, items []article.Slim) {
	if err := fsutil.WriteJSON(g.path(name), items); err != nil {
		slog.Error("Failed to restore index page", "page", name, "error", err)
	}
}

// Pagination returns the stored pagination, or the empty default when absent.
func (g *GlobalIndex) Pagination() (Pagination, error) {
	pag := Pagination{Files: []string{}}
	if _, err := fsutil.ReadJSON(g.path(paginationFile), &pag); err != nil {
		return Pagination{Files: []string{}}, err
	}
	if pag.Files == nil {
		pag.Files = []string{}
	}
	return pag, nil
}

// Stats returns the last written stats; found is false before the first append.
func (g *GlobalIndex) Stats() (Stats, bool, error) {
	var stats Stats
	found, err := fsutil.ReadJSON(g.path(statsFile), &stats)
	if err != nil {
		return Stats{}, true, err
	}
	return stats, found, nil
}

// Page returns the records of the 1-based page n.
func (g *GlobalIndex) Page(n int) ([]article.Slim, error) {
	pag, err := g.Pagination()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(pag.Files) {
		return nil, fmt.Errorf("page %d out of range (1..%d)", n, len(pag.Files))
	}

	var items []article.Slim
	if _, err := fsutil.ReadJSON(g.path(pag.Files[n-1]), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []article.Slim{}
	}
	return items, nil
}

// Latest returns up to limit records, newest first, walking pages from the end.
func (g *GlobalIndex) Latest(limit int) ([]article.Slim, error) {
	pag, err := g.Pagination()
	if err != nil {
		return nil, err
	}

	out := make([]article.Slim, 0, limit)
	for n := len(pag.Files); n >= 1 && len(out) < limit; n-- {
		items, err := g.Page(n)
		if err != nil {
			return out, err
		}
		for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, items[i])
		}
	}
	return out, nil
}

func (g *GlobalIndex) path(name string) string {
	return filepath.Join(g.dir, name)
}

func (g *GlobalIndex) loadPagination() Pagination {
	pag, err := g.Pagination()
	if err != nil && fault.Is(err, fault.CorruptState) {
		slog.Warn("Pagination unreadable, starting fresh", "error", err)
	}
	return pag
}

func (g *GlobalIndex) loadPage(name string) []article.Slim {
	var items []article.Slim
	if _, err := fsutil.ReadJSON(g.path(name), &items); err != nil {
		slog.Warn("Index page unreadable, treating as empty", "page", name, "error", err)
		return []article.Slim{}
	}
	if items == nil {
		items = []article.Slim{}
	}
	return items
}
