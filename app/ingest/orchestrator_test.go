package ingest

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bergham123/anime-news-bot/app/fault"
	"github.com/bergham123/anime-news-bot/app/feed"
	"github.com/bergham123/anime-news-bot/app/fsutil"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/media"
	"github.com/bergham123/anime-news-bot/app/notify"
	"github.com/bergham123/anime-news-bot/app/store"
)

const feedURL = "https://news.example.com/rss"

const newsRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Anime News</title>
    <item>
      <title>First Story</title>
      <link>https://news.example.com/1</link>
      <description>&lt;p&gt;First &lt;b&gt;body&lt;/b&gt;&lt;/p&gt;</description>
      <media:thumbnail url="https://img.example.com/1.png" />
      <category>Anime</category>
    </item>
    <item>
      <title>Second Story</title>
      <link>https://news.example.com/2</link>
      <description>Second body</description>
      <media:thumbnail url="https://img.example.com/2.png" />
    </item>
  </channel>
</rss>`

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
	onGet func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{data: map[string][]byte{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f.GetWithTimeout(ctx, url, 0)
}

func (f *fakeFetcher) GetWithTimeout(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.onGet != nil {
		f.onGet(url)
	}
	data, ok := f.data[url]
	if !ok {
		return nil, fault.Fetch("get", url, errors.New("HTTP error: 404"))
	}
	return data, nil
}

type fakeNotifier struct {
	published [][]notify.Post
	videos    []string
	ok        bool
}

func (n *fakeNotifier) Publish(ctx context.Context, posts []notify.Post) bool {
	n.published = append(n.published, posts)
	return n.ok
}

func (n *fakeNotifier) SendVideo(ctx context.Context, title, link, thumbURL string) bool {
	n.videos = append(n.videos, title)
	return n.ok
}

type fakeLedger struct {
	runs       map[string]ledger.RunStatus
	deliveries []ledger.Delivery
}

func (l *fakeLedger) StartRun(id, source string, startedAt time.Time) error {
	l.runs[id] = ledger.RunStatusRunning
	return nil
}

func (l *fakeLedger) FinishRun(id string, finishedAt time.Time, added int, status ledger.RunStatus, runErr string) error {
	l.runs[id] = status
	return nil
}

func (l *fakeLedger) RecentRuns(limit int) ([]ledger.Run, error) {
	return nil, nil
}

func (l *fakeLedger) RecordDelivery(d ledger.Delivery) error {
	l.deliveries = append(l.deliveries, d)
	return nil
}

func (l *fakeLedger) RunDeliveries(runID string) ([]ledger.Delivery, error) {
	return nil, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, A: 255})); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type harness struct {
	root     string
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	ledger   *fakeLedger
	store    *store.DailyStore
	index    *index.GlobalIndex
	orch     *Orchestrator
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	now := time.Date(2025, 11, 9, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	h := &harness{
		root:     root,
		fetcher:  newFakeFetcher(),
		notifier: &fakeNotifier{ok: true},
		ledger:   &fakeLedger{runs: map[string]ledger.RunStatus{}},
		store:    store.NewDailyStore(filepath.Join(root, "data")),
		index:    index.NewGlobalIndex(filepath.Join(root, "global_index"), 500, clock),
		now:      now,
	}
	h.fetcher.data[feedURL] = []byte(newsRSS)
	h.fetcher.data["https://img.example.com/1.png"] = pngBytes(t, 64, 48)
	h.fetcher.data["https://img.example.com/2.png"] = pngBytes(t, 32, 32)

	h.orch = NewOrchestrator(Components{
		Fetcher:    h.fetcher,
		Parser:     feed.NewParser(),
		Normalizer: feed.NewNormalizer(clock),
		Filterer:   feed.NewFilterer(),
		Extractor:  feed.NewContentExtractor(),
		Store:      h.store,
		Manifests:  manifest.NewBuilder(filepath.Join(root, "data")),
		Index:      h.index,
		Pipeline: media.NewPipeline(h.fetcher, media.Options{
			MaxWidth: 1280, MaxHeight: 1280, JPEGQuality: 85, WebPQuality: 80,
		}),
		Assets:       media.NewAssetStore(filepath.Join(root, "images"), "https://cdn.example.com", "main"),
		Notifier:     h.notifier,
		Ledger:       h.ledger,
		AssetFormat:  media.FormatJPEG,
		ImageWorkers: 2,
		SiteBaseURL:  "https://site.example.com",
		ArticlePage:  "article.html",
		Now:          clock,
	})
	return h
}

func newsSource(maxItems int) *feed.Source {
	return &feed.Source{
		Name:     "crunchyroll",
		URL:      feedURL,
		Kind:     feed.SourceKindNews,
		Settings: feed.SourceSettings{Enabled: true, MaxItems: maxItems, Timeout: 5},
	}
}

func TestRunStoresIndexesAndNotifies(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Run(context.Background(), newsSource(2))
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 2 || result.Entries != 2 {
		t.Fatalf("Expected 2 added of 2 entries, got %+v", result)
	}
	if !result.Delivered {
		t.Error("Expected delivery to succeed")
	}

	path := h.store.DailyPath(h.now)
	records, err := h.store.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 stored records, got %d", len(records))
	}
	for _, r := range records {
		if !strings.HasPrefix(r.ImageURL(), "https://cdn.example.com/main/") {
			t.Errorf("Expected image patched to asset URL, got %s", r.ImageURL())
		}
	}
	if records[0].DescriptionFull != "First body" {
		t.Errorf("Expected plain text body, got %q", records[0].DescriptionFull)
	}

	month, ok, err := manifest.NewBuilder(filepath.Join(h.root, "data")).LoadMonth(2025, 11)
	if err != nil || !ok {
		t.Fatalf("Expected month manifest, got ok=%t err=%v", ok, err)
	}
	if keys := month.Days.Keys(); len(keys) != 1 || keys[0] != "09" {
		t.Errorf("Expected day 09 in manifest, got %v", keys)
	}

	pag, err := h.index.Pagination()
	if err != nil {
		t.Fatal(err)
	}
	if pag.TotalArticles != 2 {
		t.Errorf("Expected 2 indexed articles, got %d", pag.TotalArticles)
	}
	page, err := h.index.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	if page[1].Path != path+"#1" {
		t.Errorf("Expected locator %s#1, got %s", path, page[1].Path)
	}

	if len(h.notifier.published) != 1 || len(h.notifier.published[0]) != 2 {
		t.Fatalf("Expected one publish of 2 posts, got %v", h.notifier.published)
	}
	post := h.notifier.published[0][0]
	if len(post.Photo) == 0 {
		t.Error("Expected rendered photo bytes")
	}
	if post.PhotoURL != "https://img.example.com/1.png" {
		t.Errorf("Expected original photo URL, got %s", post.PhotoURL)
	}
	if !strings.Contains(post.Caption, "https://site.example.com/article.html?path=") {
		t.Errorf("Expected permalink in caption, got %q", post.Caption)
	}

	if h.ledger.runs[result.RunID] != ledger.RunStatusSucceeded {
		t.Errorf("Expected succeeded run, got %s", h.ledger.runs[result.RunID])
	}
	if len(h.ledger.deliveries) != 2 {
		t.Errorf("Expected 2 deliveries recorded, got %d", len(h.ledger.deliveries))
	}
}

const bodylessRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Anime News</title>
    <item>
      <title>First Story</title>
      <link>https://news.example.com/1</link>
      <media:thumbnail url="https://img.example.com/1.png" />
    </item>
    <item>
      <title>Second Story</title>
      <link>https://news.example.com/2</link>
      <media:thumbnail url="https://img.example.com/2.png" />
    </item>
  </channel>
</rss>`

func TestRunCancelledMidwayFinishesStoredRecords(t *testing.T) {
	h := newHarness(t)
	h.fetcher.data[feedURL] = []byte(bodylessRSS)
	h.fetcher.data["https://news.example.com/1"] = []byte("<html><body><article><p>First article text.</p></article></body></html>")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.onGet = func(url string) {
		if url == "https://news.example.com/1" {
			cancel()
		}
	}

	source := newsSource(2)
	source.Settings.ExtractContent = true

	result, err := h.orch.Run(ctx, source)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("Expected 1 record stored before cancellation, got %d", result.Added)
	}

	records, _ := h.store.Load(h.store.DailyPath(h.now))
	pag, err := h.index.Pagination()
	if err != nil {
		t.Fatal(err)
	}
	if pag.TotalArticles != len(records) {
		t.Errorf("Expected every stored record indexed, got daily=%d indexed=%d", len(records), pag.TotalArticles)
	}

	if _, ok, _ := manifest.NewBuilder(filepath.Join(h.root, "data")).LoadMonth(2025, 11); !ok {
		t.Error("Expected month manifest after a cancelled run")
	}
	if len(h.notifier.published) != 1 || len(h.notifier.published[0]) != 1 {
		t.Errorf("Expected the stored record to be announced, got %v", h.notifier.published)
	}
	if h.ledger.runs[result.RunID] != ledger.RunStatusFailed {
		t.Errorf("Expected failed run, got %s", h.ledger.runs[result.RunID])
	}

	h.fetcher.onGet = nil
	if _, err := h.orch.Run(context.Background(), source); err != nil {
		t.Fatal(err)
	}
	records, _ = h.store.Load(h.store.DailyPath(h.now))
	pag, _ = h.index.Pagination()
	if len(records) != 2 || pag.TotalArticles != 2 {
		t.Errorf("Expected retry to complete both records, got daily=%d indexed=%d", len(records), pag.TotalArticles)
	}
}

func TestRunDurationUsesWallClock(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Run(context.Background(), newsSource(1))
	if err != nil {
		t.Fatal(err)
	}
	// The harness clock is frozen in the past; a duration taken from it would span months.
	if result.Duration < 0 || result.Duration > time.Minute {
		t.Errorf("Expected a wall-clock run duration, got %v", result.Duration)
	}
}

func TestRunWithNothingNewWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.Run(ctx, newsSource(2)); err != nil {
		t.Fatal(err)
	}

	pagPath := filepath.Join(h.root, "global_index", "pagination.json")
	var before index.Pagination
	if _, err := fsutil.ReadJSON(pagPath, &before); err != nil {
		t.Fatal(err)
	}

	result, err := h.orch.Run(ctx, newsSource(2))
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 0 || result.Skipped != 2 {
		t.Errorf("Expected 0 added and 2 skipped, got %+v", result)
	}
	if len(h.notifier.published) != 1 {
		t.Errorf("Expected no second publish, got %d", len(h.notifier.published))
	}

	var after index.Pagination
	if _, err := fsutil.ReadJSON(pagPath, &after); err != nil {
		t.Fatal(err)
	}
	if after.TotalArticles != before.TotalArticles {
		t.Errorf("Expected index untouched, got %d then %d", before.TotalArticles, after.TotalArticles)
	}
}

func TestRunLatestOnlyByDefault(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Run(context.Background(), newsSource(1))
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 1 {
		t.Fatalf("Expected 1 added, got %d", result.Added)
	}

	records, _ := h.store.Load(h.store.DailyPath(h.now))
	if len(records) != 1 || records[0].Title != "First Story" {
		t.Errorf("Expected only the latest entry, got %+v", records)
	}
}

func TestRunImageFailureKeepsOriginal(t *testing.T) {
	h := newHarness(t)
	delete(h.fetcher.data, "https://img.example.com/1.png")

	if _, err := h.orch.Run(context.Background(), newsSource(2)); err != nil {
		t.Fatal(err)
	}

	records, _ := h.store.Load(h.store.DailyPath(h.now))
	if records[0].ImageURL() != "https://img.example.com/1.png" {
		t.Errorf("Expected original image URL kept, got %s", records[0].ImageURL())
	}
	if !strings.HasPrefix(records[1].ImageURL(), "https://cdn.example.com/") {
		t.Errorf("Expected second image derived, got %s", records[1].ImageURL())
	}

	post := h.notifier.published[0][0]
	if post.Photo != nil || post.PhotoURL != "https://img.example.com/1.png" {
		t.Errorf("Expected fallback to original URL, got %d bytes and %s", len(post.Photo), post.PhotoURL)
	}
}

func TestRunFilteredEntries(t *testing.T) {
	h := newHarness(t)
	source := newsSource(2)
	source.Filters = []feed.SourceFilter{{Field: "title", Excludes: []string{"second"}}}

	result, err := h.orch.Run(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 1 || result.Skipped != 1 {
		t.Errorf("Expected 1 added and 1 filtered, got %+v", result)
	}
}

func TestRunFeedFailure(t *testing.T) {
	h := newHarness(t)
	delete(h.fetcher.data, feedURL)

	result, err := h.orch.Run(context.Background(), newsSource(1))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !fault.Is(err, fault.TransientFetch) {
		t.Errorf("Expected TransientFetch, got %v", err)
	}
	if fsutil.Exists(filepath.Join(h.root, "data")) {
		t.Error("Expected no data written after a failed fetch")
	}
	if h.ledger.runs[result.RunID] != ledger.RunStatusFailed {
		t.Errorf("Expected failed run, got %s", h.ledger.runs[result.RunID])
	}
}

func TestRunReusesExistingAssets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.Run(ctx, newsSource(1)); err != nil {
		t.Fatal(err)
	}
	records, _ := h.store.Load(h.store.DailyPath(h.now))
	first := records[0].ImageURL()

	// A fresh day file forces re-ingestion of the same entry.
	if err := fsutil.WriteJSON(h.store.DailyPath(h.now), []any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.Run(ctx, newsSource(1)); err != nil {
		t.Fatal(err)
	}
	records, _ = h.store.Load(h.store.DailyPath(h.now))
	if records[0].ImageURL() != first {
		t.Errorf("Expected same asset URL %s, got %s", first, records[0].ImageURL())
	}
}

func TestRunnerHonorsLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "state", "ingest.lock")

	unlock, err := Lock(lockPath)
	if err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(staticSources{}, nil, nil, lockPath)
	if err := runner.Run(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	unlock()
	if err := runner.Run(context.Background()); err != nil {
		t.Errorf("Expected run after unlock to succeed, got %v", err)
	}
}

type staticSources map[feed.SourceKind][]*feed.Source

func (s staticSources) Enabled(kind feed.SourceKind) []*feed.Source {
	return s[kind]
}

func TestRunnerContinuesAfterSourceFailure(t *testing.T) {
	h := newHarness(t)
	broken := newsSource(1)
	broken.Name = "broken"
	broken.URL = "https://down.example.com/rss"

	sources := staticSources{feed.SourceKindNews: {broken, newsSource(1)}}
	runner := NewRunner(sources, h.orch, nil, filepath.Join(h.root, "state", "ingest.lock"))

	err := runner.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected error naming the broken source, got %v", err)
	}

	records, _ := h.store.Load(h.store.DailyPath(h.now))
	if len(records) != 1 {
		t.Errorf("Expected the healthy source to be ingested, got %d records", len(records))
	}
}

func TestRunnerSkipsSourcesNotDue(t *testing.T) {
	h := newHarness(t)
	source := newsSource(1)
	source.Settings.RefreshInterval = 3600

	runner := NewRunner(staticSources{feed.SourceKindNews: {source}}, h.orch, nil, filepath.Join(h.root, "state", "ingest.lock"))
	current := h.now
	runner.now = func() time.Time { return current }

	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := h.fetcher.calls[feedURL]; calls != 1 {
		t.Errorf("Expected 1 feed fetch within the refresh interval, got %d", calls)
	}

	current = current.Add(time.Hour)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := h.fetcher.calls[feedURL]; calls != 2 {
		t.Errorf("Expected a second fetch once due, got %d", calls)
	}
}
