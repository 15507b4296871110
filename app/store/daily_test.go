package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/fault"
)

func newRecord(title, image string) article.Record {
	now := time.Date(2025, 11, 9, 10, 0, 0, 0, time.UTC)
	rec := article.Record{
		ID:         article.Fingerprint(title, image),
		Title:      title,
		Categories: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if image != "" {
		rec.Image = &image
	}
	return rec
}

func TestDailyPath(t *testing.T) {
	s := NewDailyStore("data")
	loc, err := time.LoadLocation("Africa/Casablanca")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	// 23:30 UTC on Nov 8 is already Nov 9 in Casablanca (UTC+1).
	ts := time.Date(2025, 11, 8, 23, 30, 0, 0, time.UTC).In(loc)
	if got := s.DailyPath(ts); got != "data/2025/11/09-11.json" {
		t.Errorf("Expected data/2025/11/09-11.json, got %s", got)
	}

	if got := s.DailyPath(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)); got != "data/2025/03/05-03.json" {
		t.Errorf("Expected data/2025/03/05-03.json, got %s", got)
	}
}

func TestAppendIfNewDeduplicates(t *testing.T) {
	s := NewDailyStore(t.TempDir())
	path := s.DailyPath(time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC))

	first, err := s.AppendIfNew(path, newRecord("A", "http://x/1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Inserted || first.Index != 0 {
		t.Errorf("Expected inserted at 0, got %+v", first)
	}

	second, err := s.AppendIfNew(path, newRecord("A", "http://x/1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if second.Inserted {
		t.Errorf("Expected duplicate to be rejected, got %+v", second)
	}

	third, err := s.AppendIfNew(path, newRecord("B", ""))
	if err != nil {
		t.Fatal(err)
	}
	if !third.Inserted || third.Index != 1 {
		t.Errorf("Expected inserted at 1, got %+v", third)
	}

	records, err := s.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 stored records, got %d", len(records))
	}
	if !s.Has(path, records[0].ID) || s.Has(path, "missing") {
		t.Errorf("Has does not reflect stored ids")
	}
}

func TestAppendIfNewCorruptFileTreatedAsEmpty(t *testing.T) {
	s := NewDailyStore(t.TempDir())
	path := s.DailyPath(time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(path); !fault.Is(err, fault.CorruptState) {
		t.Errorf("Expected CorruptState from Load, got %v", err)
	}

	result, err := s.AppendIfNew(path, newRecord("A", "http://x/1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Inserted || result.Index != 0 {
		t.Errorf("Expected inserted at 0 over corrupt file, got %+v", result)
	}

	records, err := s.Load(path)
	if err != nil {
		t.Fatalf("Expected file to heal, got %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestAppendIfNewWriteFailure(t *testing.T) {
	root := t.TempDir()
	s := NewDailyStore(root)

	// A regular file where the year directory should be.
	if err := os.WriteFile(filepath.Join(root, "2025"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	path := s.DailyPath(time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC))
	result, err := s.AppendIfNew(path, newRecord("A", ""))
	if err == nil {
		t.Fatal("Expected write failure")
	}
	if !fault.Is(err, fault.WriteFailure) {
		t.Errorf("Expected WriteFailure, got %v", err)
	}
	if result.Inserted {
		t.Errorf("Expected nothing inserted on failure")
	}
}

func TestReplaceAt(t *testing.T) {
	s := NewDailyStore(t.TempDir())
	path := s.DailyPath(time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC))

	rec := newRecord("A", "http://x/1.png")
	if _, err := s.AppendIfNew(path, rec); err != nil {
		t.Fatal(err)
	}

	later := rec.CreatedAt.Add(time.Minute)
	patched := rec.WithImage("https://cdn/a.webp", later)
	if err := s.ReplaceAt(path, 0, patched); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(article.Locator{Path: path, Index: 0})
	if err != nil {
		t.Fatal(err)
	}
	if got.ImageURL() != "https://cdn/a.webp" {
		t.Errorf("Expected patched image, got %s", got.ImageURL())
	}
	if got.ID != rec.ID {
		t.Errorf("Expected id to stay %s, got %s", rec.ID, got.ID)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("Expected updated_at %v, got %v", later, got.UpdatedAt)
	}

	if err := s.ReplaceAt(path, 5, patched); err == nil {
		t.Errorf("Expected out of range error")
	}
	if err := s.ReplaceAt(path, 0, newRecord("other", "")); err == nil {
		t.Errorf("Expected id mismatch error")
	}
}

func TestGetMissing(t *testing.T) {
	s := NewDailyStore(t.TempDir())
	if _, err := s.Get(article.Locator{Path: filepath.Join(s.Root(), "nope.json"), Index: 0}); err == nil {
		t.Errorf("Expected error for missing record")
	}
}
