package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/fault"
	"github.com/bergham123/anime-news-bot/app/fsutil"
)

// AppendResult reports whether a record was stored and at which position.
// Index is -1 when nothing was inserted.
type AppendResult struct {
	Inserted bool
	Index    int
}

// DailyStore keeps one append-only JSON array of records per calendar day under root.
type DailyStore struct {
	root string
}

func NewDailyStore(root string) *DailyStore {
	return &DailyStore{root: root}
}

func (s *DailyStore) Root() string {
	return s.root
}

// DailyPath returns {root}/{year}/{month}/{day}-{month}.json for t in its own zone.
func (s *DailyStore) DailyPath(t time.Time) string {
	return filepath.ToSlash(filepath.Join(s.root,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d-%02d.json", t.Day(), int(t.Month()))))
}

// Load returns the records of a daily file. A missing file is an empty day;
// an unreadable one yields the empty day together with a CorruptState fault.
func (s *DailyStore) Load(path string) ([]article.Record, error) {
	var records []article.Record
	if _, err := fsutil.ReadJSON(path, &records); err != nil {
		return []article.Record{}, err
	}
	if records == nil {
		records = []article.Record{}
	}
	return records, nil
}

// AppendIfNew appends rec unless a record with the same id is already stored for the day.
func (s *DailyStore) AppendIfNew(path string, rec article.Record) (AppendResult, error) {
	records := s.loadTolerant(path)

	for _, existing := range records {
		if existing.ID == rec.ID {
			return AppendResult{Inserted: false, Index: -1}, nil
		}
	}

	records = append(records, rec)
	if err := fsutil.WriteJSON(path, records); err != nil {
		return AppendResult{Inserted: false, Index: -1}, fmt.Errorf("failed to append record %s: %w", rec.ID, err)
	}

	return AppendResult{Inserted: true, Index: len(records) - 1}, nil
}

// ReplaceAt overwrites the record at index. The stored id must match rec.ID;
// identity never changes after insertion.
func (s *DailyStore) ReplaceAt(path string, index int, rec article.Record) error {
	records, err := s.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s for replace: %w", path, err)
	}

	if index < 0 || index >= len(records) {
		return fmt.Errorf("index %d out of range for %s (%d records)", index, path, len(records))
	}
	if records[index].ID != rec.ID {
		return fmt.Errorf("record at %s#%d has id %s, not %s", path, index, records[index].ID, rec.ID)
	}

	records[index] = rec
	if err := fsutil.WriteJSON(path, records); err != nil {
		return fmt.Errorf("failed to replace record %s: %w", rec.ID, err)
	}

	return nil
}

// Has reports whether a record with id is stored in the daily file.
func (s *DailyStore) Has(path, id string) bool {
	for _, r := range s.loadTolerant(path) {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Get resolves a locator to the stored record.
func (s *DailyStore) Get(loc article.Locator) (article.Record, error) {
	records, err := s.Load(loc.Path)
	if err != nil {
		return article.Record{}, err
	}
	if loc.Index < 0 || loc.Index >= len(records) {
		return article.Record{}, fmt.Errorf("no record at %s", loc)
	}
	return records[loc.Index], nil
}

func (s *DailyStore) loadTolerant(path string) []article.Record {
	records, err := s.Load(path)
	if err != nil && fault.Is(err, fault.CorruptState) {
		slog.Warn("Daily file unreadable, treating as empty", "path", path, "error", err)
	}
	return records
}
