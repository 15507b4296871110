package feed

import (
	"time"
)

// Optional holds a value that a feed entry may or may not carry.
type Optional[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value when present, fallback otherwise.
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Tag is one category term attached to an entry. Term is absent for tags
// that only carry a scheme or label.
type Tag struct {
	Term Optional[string]
}

// RawEntry is a feed entry as emitted by the source. Every attribute the source
// may omit is an explicit Optional; nothing is probed dynamically.
type RawEntry struct {
	Title          Optional[string]
	Content        Optional[string] // rich body (content:encoded, atom content)
	Summary        Optional[string] // description / summary
	MediaThumbnail Optional[string]
	Tags           []Tag
	Link           Optional[string]
	GUID           Optional[string]
	VideoID        Optional[string] // yt:videoId
	Published      Optional[time.Time]
}

// Metadata describes the channel the entries came from.
type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Source configuration types

type SourceKind string

const (
	SourceKindNews  SourceKind = "news"
	SourceKindVideo SourceKind = "video"
)

type Source struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Kind     SourceKind     `yaml:"kind"`
	Settings SourceSettings `yaml:"settings"`
	Filters  []SourceFilter `yaml:"filters"`
}

type SourceSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	MaxItems        int  `yaml:"max_items"`        // newest entries considered per run
	Timeout         int  `yaml:"timeout"`          // seconds
	ExtractContent  bool `yaml:"extract_content"`  // fetch article text for body-less entries
}

func (s SourceSettings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

type SourceFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
