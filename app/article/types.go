package article

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one ingested item as stored in a daily file.
type Record struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DescriptionFull string    `json:"description_full"`
	Image           *string   `json:"image"`
	Categories      []string  `json:"categories"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ImageURL returns the current image reference or an empty string.
func (r Record) ImageURL() string {
	if r.Image == nil {
		return ""
	}
	return *r.Image
}

func (r Record) HasImage() bool {
	return r.Image != nil && *r.Image != ""
}

// WithImage returns a copy of r pointing at url, with UpdatedAt bumped to now.
func (r Record) WithImage(url string, now time.Time) Record {
	r.Image = &url
	r.UpdatedAt = now
	return r
}

// Slim is the index projection of a Record; it drops the body and adds a locator
// back to the record's position in its daily file.
type Slim struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Image      *string   `json:"image"`
	Categories []string  `json:"categories"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Path       string    `json:"path"`
}

func ToSlim(r Record, loc Locator) Slim {
	categories := r.Categories
	if categories == nil {
		categories = []string{}
	}
	return Slim{
		ID:         r.ID,
		Title:      r.Title,
		Image:      r.Image,
		Categories: categories,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Path:       loc.String(),
	}
}

// Locator points at a record: "<dayFilePath>#<index>".
type Locator struct {
	Path  string
	Index int
}

func (l Locator) String() string {
	return fmt.Sprintf("%s#%d", l.Path, l.Index)
}

func ParseLocator(s string) (Locator, error) {
	i := strings.LastIndex(s, "#")
	if i <= 0 || i == len(s)-1 {
		return Locator{}, fmt.Errorf("invalid locator %q: expected <path>#<index>", s)
	}
	index, err := strconv.Atoi(s[i+1:])
	if err != nil || index < 0 {
		return Locator{}, fmt.Errorf("invalid locator index in %q", s)
	}
	return Locator{Path: s[:i], Index: index}, nil
}
