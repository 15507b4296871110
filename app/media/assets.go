package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bergham123/anime-news-bot/app/article"
	"github.com/bergham123/anime-news-bot/app/fsutil"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWebP:
		return ".webp"
	default:
		return "." + string(f)
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// Asset is a persisted, content-addressed derived image.
type Asset struct {
	Path       string
	URL        string
	CreatedNew bool
}

// AssetStore writes derived images under {root}/{year}/{month}/ and maps them to public URLs.
type AssetStore struct {
	root       string
	publicBase string
	branch     string
}

func NewAssetStore(root, publicBase, branch string) *AssetStore {
	return &AssetStore{
		root:       root,
		publicBase: strings.TrimRight(publicBase, "/"),
		branch:     strings.Trim(branch, "/"),
	}
}

func (s *AssetStore) PathFor(title, originalURL string, day time.Time, format Format) string {
	return filepath.ToSlash(filepath.Join(s.root,
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", int(day.Month())),
		article.AssetName(title, originalURL, format.Ext())))
}

// URLFor resolves a stored asset path to its public URL. Without a public base
// the relative path is returned as is.
func (s *AssetStore) URLFor(path string) string {
	if s.publicBase == "" {
		return path
	}
	if s.branch == "" {
		return s.publicBase + "/" + path
	}
	return s.publicBase + "/" + s.branch + "/" + path
}

// Lookup reports the asset for (title, originalURL) if it was already derived.
func (s *AssetStore) Lookup(title, originalURL string, day time.Time, format Format) (Asset, bool) {
	path := s.PathFor(title, originalURL, day, format)
	if !fsutil.Exists(path) {
		return Asset{}, false
	}
	return Asset{Path: path, URL: s.URLFor(path)}, true
}

// Persist writes data at the content-addressed path unless a file already exists
// there, in which case the existing asset is returned untouched.
func (s *AssetStore) Persist(title, originalURL string, data []byte, day time.Time, format Format) (Asset, error) {
	if existing, ok := s.Lookup(title, originalURL, day, format); ok {
		return existing, nil
	}

	path := s.PathFor(title, originalURL, day, format)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return Asset{}, fmt.Errorf("failed to persist asset: %w", err)
	}

	return Asset{Path: path, URL: s.URLFor(path), CreatedNew: true}, nil
}
