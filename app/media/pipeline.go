package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/webp"

	"github.com/bergham123/anime-news-bot/app/fault"
)

// Fetcher retrieves remote bytes under a bounded timeout.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	MaxWidth       int
	MaxHeight      int
	JPEGQuality    int
	WebPQuality    int
	LogoPath       string
	LogoMargin     int
	LogoSmallRatio float64
	LogoLargeRatio float64
	LogoBreakpoint int // images narrower than this use LogoSmallRatio
}

// Pipeline turns a remote image into a branded, bounded image ready for encoding.
type Pipeline struct {
	fetcher Fetcher
	opts    Options
	logo    image.Image
}

func NewPipeline(fetcher Fetcher, opts Options) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		opts:    opts,
		logo:    loadLogo(opts.LogoPath),
	}
}

func loadLogo(path string) image.Image {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		slog.Debug("Logo not found, overlay disabled", "path", path)
		return nil
	}
	logo, err := imaging.Open(path)
	if err != nil {
		slog.Error("Failed to open logo", "path", path, "error", err)
		return nil
	}
	return logo
}

// Prepare fetches url, applies the embedded orientation, downscales to the
// configured bounds and overlays the logo. Fetch and decode failures are
// TransientFetch faults; callers fall back to the original URL.
func (p *Pipeline) Prepare(ctx context.Context, url string) (image.Image, error) {
	data, err := p.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fault.Fetch("decode image", url, err)
	}

	img = p.downscale(img)
	img = p.overlayLogo(img)

	return img, nil
}

// Render is Prepare followed by Encode.
func (p *Pipeline) Render(ctx context.Context, url string, format Format) ([]byte, error) {
	img, err := p.Prepare(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.Encode(img, format)
}

func (p *Pipeline) Encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: p.opts.WebPQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return buf.Bytes(), nil
}

func (p *Pipeline) downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}

	scale := min(float64(p.opts.MaxWidth)/float64(w), float64(p.opts.MaxHeight)/float64(h), 1)
	if scale >= 1 {
		return img
	}

	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func (p *Pipeline) overlayLogo(img image.Image) image.Image {
	if p.logo == nil {
		return img
	}

	pw := img.Bounds().Dx()
	margin := p.opts.LogoMargin

	ratio := p.opts.LogoLargeRatio
	if pw < p.opts.LogoBreakpoint {
		ratio = p.opts.LogoSmallRatio
	}

	lw := int(max(1, min(float64(pw-2*margin), float64(pw)*ratio)))
	logoBounds := p.logo.Bounds()
	lh := int(max(1, float64(logoBounds.Dy())*float64(lw)/float64(logoBounds.Dx())))

	mark := imaging.Resize(p.logo, lw, lh, imaging.Lanczos)
	origin := img.Bounds().Min
	return imaging.Overlay(img, mark, image.Pt(origin.X+pw-lw-margin, origin.Y+margin), 1.0)
}
