package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/bergham123/anime-news-bot/app/fault"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Options are the global command-line options, also readable from the environment.
type Options struct {
	// Storage roots
	DataDir    string `long:"data-dir" env:"DATA_DIR" default:"data" description:"Root of the daily article files and manifests"`
	IndexDir   string `long:"index-dir" env:"INDEX_DIR" default:"global_index" description:"Directory of the paginated global index"`
	AssetsDir  string `long:"assets-dir" env:"ASSETS_DIR" default:"images" description:"Root of the derived image assets"`
	StateDir   string `long:"state-dir" env:"STATE_DIR" default:"state" description:"Directory of the delivery ledger and run lock"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`

	// Notification
	TelegramToken  string `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"Telegram bot token (required for run and serve)"`
	TelegramChatID string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat id (required for run and serve)"`
	TelegramAPI    string `long:"telegram-api" env:"TELEGRAM_API" default:"https://api.telegram.org" description:"Telegram Bot API base URL"`
	DryRun         bool   `long:"dry-run" env:"DRY_RUN" description:"Store and index articles without sending notifications"`

	// Global index
	PageSize int `long:"page-size" env:"PAGE_SIZE" default:"500" description:"Records per global index page"`

	// Images
	MaxImageWidth  int     `long:"max-image-width" env:"MAX_IMAGE_WIDTH" default:"1280" description:"Maximum derived image width"`
	MaxImageHeight int     `long:"max-image-height" env:"MAX_IMAGE_HEIGHT" default:"1280" description:"Maximum derived image height"`
	JPEGQuality    int     `long:"jpeg-quality" env:"JPEG_QUALITY" default:"85" description:"JPEG quality for delivered images"`
	WebPQuality    int     `long:"webp-quality" env:"WEBP_QUALITY" default:"80" description:"WebP quality for archived images"`
	AssetFormat    string  `long:"asset-format" env:"ASSET_FORMAT" default:"webp" choice:"webp" choice:"jpeg" description:"Format of archived image assets"`
	ImageWorkers   int     `long:"image-workers" env:"IMAGE_WORKERS" default:"4" description:"Concurrent image fetches per run"`
	LogoPath       string  `long:"logo-path" env:"LOGO_PATH" default:"logo.png" description:"Logo overlaid on images (skipped when missing)"`
	LogoMargin     int     `long:"logo-margin" env:"LOGO_MARGIN" default:"10" description:"Logo margin from the top-right corner in pixels"`
	LogoSmallRatio float64 `long:"logo-small-ratio" env:"LOGO_SMALL_RATIO" default:"0.10" description:"Logo width ratio for narrow images"`
	LogoLargeRatio float64 `long:"logo-large-ratio" env:"LOGO_LARGE_RATIO" default:"0.20" description:"Logo width ratio for wide images"`
	LogoBreakpoint int     `long:"logo-breakpoint" env:"LOGO_BREAKPOINT" default:"600" description:"Image width below which the small ratio applies"`

	// Public URLs
	PublicBaseURL string `long:"public-base-url" env:"PUBLIC_BASE_URL" description:"Base URL serving the repository files (e.g., https://raw.githubusercontent.com/owner/repo)"`
	Branch        string `long:"branch" env:"BRANCH" default:"main" description:"Branch segment of public asset URLs"`
	SiteBaseURL   string `long:"site-base-url" env:"SITE_BASE_URL" description:"Base URL of the public site used for permalinks"`
	ArticlePage   string `long:"article-page" env:"ARTICLE_PAGE" default:"article.html" description:"Article page of the public site"`

	// HTTP
	HTTPTimeout int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"25" description:"Timeout for outbound HTTP requests in seconds"`
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"anime-news-bot/1.0" description:"User agent string for HTTP requests"`
	Port        string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the /api endpoints (optional)"`

	SchedulerInterval int `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"3600" description:"Interval between scheduled runs in seconds"`

	// Application metadata
	Timezone  string `long:"timezone" env:"TZ" default:"Africa/Casablanca" description:"Timezone for timestamps and daily partitions"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"auto" choice:"auto" choice:"text" choice:"json" description:"Log output format"`
}

// Build validates the options and turns them into a Cfg.
func (o *Options) Build() (*Cfg, error) {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", o.Timezone, err)
	}

	positive := map[string]int{
		"page size":          o.PageSize,
		"max image width":    o.MaxImageWidth,
		"max image height":   o.MaxImageHeight,
		"http timeout":       o.HTTPTimeout,
		"scheduler interval": o.SchedulerInterval,
		"image workers":      o.ImageWorkers,
	}
	for name, value := range positive {
		if value <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}

	for name, value := range map[string]int{"jpeg quality": o.JPEGQuality, "webp quality": o.WebPQuality} {
		if value < 1 || value > 100 {
			return nil, fmt.Errorf("%s must be between 1 and 100", name)
		}
	}

	cfg := &Cfg{
		DataDir:           o.DataDir,
		IndexDir:          o.IndexDir,
		AssetsDir:         o.AssetsDir,
		StateDir:          o.StateDir,
		SourcesDir:        o.SourcesDir,
		TelegramToken:     strings.TrimSpace(o.TelegramToken),
		TelegramChatID:    strings.TrimSpace(o.TelegramChatID),
		TelegramAPI:       o.TelegramAPI,
		DryRun:            o.DryRun,
		PageSize:          o.PageSize,
		MaxImageWidth:     o.MaxImageWidth,
		MaxImageHeight:    o.MaxImageHeight,
		JPEGQuality:       o.JPEGQuality,
		WebPQuality:       o.WebPQuality,
		AssetFormat:       o.AssetFormat,
		ImageWorkers:      o.ImageWorkers,
		LogoPath:          o.LogoPath,
		LogoMargin:        o.LogoMargin,
		LogoSmallRatio:    o.LogoSmallRatio,
		LogoLargeRatio:    o.LogoLargeRatio,
		LogoBreakpoint:    o.LogoBreakpoint,
		PublicBaseURL:     o.PublicBaseURL,
		Branch:            o.Branch,
		SiteBaseURL:       o.SiteBaseURL,
		ArticlePage:       o.ArticlePage,
		HTTPTimeout:       time.Duration(o.HTTPTimeout) * time.Second,
		UserAgent:         o.UserAgent,
		Port:              o.Port,
		APIKey:            o.APIKey,
		SchedulerInterval: time.Duration(o.SchedulerInterval) * time.Second,
		Location:          loc,
		Debug:             o.Debug,
		LogFormat:         o.LogFormat,
		Version:           GetVersion(),
	}

	return cfg, nil
}

// RequireTelegram fails with ConfigMissing when notifications are enabled but
// the credentials are absent.
func (c *Cfg) RequireTelegram() error {
	if c.DryRun {
		return nil
	}
	if c.TelegramToken == "" {
		return fault.Missing("TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == "" {
		return fault.Missing("TELEGRAM_CHAT_ID")
	}
	return nil
}
