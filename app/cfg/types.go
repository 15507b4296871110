package cfg

import (
	"path/filepath"
	"time"
)

type Cfg struct {
	// Storage roots
	DataDir    string
	IndexDir   string
	AssetsDir  string
	StateDir   string
	SourcesDir string

	// Notification
	TelegramToken  string
	TelegramChatID string
	TelegramAPI    string
	DryRun         bool

	// Global index
	PageSize int

	// Images
	MaxImageWidth  int
	MaxImageHeight int
	JPEGQuality    int
	WebPQuality    int
	AssetFormat    string
	ImageWorkers   int
	LogoPath       string
	LogoMargin     int
	LogoSmallRatio float64
	LogoLargeRatio float64
	LogoBreakpoint int

	// Public URLs
	PublicBaseURL string
	Branch        string
	SiteBaseURL   string
	ArticlePage   string

	// HTTP
	HTTPTimeout time.Duration
	UserAgent   string
	Port        string
	APIKey      string

	SchedulerInterval time.Duration

	// Application metadata
	Location  *time.Location
	Debug     bool
	LogFormat string
	Version   string
}

// Now returns the current time in the configured zone.
func (c *Cfg) Now() time.Time {
	return time.Now().In(c.Location)
}

func (c *Cfg) LedgerPath() string {
	return filepath.Join(c.StateDir, "ledger.db")
}

func (c *Cfg) LockPath() string {
	return filepath.Join(c.StateDir, "ingest.lock")
}
