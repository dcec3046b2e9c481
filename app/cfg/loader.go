package cfg

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"

	CorruptCacheFail  = "fail"
	CorruptCacheReset = "reset"
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Source and cache
	SourceURL       string `long:"source-url" env:"LETTERBOXD_RSS_URL" default:"https://letterboxd.com/julienpierre/rss/" description:"Letterboxd RSS feed URL"`
	ReviewPrefix    string `long:"review-prefix" env:"REVIEW_PREFIX" default:"letterboxd-review-" description:"GUID prefix that marks review entries"`
	CachePath       string `long:"cache-path" env:"CACHE_PATH" default:"~/processed_letterboxd.json" description:"Location of the processed items cache"`
	CacheBackend    string `long:"cache-backend" env:"CACHE_BACKEND" default:"file" choice:"file" choice:"sqlite" description:"Processed items cache backend"`
	OnCorruptCache  string `long:"on-corrupt-cache" env:"ON_CORRUPT_CACHE" default:"fail" choice:"fail" choice:"reset" description:"What to do when the cache cannot be parsed"`
	Limit           int    `long:"limit" description:"Only process the newest N reviews, ignoring the cache"`
	ClearCache      bool   `long:"clear-cache" description:"Reset processed history before running"`
	LimitSkipCommit bool   `long:"limit-skip-commit" description:"With --limit, do not record rendered reviews as processed"`

	// Targets
	TargetsFile string         `long:"targets" env:"TARGETS_FILE" description:"YAML file with target definitions (defaults to twitter and threads)"`
	OutputDir   string         `long:"output-dir" env:"OUTPUT_DIR" default:"." description:"Directory for generated feeds"`
	MaxChars    map[string]int `long:"max-chars" description:"Override a target budget, e.g. --max-chars twitter:280"`
	Hashtag     string         `long:"hashtag" env:"HASHTAG" default:"#FilmReview" description:"Topical tag appended to every entry"`

	// Summarization
	SummarizerURL   string `long:"summarizer-url" env:"SUMMARIZER_URL" description:"Summarization model endpoint (truncation only when empty)"`
	SummarizerToken string `long:"summarizer-token" env:"SUMMARIZER_TOKEN" description:"Bearer token for the summarization endpoint"`

	// Publishing
	RepoPath string `long:"repo-path" env:"REPO_PATH" default:"." description:"Git working tree that hosts the feeds"`
	Remote   string `long:"remote" env:"GIT_REMOTE" default:"origin" description:"Git remote to force-push to"`
	Branch   string `long:"branch" env:"GIT_BRANCH" default:"main" description:"Git branch to force-push to"`
	NoPush   bool   `long:"no-push" env:"NO_PUSH" description:"Write feeds without pushing them"`

	// Serve mode
	ServeAddr    string `long:"serve-addr" env:"SERVE_ADDR" description:"Run periodically and serve feeds on this address (e.g. :8080)"`
	Interval     int    `long:"interval" env:"INTERVAL" default:"3600" description:"Seconds between runs in serve mode"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for triggering runs (optional)"`

	// Timeouts
	FetchTimeout     int `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Source fetch timeout in seconds"`
	SummarizeTimeout int `long:"summarize-timeout" env:"SUMMARIZE_TIMEOUT" default:"60" description:"Per-request summarization timeout in seconds"`
	PushTimeout      int `long:"push-timeout" env:"PUSH_TIMEOUT" default:"120" description:"Git publish timeout in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"boxd-relay/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		SourceURL:        raw.SourceURL,
		ReviewPrefix:     raw.ReviewPrefix,
		CachePath:        expandHome(raw.CachePath),
		CacheBackend:     raw.CacheBackend,
		OnCorruptCache:   raw.OnCorruptCache,
		Limit:            raw.Limit,
		ClearCache:       raw.ClearCache,
		LimitSkipCommit:  raw.LimitSkipCommit,
		TargetsFile:      raw.TargetsFile,
		OutputDir:        raw.OutputDir,
		MaxChars:         raw.MaxChars,
		Hashtag:          raw.Hashtag,
		SummarizerURL:    raw.SummarizerURL,
		SummarizerToken:  raw.SummarizerToken,
		RepoPath:         raw.RepoPath,
		Remote:           raw.Remote,
		Branch:           raw.Branch,
		NoPush:           raw.NoPush,
		ServeAddr:        raw.ServeAddr,
		Interval:         raw.Interval,
		APIAccessKey:     raw.APIAccessKey,
		FetchTimeout:     time.Duration(raw.FetchTimeout) * time.Second,
		SummarizeTimeout: time.Duration(raw.SummarizeTimeout) * time.Second,
		PushTimeout:      time.Duration(raw.PushTimeout) * time.Second,
		UserAgent:        raw.UserAgent,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.SourceURL == "" {
		return fmt.Errorf("source URL is required")
	}
	if cfg.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	for name, maxChars := range cfg.MaxChars {
		if maxChars <= 0 {
			return fmt.Errorf("max chars for target '%s' must be positive", name)
		}
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
