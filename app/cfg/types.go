package cfg

import "time"

type Cfg struct {
	// Source and cache
	SourceURL       string
	ReviewPrefix    string
	CachePath       string
	CacheBackend    string
	OnCorruptCache  string
	Limit           int
	ClearCache      bool
	LimitSkipCommit bool

	// Targets
	TargetsFile string
	OutputDir   string
	MaxChars    map[string]int
	Hashtag     string

	// Summarization
	SummarizerURL   string
	SummarizerToken string

	// Publishing
	RepoPath string
	Remote   string
	Branch   string
	NoPush   bool

	// Serve mode
	ServeAddr    string
	Interval     int
	APIAccessKey string

	// Timeouts
	FetchTimeout     time.Duration
	SummarizeTimeout time.Duration
	PushTimeout      time.Duration

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
