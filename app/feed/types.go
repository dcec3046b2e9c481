package feed

import (
	"time"
)

// Source types

type SourceItem struct {
	GUID        string
	Title       string
	Year        string // empty when unknown
	Rating      int    // half stars, 0-10; NoRating when unrated
	RawBody     string
	Link        string
	PublishedAt time.Time
}

const NoRating = -1

func (i SourceItem) Rated() bool {
	return i.Rating >= 0
}

// Target types

type Target struct {
	Name              string `yaml:"name"`
	MaxChars          int    `yaml:"max_chars"`
	LinkReservedChars int    `yaml:"link_reserved_chars"`
	Output            string `yaml:"output"` // artifact path, relative to the output dir
	Title             string `yaml:"title"`
}

type TargetsFile struct {
	Targets []Target `yaml:"targets"`
}

// Output types

type RenderedEntry struct {
	SourceID    string
	TargetName  string
	Title       string
	Link        string
	Text        string
	PublishedAt time.Time
}

// FeedMeta describes the feed document shared by every target.
type FeedMeta struct {
	ID      string
	Title   string
	Link    string
	SelfURL string
	Version string
}
