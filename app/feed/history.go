package feed

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mmcdole/gofeed"
)

// HistoryReader recovers entries from a previously generated artifact so
// already published reviews can stay in the feed without being rendered again.
type HistoryReader struct {
	gofeedParser *gofeed.Parser
}

func NewHistoryReader() *HistoryReader {
	return &HistoryReader{gofeedParser: gofeed.NewParser()}
}

// Run returns the entries of the artifact at path keyed by source id. A
// missing artifact yields no entries.
func (h *HistoryReader) Run(path string, target Target) (map[string]RenderedEntry, error) {
	entries := make(map[string]RenderedEntry)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	parsed, err := h.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}

	suffix := EntryID("", target.Name)
	for _, item := range parsed.Items {
		if item == nil || !strings.HasSuffix(item.GUID, suffix) {
			continue
		}
		sourceID := strings.TrimSuffix(item.GUID, suffix)

		entry := RenderedEntry{
			SourceID:   sourceID,
			TargetName: target.Name,
			Title:      item.Title,
			Link:       item.Link,
			Text:       cmp.Or(item.Content, item.Description),
		}
		if item.PublishedParsed != nil {
			entry.PublishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			entry.PublishedAt = item.UpdatedParsed.UTC()
		}
		entries[sourceID] = entry
	}

	return entries, nil
}
