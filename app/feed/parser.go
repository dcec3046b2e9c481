package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

const letterboxdNamespace = "letterboxd"

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a Letterboxd activity feed. Items keep the source order.
func (p *Parser) Run(data []byte) ([]SourceItem, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]SourceItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) SourceItem {
	title, year, rating := parseTitle(item.Title)

	normalized := SourceItem{
		GUID:    cmp.Or(item.GUID, item.Link),
		Title:   cmp.Or(extension(item, "filmTitle"), title),
		Year:    cmp.Or(extension(item, "filmYear"), year),
		Rating:  rating,
		RawBody: cmp.Or(item.Description, item.Content),
		Link:    item.Link,
	}

	if memberRating := extension(item, "memberRating"); memberRating != "" {
		if r, ok := parseRating(memberRating); ok {
			normalized.Rating = r
		}
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = *item.UpdatedParsed
	}

	return normalized
}

func extension(item *gofeed.Item, name string) string {
	if item.Extensions == nil {
		return ""
	}
	values := item.Extensions[letterboxdNamespace][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// parseTitle splits "Film Title, 2023 - ★★★½" into its parts.
func parseTitle(full string) (string, string, int) {
	full = strings.TrimSpace(full)
	rating := NoRating

	film := full
	if i := strings.LastIndex(full, " - "); i >= 0 {
		if r, ok := parseStars(full[i+3:]); ok {
			film = full[:i]
			rating = r
		}
	}

	if i := strings.LastIndex(film, ", "); i >= 0 {
		year := film[i+2:]
		if _, err := strconv.Atoi(year); err == nil && len(year) == 4 {
			return film[:i], year, rating
		}
	}

	return film, "", rating
}

func parseStars(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	halves := 0
	for _, r := range s {
		switch r {
		case '★':
			halves += 2
		case '½':
			halves++
		default:
			return 0, false
		}
	}
	return halves, halves <= 10
}

func parseRating(s string) (int, bool) {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 || value > 5 {
		return 0, false
	}
	return int(math.Round(value * 2)), true
}
