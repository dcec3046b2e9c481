package feed

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/boxd-relay/app/summary"
)

// Cleaner turns review markup into plain text.
type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Run keeps the text of paragraphs that do not embed images, joined by spaces.
// Markup without paragraphs falls back to the whole document text.
func (c *Cleaner) Run(markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse markup: %w", err)
	}

	doc.Find("script, style").Remove()

	paragraphs := doc.Find("p")
	if paragraphs.Length() == 0 {
		return summary.Normalize(doc.Text()), nil
	}

	parts := make([]string, 0, paragraphs.Length())
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		if p.Find("img").Length() > 0 {
			return
		}
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	return summary.Normalize(strings.Join(parts, " ")), nil
}
