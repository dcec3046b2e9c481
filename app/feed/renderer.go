package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/boxd-relay/app/summary"
)

const (
	DefaultHashtag = "#FilmReview"

	filmMarker   = "🎥 "
	ratingMarker = "⭐️ "
	linkMarker   = "🔗 "
)

// BodyFitter fits review prose into a character budget.
type BodyFitter interface {
	Fit(ctx context.Context, text string, maxChars int) string
}

// Renderer composes the published text for one item and target.
type Renderer struct {
	fitter  BodyFitter
	hashtag string
}

func NewRenderer(fitter BodyFitter, hashtag string) *Renderer {
	return &Renderer{fitter: fitter, hashtag: hashtag}
}

// Run renders item for target. body is the cleaned review text. The resulting
// text never exceeds target.MaxChars.
func (r *Renderer) Run(ctx context.Context, item SourceItem, body string, target Target) (RenderedEntry, error) {
	if err := ctx.Err(); err != nil {
		return RenderedEntry{}, err
	}
	if item.GUID == "" {
		return RenderedEntry{}, errors.New("item has no id")
	}
	if item.Link == "" {
		return RenderedEntry{}, fmt.Errorf("item %s has no public URL", item.GUID)
	}
	if target.MaxChars <= 0 {
		return RenderedEntry{}, fmt.Errorf("target %s has no character budget", target.Name)
	}

	header := norm.NFC.String(r.header(item))
	footerText := r.footer("")
	linkCost := max(summary.Len(item.Link), target.LinkReservedChars)

	budget := target.MaxChars - summary.Len(header) - summary.Len(footerText) - linkCost
	body = r.fitter.Fit(ctx, body, budget)

	text := header + body + r.footer(item.Link)
	if summary.Len(text) > target.MaxChars {
		text = clampDegenerate(header, r.footer(item.Link), target.MaxChars)
	}
	// emitted text uses the same form the budget was counted in
	text = norm.NFC.String(text)

	return RenderedEntry{
		SourceID:    item.GUID,
		TargetName:  target.Name,
		Title:       item.Title,
		Link:        item.Link,
		Text:        text,
		PublishedAt: item.PublishedAt,
	}, nil
}

func (r *Renderer) header(item SourceItem) string {
	var b strings.Builder
	b.WriteString(filmMarker)
	b.WriteString(item.Title)
	if item.Year != "" {
		b.WriteString(", ")
		b.WriteString(item.Year)
	}
	b.WriteString("\n")
	if item.Rated() {
		b.WriteString(ratingMarker)
		b.WriteString(Stars(item.Rating))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) footer(link string) string {
	footer := "\n" + linkMarker + link
	if r.hashtag != "" {
		footer += " " + r.hashtag
	}
	return footer
}

// Stars renders a half-star rating on a five star scale.
func Stars(halves int) string {
	halves = min(max(halves, 0), 10)
	return strings.Repeat("★", halves/2) + strings.Repeat("½", halves%2)
}

// clampDegenerate handles budgets smaller than header plus footer: the footer
// carries the link so the header gives way first.
func clampDegenerate(header, footer string, maxChars int) string {
	footerLen := summary.Len(footer)
	if footerLen >= maxChars {
		return hardCut(strings.TrimPrefix(footer, "\n"), maxChars)
	}
	return hardCut(header, maxChars-footerLen) + footer
}

func hardCut(s string, maxChars int) string {
	runes := []rune(s)
	if maxChars <= 0 {
		return ""
	}
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
