package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run serializes entries as an Atom document, newest first. Output depends
// only on its arguments.
func (g *Generator) Run(meta FeedMeta, target Target, entries []RenderedEntry) ([]byte, error) {
	if meta.ID == "" {
		return nil, fmt.Errorf("feed id is required")
	}

	sorted := SortEntries(entries)

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n")

	g.writeElement(&buf, "id", meta.ID, 2)
	g.writeElement(&buf, "title", g.title(meta, target), 2)

	updated := time.Time{}
	if len(sorted) > 0 {
		updated = sorted[0].PublishedAt
	}
	g.writeElement(&buf, "updated", formatTime(updated), 2)

	if meta.Link != "" {
		g.writeLink(&buf, meta.Link, "alternate", 2)
	}
	if meta.SelfURL != "" && target.Output != "" {
		g.writeLink(&buf, strings.TrimRight(meta.SelfURL, "/")+"/"+target.Output, "self", 2)
	}
	g.writeElement(&buf, "generator", "boxd-relay/"+cmp.Or(meta.Version, "dev"), 2)

	for _, entry := range sorted {
		g.writeEntry(&buf, target, entry)
	}

	buf.WriteString("</feed>\n")

	return buf.Bytes(), nil
}

// SortEntries returns a copy of entries ordered by publication time, newest
// first; ties keep their input order.
func SortEntries(entries []RenderedEntry) []RenderedEntry {
	sorted := make([]RenderedEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	return sorted
}

func EntryID(sourceID, targetName string) string {
	return sourceID + "#" + strings.ToLower(targetName)
}

func (g *Generator) writeEntry(buf *bytes.Buffer, target Target, entry RenderedEntry) {
	buf.WriteString("  <entry>\n")

	g.writeElement(buf, "id", EntryID(entry.SourceID, target.Name), 4)
	g.writeElement(buf, "title", cmp.Or(entry.Title, entry.SourceID), 4)
	if entry.Link != "" {
		g.writeLink(buf, entry.Link, "alternate", 4)
	}
	g.writeElement(buf, "published", formatTime(entry.PublishedAt), 4)
	g.writeElement(buf, "updated", formatTime(entry.PublishedAt), 4)

	buf.WriteString(`    <content type="text">`)
	xml.EscapeText(buf, []byte(entry.Text))
	buf.WriteString("</content>\n")

	buf.WriteString("  </entry>\n")
}

func (g *Generator) title(meta FeedMeta, target Target) string {
	name := cmp.Or(target.Title, capitalize(target.Name))
	if meta.Title == "" {
		return name
	}
	return meta.Title + " → " + name
}

func (g *Generator) writeLink(buf *bytes.Buffer, href, rel string, indent int) {
	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString(`<link href="`)
	xml.EscapeText(buf, []byte(href))
	buf.WriteString(`" rel="`)
	buf.WriteString(rel)
	buf.WriteString("\" />\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(time.RFC3339)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
