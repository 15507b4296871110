package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path"
	"time"

	"github.com/bergham123/anime-news-bot/app/article"
)

// Channel describes the RSS channel republished over the global index.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Version     string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders slim records as an RSS 2.0 document. permalink maps a record locator
// to its public article page and may return "" when no site is configured.
func (g *Generator) Run(channel Channel, items []article.Slim, permalink func(locator string) string) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", channel.Description, 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	lastBuildDate := time.Now()
	if len(items) > 0 {
		lastBuildDate = items[0].UpdatedAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("anime-news-bot/%s", channel.Version), 4)

	for _, item := range items {
		g.writeItem(&buf, item, permalink)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String()
}

func (g *Generator) writeItem(buf *bytes.Buffer, item article.Slim, permalink func(string) string) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)

	if permalink != nil {
		g.writeElement(buf, "link", permalink(item.Path), 6)
	}

	g.writeElement(buf, "pubDate", item.CreatedAt.Format(time.RFC1123Z), 6)

	for _, category := range item.Categories {
		g.writeElement(buf, "category", category, 6)
	}

	if item.Image != nil && *item.Image != "" {
		mimeType := mime.TypeByExtension(path.Ext(*item.Image))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(*item.Image),
			html.EscapeString(mimeType)))
	}

	buf.WriteString("    </item>\n")
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
