package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses RSS or Atom data into channel metadata and raw entries, newest first
// as ordered by the source.
func (p *Parser) Run(data []byte) (*Metadata, []RawEntry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	entries := make([]RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.toRawEntry(item))
	}

	return metadata, entries, nil
}

func (p *Parser) toRawEntry(item *gofeed.Item) RawEntry {
	entry := RawEntry{
		Title:          nonEmpty(item.Title),
		Content:        nonEmpty(item.Content),
		Summary:        nonEmpty(item.Description),
		MediaThumbnail: mediaThumbnail(item.Extensions),
		Link:           nonEmpty(item.Link),
		GUID:           nonEmpty(cmp.Or(item.GUID, item.Link)),
		VideoID:        extensionValue(item.Extensions, "yt", "videoId"),
	}

	if item.PublishedParsed != nil {
		entry.Published = Some(*item.PublishedParsed)
	}

	for _, category := range item.Categories {
		if strings.TrimSpace(category) == "" {
			entry.Tags = append(entry.Tags, Tag{Term: None[string]()})
			continue
		}
		entry.Tags = append(entry.Tags, Tag{Term: Some(category)})
	}

	return entry
}

func nonEmpty(s string) Optional[string] {
	if strings.TrimSpace(s) == "" {
		return None[string]()
	}
	return Some(s)
}

// mediaThumbnail reads media:thumbnail, either directly on the item or nested
// in a media:group as YouTube channel feeds do.
func mediaThumbnail(extensions ext.Extensions) Optional[string] {
	media, ok := extensions["media"]
	if !ok {
		return None[string]()
	}

	if url := firstAttr(media["thumbnail"], "url"); url != "" {
		return Some(url)
	}

	for _, group := range media["group"] {
		if url := firstAttr(group.Children["thumbnail"], "url"); url != "" {
			return Some(url)
		}
	}

	return None[string]()
}

func firstAttr(list []ext.Extension, attr string) string {
	for _, e := range list {
		if v := strings.TrimSpace(e.Attrs[attr]); v != "" {
			return v
		}
	}
	return ""
}

func extensionValue(extensions ext.Extensions, namespace, name string) Optional[string] {
	for _, e := range extensions[namespace][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return Some(v)
		}
	}
	return None[string]()
}
