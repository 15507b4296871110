package feed

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/bergham123/anime-news-bot/app/article"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalizer maps raw feed entries into canonical article records.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

func (n *Normalizer) Run(entry RawEntry) article.Record {
	title := entry.Title.OrElse("")
	image, hasImage := extractImage(entry)

	record := article.Record{
		Title:           title,
		DescriptionFull: extractFullText(entry),
		Categories:      extractCategories(entry),
	}

	imageURL := ""
	if hasImage {
		imageURL = image
		record.Image = &image
	}
	record.ID = article.Fingerprint(title, imageURL)

	now := n.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	return record
}

// Identity returns the fingerprint an entry would get, without building the record.
func Identity(entry RawEntry) string {
	image, _ := extractImage(entry)
	return article.Fingerprint(entry.Title.OrElse(""), image)
}

func extractFullText(entry RawEntry) string {
	if content, ok := entry.Content.Get(); ok {
		return PlainText(content)
	}
	if summary, ok := entry.Summary.Get(); ok {
		return PlainText(summary)
	}
	return ""
}

func extractImage(entry RawEntry) (string, bool) {
	if thumb, ok := entry.MediaThumbnail.Get(); ok {
		return thumb, true
	}

	markup, ok := entry.Content.Get()
	if !ok {
		markup, ok = entry.Summary.Get()
	}
	if !ok {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	src := strings.TrimSpace(doc.Find("img[src]").First().AttrOr("src", ""))
	if src == "" {
		return "", false
	}
	return src, true
}

func extractCategories(entry RawEntry) []string {
	categories := make([]string, 0, len(entry.Tags))
	for _, tag := range entry.Tags {
		if term, ok := tag.Term.Get(); ok {
			categories = append(categories, term)
		}
	}
	return categories
}

// PlainText strips all markup from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(fragment, " "))
	}

	doc.Find("script,noscript,style").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	for _, node := range doc.Nodes {
		collectText(node, &parts)
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " "))
}

func collectText(node *html.Node, parts *[]string) {
	if node.Type == html.TextNode {
		if t := strings.TrimSpace(node.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}
