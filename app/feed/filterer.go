package feed

import (
	"fmt"
	"strings"

	"github.com/bergham123/anime-news-bot/app/article"
)

var filterFields = map[string]bool{
	"title":       true,
	"description": true,
	"categories":  true,
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run reports whether the record is rejected by the source filters, and why.
func (f *Filterer) Run(record article.Record, filters []SourceFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(record, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(record article.Record, field string) string {
	switch field {
	case "title":
		return record.Title
	case "description":
		return record.DescriptionFull
	case "categories":
		return strings.Join(record.Categories, " ")
	default:
		return ""
	}
}
