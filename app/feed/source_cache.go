package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	defaultRefreshInterval = 3600
	defaultMaxItems        = 1
	defaultTimeout         = 25
)

// SourceCache holds the parsed source definitions found in a directory of YAML files.
type SourceCache struct {
	sourcesDir string
	cache      map[string]*Source
	mu         sync.RWMutex
}

func NewSourceCache(sourcesDir string) *SourceCache {
	return &SourceCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Source),
	}
}

func (sc *SourceCache) Run() error {
	if _, err := os.Stat(sc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		source, err := sc.LoadSource(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", name, "kind", source.Kind, "enabled", source.Settings.Enabled)
	}

	return nil
}

func (sc *SourceCache) LoadSource(name string) (*Source, error) {
	file := filepath.Join(sc.sourcesDir, name+".yml")
	source, err := parseSource(file)
	if err != nil {
		return nil, err
	}

	source.Name = name

	if err := validateSource(source); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", file, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[source.Name] = source

	return source, nil
}

func (sc *SourceCache) GetSource(name string) (*Source, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	source, ok := sc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source with name '%s' not found", name)
	}
	return source, nil
}

// Enabled returns the enabled sources of the given kind ordered by name.
func (sc *SourceCache) Enabled(kind SourceKind) []*Source {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	var sources []*Source
	for _, s := range sc.cache {
		if s.Settings.Enabled && s.Kind == kind {
			sources = append(sources, s)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

func (sc *SourceCache) Count() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func parseSource(file string) (*Source, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if source.Kind == "" {
		source.Kind = SourceKindNews
	}
	if source.Settings.RefreshInterval == 0 {
		source.Settings.RefreshInterval = defaultRefreshInterval
	}
	if source.Settings.MaxItems == 0 {
		source.Settings.MaxItems = defaultMaxItems
	}
	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = defaultTimeout
	}

	return &source, nil
}

func validateSource(source *Source) error {
	if source == nil {
		return fmt.Errorf("source is nil")
	}

	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if source.URL == "" {
		return fmt.Errorf("source URL is required")
	}

	switch source.Kind {
	case SourceKindNews, SourceKindVideo:
	default:
		return fmt.Errorf("unknown source kind: %s", source.Kind)
	}

	nonNegativeFields := map[string]int{
		"refresh interval": source.Settings.RefreshInterval,
		"max items":        source.Settings.MaxItems,
		"timeout":          source.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for i, filter := range source.Filters {
		if !filterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
