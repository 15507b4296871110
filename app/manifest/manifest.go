package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bergham123/anime-news-bot/app/fault"
	"github.com/bergham123/anime-news-bot/app/fsutil"
)

const (
	MonthFile = "month_manifest.json"
	YearFile  = "year_manifest.json"
)

var (
	dayFileRe = regexp.MustCompile(`^(\d{2})-\d{2}\.json$`)
	monthRe   = regexp.MustCompile(`^[0-1][0-9]$`)
	yearRe    = regexp.MustCompile(`^\d{4}$`)
)

// Descending is a string map that serializes with its keys in descending order.
type Descending map[string]string

func (d Descending) MarshalJSON() ([]byte, error) {
	keys := d.Keys()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(d[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Keys returns the map keys in descending order.
func (d Descending) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

type Month struct {
	Year  string     `json:"year"`
	Month string     `json:"month"`
	Days  Descending `json:"days"`
}

type Year struct {
	Year   string     `json:"year"`
	Months Descending `json:"months"`
}

// Builder rebuilds month and year rollups from the layout of the data root.
// It never reads prior manifest content.
type Builder struct {
	root string
}

func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

func (b *Builder) monthDir(year, month int) string {
	return filepath.Join(b.root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month))
}

func (b *Builder) yearDir(year int) string {
	return filepath.Join(b.root, fmt.Sprintf("%04d", year))
}

func (b *Builder) MonthPath(year, month int) string {
	return filepath.ToSlash(filepath.Join(b.monthDir(year, month), MonthFile))
}

func (b *Builder) YearPath(year int) string {
	return filepath.ToSlash(filepath.Join(b.yearDir(year), YearFile))
}

// RebuildMonth maps every day file of the month to its day number and writes the manifest.
func (b *Builder) RebuildMonth(year, month int) (*Month, error) {
	dir := b.monthDir(year, month)

	entries, err := readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list month %04d-%02d: %w", year, month, err)
	}

	days := Descending{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := dayFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		days[m[1]] = filepath.ToSlash(filepath.Join(dir, entry.Name()))
	}

	manifest := &Month{
		Year:  strconv.Itoa(year),
		Month: fmt.Sprintf("%02d", month),
		Days:  days,
	}

	if err := fsutil.WriteJSON(b.MonthPath(year, month), manifest); err != nil {
		return nil, fmt.Errorf("failed to write month manifest: %w", err)
	}

	return manifest, nil
}

// RebuildYear maps every two-digit month directory of the year to its month manifest path.
func (b *Builder) RebuildYear(year int) (*Year, error) {
	dir := b.yearDir(year)

	entries, err := readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list year %04d: %w", year, err)
	}

	months := Descending{}
	for _, entry := range entries {
		if !entry.IsDir() || !monthRe.MatchString(entry.Name()) {
			continue
		}
		months[entry.Name()] = filepath.ToSlash(filepath.Join(dir, entry.Name(), MonthFile))
	}

	manifest := &Year{
		Year:   strconv.Itoa(year),
		Months: months,
	}

	if err := fsutil.WriteJSON(b.YearPath(year), manifest); err != nil {
		return nil, fmt.Errorf("failed to write year manifest: %w", err)
	}

	return manifest, nil
}

// RebuildAll rebuilds every month and year found under the root and returns the years touched.
func (b *Builder) RebuildAll() ([]int, error) {
	entries, err := readDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list data root: %w", err)
	}

	var years []int
	for _, entry := range entries {
		if !entry.IsDir() || !yearRe.MatchString(entry.Name()) {
			continue
		}
		year, _ := strconv.Atoi(entry.Name())

		if err := b.RebuildTree(year); err != nil {
			return years, err
		}
		years = append(years, year)
	}

	return years, nil
}

// RebuildTree rebuilds every month manifest of the year, then the year manifest.
func (b *Builder) RebuildTree(year int) error {
	months, err := readDir(b.yearDir(year))
	if err != nil {
		return fmt.Errorf("failed to list year %04d: %w", year, err)
	}

	for _, m := range months {
		if !m.IsDir() || !monthRe.MatchString(m.Name()) {
			continue
		}
		month, _ := strconv.Atoi(m.Name())
		if _, err := b.RebuildMonth(year, month); err != nil {
			return err
		}
	}

	_, err = b.RebuildYear(year)
	return err
}

func (b *Builder) LoadMonth(year, month int) (*Month, bool, error) {
	var m Month
	found, err := fsutil.ReadJSON(b.MonthPath(year, month), &m)
	if err != nil || !found {
		return nil, found, err
	}
	return &m, true, nil
}

func (b *Builder) LoadYear(year int) (*Year, bool, error) {
	var y Year
	found, err := fsutil.ReadJSON(b.YearPath(year), &y)
	if err != nil || !found {
		return nil, found, err
	}
	return &y, true, nil
}

// readDir lists dir, treating a missing directory as empty.
func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.New(fault.CorruptState, "failed to list", dir, err)
	}
	return entries, nil
}
