// Package bookmarks reads the local bookmarks file, one "title || chapter"
// entry per line, and rewrites titles in place.
package bookmarks

import (
	"fmt"
	"os"
	"strings"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/match"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

// Separator splits the title from the chapter text
const Separator = "||"

// Item is one bookmark
type Item struct {
	Title       string
	RawProgress string
	// Line is the 1-based line number in the file
	Line int
}

// Store is the bookmarks file
type Store struct {
	path   string
	logger *logger.Logger
}

// NewStore creates a store for path
func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Get()
	}
	return &Store{
		path:   path,
		logger: log.With(map[string]interface{}{"component": "bookmarks"}),
	}
}

// Path returns the bookmarks file path
func (s *Store) Path() string {
	return s.path
}

// Load parses the file. Lines without a separator or without a title are
// skipped.
func (s *Store) Load() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks %q: %w", s.path, err)
	}

	var items []Item
	skipped := 0
	for i, line := range splitLines(string(data)) {
		title, chapter, ok := parseLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				skipped++
			}
			continue
		}
		items = append(items, Item{Title: title, RawProgress: chapter, Line: i + 1})
	}

	s.logger.Info("Bookmarks loaded", map[string]interface{}{
		"path":    s.path,
		"items":   len(items),
		"skipped": skipped,
	})
	return items, nil
}

// Rename rewrites every entry titled from (ignoring case) as to, keeping its
// chapter text. All other lines are preserved byte for byte. It reports
// whether any line changed.
func (s *Store) Rename(from, to string) (bool, error) {
	if strings.TrimSpace(to) == "" {
		return false, fmt.Errorf("rename %q: empty target title", from)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to read bookmarks %q: %w", s.path, err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	changed := 0
	for i, raw := range lines {
		body, ending := splitEnding(raw)
		title, chapter, ok := parseLine(body)
		if !ok || !match.Equal(title, from) {
			continue
		}
		rewritten := fmt.Sprintf("%s %s %s", strings.TrimSpace(to), Separator, chapter) + ending
		if rewritten != raw {
			lines[i] = rewritten
			changed++
		}
	}

	if changed == 0 {
		return false, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat bookmarks %q: %w", s.path, err)
	}
	if err := util.WriteFileAtomic(s.path, []byte(strings.Join(lines, "")), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to rewrite bookmarks: %w", err)
	}

	s.logger.Info("Standardized bookmark title", map[string]interface{}{
		"from":  from,
		"to":    to,
		"lines": changed,
	})
	return true, nil
}

func parseLine(line string) (title, chapter string, ok bool) {
	before, after, found := strings.Cut(line, Separator)
	if !found {
		return "", "", false
	}
	title = strings.TrimSpace(before)
	if title == "" {
		return "", "", false
	}
	return title, strings.TrimSpace(after), true
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func splitEnding(raw string) (body, ending string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	default:
		return raw, ""
	}
}
