package checkpoint

import (
	"sync"

	"github.com/drallgood/anilist-bookmark-sync/internal/match"
)

// Set is the set of titles already synchronized. Membership ignores case;
// titles are kept in insertion order with their original spelling.
type Set struct {
	mu     sync.RWMutex
	titles []string
	index  map[string]int
}

// NewSet returns a set holding titles
func NewSet(titles ...string) *Set {
	s := &Set{index: make(map[string]int)}
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Add inserts title. It reports false when the title was already present or
// is blank.
func (s *Set) Add(title string) bool {
	key := match.Fold(title)
	if key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.titles)
	s.titles = append(s.titles, title)
	return true
}

// Contains reports whether title is in the set, ignoring case
func (s *Set) Contains(title string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[match.Fold(title)]
	return ok
}

// Rename replaces from with to, keeping its position. When to is already
// present the entry for from is dropped. It reports whether from was found.
func (s *Set) Rename(from, to string) bool {
	fromKey, toKey := match.Fold(from), match.Fold(to)
	if toKey == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[fromKey]
	if !ok {
		return false
	}

	if fromKey == toKey {
		s.titles[pos] = to
		return true
	}

	if _, exists := s.index[toKey]; exists {
		s.titles = append(s.titles[:pos], s.titles[pos+1:]...)
	} else {
		s.titles[pos] = to
	}
	s.reindex()
	return true
}

// Titles returns the titles in insertion order
func (s *Set) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.titles))
	copy(out, s.titles)
	return out
}

// Len returns the number of titles
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.titles)
}

func (s *Set) reindex() {
	s.index = make(map[string]int, len(s.titles))
	for i, t := range s.titles {
		s.index[match.Fold(t)] = i
	}
}
