// Package mismatch collects the bookmarks that could not be synchronized and
// exports them as a JSON report for manual follow-up. The report is write-only:
// nothing reads it back.
package mismatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/match"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

// Report is the collection of entries for one run
type Report struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int
	logger  *logger.Logger
	now     func() time.Time
}

// NewReport creates an empty report
func NewReport(log *logger.Logger) *Report {
	if log == nil {
		log = logger.Get()
	}
	return &Report{
		index:  make(map[string]int),
		logger: log,
		now:    time.Now,
	}
}

// Add records an entry. Adding the same title and reason again (a batch
// restart revisiting the item) bumps Attempts instead of duplicating it.
func (r *Report) Add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry.Timestamp == 0 {
		entry.Timestamp = now.Unix()
	}
	if entry.Attempts == 0 {
		entry.Attempts = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	key := match.Fold(entry.Title) + "\x00" + entry.Reason
	if i, ok := r.index[key]; ok {
		existing := &r.entries[i]
		existing.Attempts += entry.Attempts
		existing.Timestamp = entry.Timestamp
		if entry.Detail != "" {
			existing.Detail = entry.Detail
		}
		return
	}

	r.index[key] = len(r.entries)
	r.entries = append(r.entries, entry)

	r.logger.Info("Mismatch recorded", map[string]interface{}{
		"title":  entry.Title,
		"reason": entry.Reason,
	})
}

// GetAll returns a copy of all collected entries
func (r *Report) GetAll() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Entry, len(r.entries))
	copy(result, r.entries)
	return result
}

// Len returns the number of entries
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all collected entries
func (r *Report) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.index = make(map[string]int)
}

type exportStruct struct {
	Items     []Entry `json:"items"`
	Count     int     `json:"count"`
	Timestamp int64   `json:"timestamp"`
}

// ExportJSON returns all entries as an indented JSON document
func (r *Report) ExportJSON() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.entries
	if items == nil {
		items = []Entry{}
	}

	jsonData, err := json.MarshalIndent(exportStruct{
		Items:     items,
		Count:     len(items),
		Timestamp: r.now().Unix(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal mismatches to JSON: %w", err)
	}
	return string(jsonData), nil
}

// SaveToFile writes the JSON export to path. An empty path disables the
// report.
func (r *Report) SaveToFile(path string) error {
	if path == "" {
		r.logger.Debug("No output path specified for mismatch report")
		return nil
	}

	data, err := r.ExportJSON()
	if err != nil {
		return err
	}

	if err := util.WriteFileAtomic(path, []byte(data+"\n"), 0644); err != nil {
		r.logger.Error("Failed to write mismatch report", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to write mismatch report: %w", err)
	}

	r.logger.Info("Mismatch report saved", map[string]interface{}{
		"path":  path,
		"count": r.Len(),
	})
	return nil
}
