package sync

import (
	"time"

	"github.com/drallgood/anilist-bookmark-sync/internal/bookmarks"
)

// State is where an item is in the pipeline
type State string

// Item states. Checkpointed, Skipped, NotFound, Failed and DryRun are final
// for a run.
const (
	StatePending      State = "pending"
	StateResolving    State = "resolving"
	StateUpdating     State = "updating"
	StateCheckpointed State = "checkpointed"
	StateSkipped      State = "skipped"
	StateNotFound     State = "not_found"
	StateFailed       State = "failed"
	StateDryRun       State = "dry_run"
)

// Final reports whether no further work happens for the item in this run
func (s State) Final() bool {
	switch s {
	case StateCheckpointed, StateSkipped, StateNotFound, StateFailed, StateDryRun:
		return true
	}
	return false
}

// ItemResult is the outcome for one bookmark
type ItemResult struct {
	Item           bookmarks.Item
	State          State
	CatalogID      int
	CanonicalTitle string
	Progress       int
	Renamed        bool
	Attempts       int
	Error          string
}

// Summary describes a finished run
type Summary struct {
	Items    []ItemResult
	Passes   int
	Renamed  int
	Duration time.Duration
}

// Count returns the number of items that ended in state
func (s *Summary) Count(state State) int {
	n := 0
	for _, r := range s.Items {
		if r.State == state {
			n++
		}
	}
	return n
}

// Counts returns the number of items per final state
func (s *Summary) Counts() map[State]int {
	counts := make(map[State]int)
	for _, r := range s.Items {
		counts[r.State]++
	}
	return counts
}
