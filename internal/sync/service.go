// Package sync drives the bookmark synchronization: every item is resolved to
// an AniList media, its list entry is updated and the item is checkpointed.
// A pass that fails is retried in full after a pause; checkpointed items are
// skipped on every later pass and run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/bookmarks"
	"github.com/drallgood/anilist-bookmark-sync/internal/checkpoint"
	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/mismatch"
	"github.com/drallgood/anilist-bookmark-sync/internal/resolver"
)

// Resolver maps a title to a catalog entry
type Resolver interface {
	Resolve(ctx context.Context, title string) (resolver.Result, error)
}

// Updater pushes list status and progress to the catalog
type Updater interface {
	SaveMediaListEntry(ctx context.Context, mediaID int, status string, progress int) (*anilist.MediaListEntry, error)
}

// BookmarkRenamer rewrites a title in the local bookmarks
type BookmarkRenamer interface {
	Rename(from, to string) (bool, error)
}

// CheckpointStore loads and persists the checkpoint set
type CheckpointStore interface {
	Load() (*checkpoint.Set, error)
	Persist(set *checkpoint.Set) error
}

// Service handles the synchronization of local bookmarks to AniList
type Service struct {
	resolver  Resolver
	updater   Updater
	bookmarks BookmarkRenamer
	store     CheckpointStore
	report    *mismatch.Report
	opts      Options
	log       *logger.Logger
}

// NewService creates a new sync service. report may be nil.
func NewService(res Resolver, upd Updater, bm BookmarkRenamer, store CheckpointStore, report *mismatch.Report, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	if report == nil {
		report = mismatch.NewReport(log)
	}

	return &Service{
		resolver:  res,
		updater:   upd,
		bookmarks: bm,
		store:     store,
		report:    report,
		opts:      opts.withDefaults(),
		log:       log.With(map[string]interface{}{"component": "sync"}),
	}
}

// Report returns the mismatch report of the service
func (s *Service) Report() *mismatch.Report {
	return s.report
}

// Run synchronizes items in order. A pass that fails persists the checkpoint,
// pauses and starts over; Run only returns early when ctx is cancelled.
func (s *Service) Run(ctx context.Context, items []bookmarks.Item) (*Summary, error) {
	start := time.Now()

	s.log.Info("========================================")
	s.log.Info("STARTING BOOKMARK SYNCHRONIZATION", map[string]interface{}{
		"items":   len(items),
		"status":  s.opts.Status,
		"dry_run": s.opts.DryRun,
		"filter":  s.opts.Filter,
		"limit":   s.opts.Limit,
	})
	s.log.Info("========================================")

	set, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	items = s.selectItems(items)
	summary := &Summary{Items: make([]ItemResult, len(items))}
	for i, item := range items {
		summary.Items[i] = ItemResult{Item: item, State: StatePending}
	}

	for {
		summary.Passes++
		err := s.runPass(ctx, set, summary)
		if err == nil {
			break
		}

		s.persist(set)

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.finish(summary, start)
			return summary, ctxErr
		}

		s.log.Error("Sync pass failed, pausing before restart", map[string]interface{}{
			"error": err.Error(),
			"pass":  summary.Passes,
			"pause": s.opts.BatchPause.String(),
		})
		if err := s.opts.Sleeper.Sleep(ctx, s.opts.BatchPause); err != nil {
			s.finish(summary, start)
			return summary, err
		}
	}

	s.finish(summary, start)
	s.log.Info("Sync completed successfully", map[string]interface{}{
		"passes":       summary.Passes,
		"checkpointed": summary.Count(StateCheckpointed),
		"skipped":      summary.Count(StateSkipped),
		"not_found":    summary.Count(StateNotFound),
		"failed":       summary.Count(StateFailed),
		"dry_run":      summary.Count(StateDryRun),
		"renamed":      summary.Renamed,
		"duration":     summary.Duration.String(),
	})
	return summary, nil
}

func (s *Service) finish(summary *Summary, start time.Time) {
	summary.Duration = time.Since(start)
	if s.report.Len() == 0 {
		return
	}
	if err := s.report.SaveToFile(s.opts.NotFoundReport); err != nil {
		s.log.Error("Failed to save mismatch report", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// runPass walks every item once. Items that reached a final state earlier in
// the run are passed over without calls or delay.
func (s *Service) runPass(ctx context.Context, set *checkpoint.Set, summary *Summary) error {
	processed := 0

	for i := range summary.Items {
		result := &summary.Items[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		if result.State.Final() {
			continue
		}

		if set.Contains(result.Item.Title) {
			result.State = StateSkipped
			s.log.Debug("Skipping already processed item", map[string]interface{}{
				"title": result.Item.Title,
			})
			continue
		}

		if s.opts.Limit > 0 && processed >= s.opts.Limit {
			s.log.Info("Reached item limit, stopping pass", map[string]interface{}{
				"limit": s.opts.Limit,
			})
			return nil
		}
		processed++

		if err := s.processItem(ctx, set, result, summary); err != nil {
			return fmt.Errorf("item %q: %w", result.Item.Title, err)
		}

		if err := s.opts.Sleeper.Sleep(ctx, s.opts.ItemDelay); err != nil {
			return err
		}
	}

	return nil
}

// selectItems applies the title filter
func (s *Service) selectItems(items []bookmarks.Item) []bookmarks.Item {
	if s.opts.Filter == "" {
		return items
	}

	var selected []bookmarks.Item
	for _, item := range items {
		if fuzzy.MatchFold(s.opts.Filter, item.Title) {
			selected = append(selected, item)
		}
	}

	s.log.Info("Filter applied", map[string]interface{}{
		"filter":   s.opts.Filter,
		"selected": len(selected),
		"total":    len(items),
	})
	return selected
}

func (s *Service) persist(set *checkpoint.Set) {
	if s.opts.DryRun {
		return
	}
	if err := s.store.Persist(set); err != nil {
		s.log.Error("Failed to persist checkpoint", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
