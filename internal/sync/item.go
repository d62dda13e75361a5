package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/checkpoint"
	"github.com/drallgood/anilist-bookmark-sync/internal/executor"
	"github.com/drallgood/anilist-bookmark-sync/internal/mismatch"
	"github.com/drallgood/anilist-bookmark-sync/internal/progress"
	"github.com/drallgood/anilist-bookmark-sync/internal/resolver"
)

// processItem runs syncItem until it settles. Rate limiting waits out a
// cooldown and retries without consuming an attempt. A catalog error marks
// the item failed. Any other error consumes an attempt; when none are left the
// error is returned so the pass can be restarted.
func (s *Service) processItem(ctx context.Context, set *checkpoint.Set, result *ItemResult, summary *Summary) error {
	log := s.log.With(map[string]interface{}{
		"title": result.Item.Title,
		"line":  result.Item.Line,
	})

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxItemAttempts; {
		result.Attempts++
		err := s.syncItem(ctx, set, result, summary)
		if err == nil {
			result.Error = ""
			return nil
		}

		if isCancellation(err) || ctx.Err() != nil {
			result.State = StatePending
			return err
		}

		if errors.Is(err, executor.ErrRateLimited) {
			log.Warn("Rate limited, cooling down", map[string]interface{}{
				"cooldown": s.opts.Cooldown.String(),
			})
			if err := s.opts.Sleeper.Sleep(ctx, s.opts.Cooldown); err != nil {
				result.State = StatePending
				return err
			}
			continue
		}

		if anilist.IsRemoteError(err) {
			reason := mismatch.ReasonUpdateError
			if result.State == StateResolving {
				reason = mismatch.ReasonSearchError
			}
			result.State = StateFailed
			result.Error = err.Error()
			log.Error("Catalog rejected the item", map[string]interface{}{
				"error":      err.Error(),
				"catalog_id": result.CatalogID,
			})
			s.report.Add(mismatch.Entry{
				Title:       result.Item.Title,
				RawProgress: result.Item.RawProgress,
				Line:        result.Item.Line,
				CatalogID:   result.CatalogID,
				Reason:      reason,
				Detail:      err.Error(),
			})
			return nil
		}

		lastErr = err
		log.Warn("Item attempt failed", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": s.opts.MaxItemAttempts,
			"error":        err.Error(),
		})
		attempt++
	}

	result.State = StatePending
	result.Error = lastErr.Error()
	return fmt.Errorf("giving up after %d attempts: %w", s.opts.MaxItemAttempts, lastErr)
}

// syncItem resolves, updates and checkpoints one item
func (s *Service) syncItem(ctx context.Context, set *checkpoint.Set, result *ItemResult, summary *Summary) error {
	item := result.Item
	log := s.log.With(map[string]interface{}{"title": item.Title})

	value, err := progress.Normalize(item.RawProgress, s.opts.VolumeMultiplier)
	if errors.Is(err, progress.ErrUnparseable) {
		log.Warn("Could not parse progress, using 0", map[string]interface{}{
			"raw_progress": item.RawProgress,
		})
	}
	chapter := progress.Chapter(value)
	result.Progress = chapter

	result.State = StateResolving
	res, err := s.resolver.Resolve(ctx, item.Title)
	if err != nil {
		return err
	}

	if !res.Found {
		if res.Rename != nil && !s.opts.DryRun && !result.Renamed {
			result.CanonicalTitle = res.CanonicalTitle
			s.applyRename(set, res.Rename, result, summary)
		}
		result.State = StateNotFound
		log.Warn("Title not found on any catalog")
		s.report.Add(mismatch.Entry{
			Title:       item.Title,
			RawProgress: item.RawProgress,
			Line:        item.Line,
			Query:       resolver.CleanQuery(item.Title),
			Reason:      mismatch.ReasonNotFound,
		})
		return nil
	}

	result.CatalogID = res.CatalogID
	result.CanonicalTitle = res.CanonicalTitle

	if s.opts.DryRun {
		result.State = StateDryRun
		log.Info("Dry run: would update list entry", map[string]interface{}{
			"media_id": res.CatalogID,
			"status":   s.opts.Status,
			"progress": chapter,
			"rename":   res.Rename != nil,
		})
		return nil
	}

	if res.Rename != nil && !result.Renamed {
		s.applyRename(set, res.Rename, result, summary)
	}

	result.State = StateUpdating
	entry, err := s.updater.SaveMediaListEntry(ctx, res.CatalogID, s.opts.Status, chapter)
	if err != nil {
		return err
	}

	set.Add(item.Title)
	if res.HasCanonicalTitle {
		set.Add(res.CanonicalTitle)
	}
	if err := s.store.Persist(set); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	result.State = StateCheckpointed
	fields := map[string]interface{}{
		"media_id": res.CatalogID,
		"progress": chapter,
		"source":   res.Source,
	}
	if entry != nil {
		fields["entry_id"] = entry.ID
	}
	log.Info("Updated list entry", fields)
	return nil
}

// applyRename rewrites the bookmark and checkpoint titles. A failed bookmark
// rewrite is logged and does not stop the update.
func (s *Service) applyRename(set *checkpoint.Set, rename *resolver.RenameEvent, result *ItemResult, summary *Summary) {
	log := s.log.With(map[string]interface{}{
		"from":   rename.From,
		"to":     rename.To,
		"source": rename.Source,
	})

	changed, err := s.bookmarks.Rename(rename.From, rename.To)
	if err != nil {
		log.Warn("Failed to rename bookmark", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	set.Rename(rename.From, rename.To)
	result.Renamed = true
	summary.Renamed++
	log.Info("Renamed bookmark to canonical title", map[string]interface{}{
		"bookmark_changed": changed,
	})
}
