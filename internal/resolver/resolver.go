// Package resolver maps a local title to an AniList media ID, falling back to
// MyAnimeList alternative titles when a direct search finds nothing.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/api/mal"
	"github.com/drallgood/anilist-bookmark-sync/internal/cache"
	"github.com/drallgood/anilist-bookmark-sync/internal/executor"
	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/match"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

// Sources of a resolution
const (
	SourceAniList     = "AniList"
	SourceMyAnimeList = "MyAnimeList"
)

// DefaultAlternateDelay is the pause between alternate-title searches
const DefaultAlternateDelay = 2 * time.Second

// PrimaryCatalog searches the catalog that receives the updates
type PrimaryCatalog interface {
	SearchMedia(ctx context.Context, search string) ([]anilist.Media, error)
}

// SecondaryCatalog provides alternative titles
type SecondaryCatalog interface {
	SearchManga(ctx context.Context, query string, limit, offset int) ([]mal.Manga, error)
}

// RenameEvent asks the caller to rewrite a local title to its canonical form
type RenameEvent struct {
	From   string
	To     string
	Source string
}

// Result is the outcome of resolving one title.
// Found is false when no catalog knows the title, which is not an error. A
// result that is not found may still carry a canonical title and Rename when
// the secondary catalog knew the title well enough.
type Result struct {
	CatalogID         int
	Found             bool
	CanonicalTitle    string
	HasCanonicalTitle bool
	Source            string
	Rename            *RenameEvent
}

// Config holds configuration for a Resolver
type Config struct {
	// Threshold is the score an alternate title needs to become canonical
	Threshold float64
	// AlternateDelay is the pause between alternate-title searches
	AlternateDelay time.Duration
	// SearchLimit is the number of secondary results requested
	SearchLimit int
	// CacheTTL bounds how long a resolution is reused; 0 keeps it for the run
	CacheTTL time.Duration
	// Sleeper performs the alternate delay (default: util.RealSleeper)
	Sleeper util.Sleeper
}

// Resolver resolves titles against the primary and secondary catalogs.
// It performs no storage side effects: renames are returned to the caller.
type Resolver struct {
	primary        PrimaryCatalog
	secondary      SecondaryCatalog
	matcher        *match.Matcher
	sleeper        util.Sleeper
	alternateDelay time.Duration
	searchLimit    int
	results        cache.Cache[string, Result]
	logger         *logger.Logger
}

// New creates a Resolver. secondary may be nil, in which case titles missing
// from the primary catalog resolve as not found.
func New(primary PrimaryCatalog, secondary SecondaryCatalog, cfg Config, log *logger.Logger) *Resolver {
	if cfg.AlternateDelay < 0 {
		cfg.AlternateDelay = 0
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = mal.DefaultSearchLimit
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = util.RealSleeper{}
	}
	if log == nil {
		log = logger.Get()
	}
	log = log.With(map[string]interface{}{"component": "resolver"})

	results := cache.NewMemoryCache[string, Result](log)
	if cfg.CacheTTL > 0 {
		results = cache.WithTTL(results, cfg.CacheTTL)
	}

	return &Resolver{
		primary:        primary,
		secondary:      secondary,
		matcher:        match.NewMatcher(cfg.Threshold),
		sleeper:        cfg.Sleeper,
		alternateDelay: cfg.AlternateDelay,
		searchLimit:    cfg.SearchLimit,
		results:        results,
		logger:         log,
	}
}

// Resolve looks title up in the primary catalog, then through the secondary
// catalog's alternative titles. Errors from the direct search, network
// failures and cancellation are returned; everything else that goes wrong
// on the fallback path is logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, title string) (Result, error) {
	key := match.Fold(title)
	if cached, ok := r.results.Get(key); ok {
		r.logger.Debug("Using cached resolution", map[string]interface{}{"title": title})
		return cached, nil
	}

	res, err := r.resolve(ctx, title)
	if err != nil {
		return Result{}, err
	}

	r.results.Set(key, res, 0)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, title string) (Result, error) {
	media, err := r.primary.SearchMedia(ctx, title)
	if err != nil {
		return Result{}, fmt.Errorf("primary search for %q: %w", title, err)
	}

	if picked, name, ok := pick(media, title); ok {
		r.logger.Info("Found on AniList", map[string]interface{}{
			"title":    title,
			"media_id": picked.ID,
			"match":    name,
		})
		return r.found(title, picked.ID, name, SourceAniList, SourceAniList), nil
	}

	if r.secondary == nil {
		r.logger.Info("Not found on AniList and no secondary catalog configured", map[string]interface{}{
			"title": title,
		})
		return Result{}, nil
	}

	alternates, best, err := r.alternates(ctx, title)
	if err != nil {
		return Result{}, err
	}
	if len(alternates) == 0 {
		r.logger.Info("No alternative titles found", map[string]interface{}{"title": title})
		return Result{}, nil
	}

	// A good enough secondary title becomes canonical before any alternate
	// is tried, whether or not one of them resolves.
	canonical := ""
	if r.accepts(best) {
		canonical = best.Title
		r.logger.Info("Using MyAnimeList title as canonical", map[string]interface{}{
			"title":     title,
			"canonical": canonical,
			"score":     best.Score,
		})
	}

	for i, alt := range alternates {
		if i > 0 {
			if err := r.sleeper.Sleep(ctx, r.alternateDelay); err != nil {
				return Result{}, err
			}
		}

		media, err := r.primary.SearchMedia(ctx, alt.Title)
		if err != nil {
			if isFatal(err) {
				return Result{}, fmt.Errorf("primary search for alternate %q: %w", alt.Title, err)
			}
			r.logger.Warn("Alternate title search failed", map[string]interface{}{
				"title":     title,
				"alternate": alt.Title,
				"error":     err.Error(),
			})
			continue
		}

		if picked, name, ok := pick(media, alt.Title); ok {
			r.logger.Info("Found on AniList using alternative title", map[string]interface{}{
				"title":     title,
				"alternate": alt.Title,
				"media_id":  picked.ID,
			})
			if canonical != "" {
				return r.found(title, picked.ID, canonical, SourceMyAnimeList, SourceMyAnimeList), nil
			}
			return r.found(title, picked.ID, name, SourceAniList, SourceMyAnimeList), nil
		}
	}

	r.logger.Info("No alternative title resolved", map[string]interface{}{
		"title":      title,
		"alternates": len(alternates),
	})
	res := Result{}
	r.canonicalize(&res, title, canonical, SourceMyAnimeList)
	return res, nil
}

// found builds a positive result. canonical comes from titleSource; source
// names the catalog path that produced the match.
func (r *Resolver) found(title string, id int, canonical, titleSource, source string) Result {
	res := Result{
		CatalogID: id,
		Found:     true,
		Source:    source,
	}
	r.canonicalize(&res, title, canonical, titleSource)
	return res
}

// canonicalize records canonical on res and asks for a rename when it differs
// from title beyond case
func (r *Resolver) canonicalize(res *Result, title, canonical, titleSource string) {
	if canonical == "" {
		return
	}
	res.CanonicalTitle = canonical
	res.HasCanonicalTitle = true
	if !match.Equal(canonical, title) {
		res.Rename = &RenameEvent{From: title, To: canonical, Source: titleSource}
	}
}

func (r *Resolver) accepts(c match.Candidate) bool {
	return c.Title != "" && c.Score > r.matcher.Threshold
}

// alternates returns every distinct title the secondary catalog knows for
// title, best score first, along with the single best candidate
func (r *Resolver) alternates(ctx context.Context, title string) ([]match.Candidate, match.Candidate, error) {
	query := CleanQuery(title)
	if query == "" {
		return nil, match.Candidate{}, nil
	}

	r.logger.Debug("Searching MyAnimeList", map[string]interface{}{
		"title": title,
		"query": query,
	})

	manga, err := r.secondary.SearchManga(ctx, query, r.searchLimit, 0)
	if err != nil {
		if isFatal(err) {
			return nil, match.Candidate{}, fmt.Errorf("secondary search for %q: %w", query, err)
		}
		r.logger.Warn("MyAnimeList search failed", map[string]interface{}{
			"title": title,
			"error": err.Error(),
		})
		return nil, match.Candidate{}, nil
	}

	seen := make(map[string]struct{})
	var candidates []match.Candidate
	for _, m := range manga {
		for _, t := range m.Titles() {
			key := match.Fold(t)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			candidates = append(candidates, match.Candidate{Title: t, Score: match.Score(title, t)})
		}
	}

	if len(candidates) == 0 {
		return nil, match.Candidate{}, nil
	}

	titles := make([]string, len(candidates))
	for i, c := range candidates {
		titles[i] = c.Title
	}
	best, _ := r.matcher.BestMatch(title, titles)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates, best, nil
}

// pick chooses a media for title: an exact variant match, then a partial
// one, then the first result. It returns the variant that matched.
func pick(media []anilist.Media, title string) (anilist.Media, string, bool) {
	if len(media) == 0 {
		return anilist.Media{}, "", false
	}

	for _, m := range media {
		for _, v := range m.Variants() {
			if match.Equal(v, title) {
				return m, v, true
			}
		}
	}

	for _, m := range media {
		for _, v := range m.Variants() {
			if match.Contains(v, title) {
				return m, v, true
			}
		}
	}

	return media[0], media[0].DisplayTitle(), true
}

// isFatal reports errors that end the resolution instead of moving on to the
// next alternate
func isFatal(err error) bool {
	return errors.Is(err, executor.ErrNetworkFailure) ||
		errors.Is(err, executor.ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
