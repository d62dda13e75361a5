package sync

import (
	"time"

	"github.com/drallgood/anilist-bookmark-sync/internal/config"
	"github.com/drallgood/anilist-bookmark-sync/internal/progress"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

// Options controls a sync run
type Options struct {
	// Status is the list status pushed for every item
	Status string
	// ItemDelay is the pause after every processed item
	ItemDelay time.Duration
	// BatchPause is the pause before a failed pass restarts
	BatchPause time.Duration
	// Cooldown is the pause when a call gives up on rate limiting
	Cooldown time.Duration
	// MaxItemAttempts bounds the attempts per item before the pass fails
	MaxItemAttempts int
	// DryRun resolves items without updating, renaming or checkpointing
	DryRun bool
	// Filter limits the run to titles that fuzzy-match it
	Filter string
	// Limit caps the number of processed items per pass; 0 means no cap
	Limit int
	// VolumeMultiplier converts volume-only progress to chapters
	VolumeMultiplier float64
	// NotFoundReport is where the mismatch report is written; empty disables it
	NotFoundReport string
	// Sleeper performs every wait (default: util.RealSleeper)
	Sleeper util.Sleeper
}

// OptionsFromConfig maps the application configuration to sync options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Status:           cfg.Sync.Status,
		ItemDelay:        cfg.Sync.ItemDelay,
		BatchPause:       cfg.Sync.BatchPause,
		Cooldown:         cfg.Request.Cooldown,
		MaxItemAttempts:  cfg.Sync.MaxItemAttempts,
		DryRun:           cfg.Sync.DryRun,
		Filter:           cfg.Sync.Filter,
		Limit:            cfg.Sync.Limit,
		VolumeMultiplier: cfg.Match.VolumeMultiplier,
		NotFoundReport:   cfg.Paths.NotFoundReport,
	}
}

func (o Options) withDefaults() Options {
	if o.Status == "" {
		o.Status = config.DefaultListStatus
	}
	if o.MaxItemAttempts < 1 {
		o.MaxItemAttempts = 3
	}
	if o.ItemDelay < 0 {
		o.ItemDelay = 0
	}
	if o.BatchPause <= 0 {
		o.BatchPause = 60 * time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 60 * time.Second
	}
	if o.VolumeMultiplier <= 0 {
		o.VolumeMultiplier = progress.DefaultVolumeMultiplier
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Sleeper == nil {
		o.Sleeper = util.RealSleeper{}
	}
	return o
}
