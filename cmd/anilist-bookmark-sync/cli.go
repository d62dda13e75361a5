package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/api/mal"
	"github.com/drallgood/anilist-bookmark-sync/internal/bookmarks"
	"github.com/drallgood/anilist-bookmark-sync/internal/checkpoint"
	"github.com/drallgood/anilist-bookmark-sync/internal/config"
	"github.com/drallgood/anilist-bookmark-sync/internal/executor"
	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/resolver"
	"github.com/drallgood/anilist-bookmark-sync/internal/sync"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Load configuration from `FILE`",
			EnvVars: []string{"CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "anilist-token",
			Usage:   "AniList OAuth bearer token",
			EnvVars: []string{"ANILIST_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "mal-client-id",
			Usage:   "MyAnimeList API client ID",
			EnvVars: []string{"MAL_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "bookmarks",
			Aliases: []string{"b"},
			Usage:   "Bookmarks `FILE` (title || chapter per line)",
		},
		&cli.StringFlag{
			Name:  "checkpoint",
			Usage: "Checkpoint `FILE` of already synced titles",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format (json, console, auto)",
		},
	}
}

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Resolve titles without updating AniList or any local file",
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: "Only sync titles that fuzzy-match `TEXT`",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Process at most `N` items (0 for no limit)",
		},
		&cli.StringFlag{
			Name:  "status",
			Usage: "AniList list status to set (CURRENT, PLANNING, COMPLETED, PAUSED, ...)",
		},
		&cli.DurationFlag{
			Name:  "item-delay",
			Usage: "Pause after every processed item",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write unresolved titles to `FILE`",
		},
	}
}

// loadConfig builds the configuration from defaults, file, environment and
// flags, in increasing priority, and sets up the global logger from it.
// Credentials are not checked here.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(c, cfg)

	logger.ForceSetup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})

	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	setString("anilist-token", &cfg.AniList.Token)
	setString("mal-client-id", &cfg.MAL.ClientID)
	setString("bookmarks", &cfg.Paths.BookmarksFile)
	setString("checkpoint", &cfg.Paths.CheckpointFile)
	setString("log-level", &cfg.Logging.Level)
	setString("log-format", &cfg.Logging.Format)
	setString("filter", &cfg.Sync.Filter)
	setString("status", &cfg.Sync.Status)
	setString("report", &cfg.Paths.NotFoundReport)

	if c.IsSet("dry-run") {
		cfg.Sync.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("limit") {
		cfg.Sync.Limit = c.Int("limit")
	}
	if c.IsSet("item-delay") {
		cfg.Sync.ItemDelay = c.Duration("item-delay")
	}
	cfg.Sync.Status = strings.ToUpper(cfg.Sync.Status)
}

// clients bundles the catalog clients sharing one executor
type clients struct {
	anilist  *anilist.Client
	resolver *resolver.Resolver
}

func newClients(cfg *config.Config, log *logger.Logger) *clients {
	exec := executor.New(executor.Config{
		MaxRetries:   cfg.Request.MaxRetries,
		RetryDelay:   cfg.Request.RetryDelay,
		Cooldown:     cfg.Request.Cooldown,
		MaxCooldowns: cfg.Request.MaxCooldowns,
		HTTPClient:   &http.Client{Timeout: cfg.Request.Timeout},
	}, log)

	al := anilist.NewClient(anilist.ClientConfig{
		BaseURL: cfg.AniList.URL,
		Token:   cfg.AniList.Token,
	}, exec, log)

	var secondary resolver.SecondaryCatalog
	if cfg.MAL.ClientID != "" {
		secondary = mal.NewClient(mal.ClientConfig{
			BaseURL:  cfg.MAL.URL,
			ClientID: cfg.MAL.ClientID,
		}, exec, log)
	} else {
		log.Warn("No MyAnimeList client ID configured, alternate titles disabled")
	}

	res := resolver.New(al, secondary, resolver.Config{
		Threshold:      cfg.Match.Threshold,
		AlternateDelay: cfg.Sync.AlternateDelay,
		SearchLimit:    cfg.MAL.SearchLimit,
	}, log)

	return &clients{anilist: al, resolver: res}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runSync(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.Sync.DryRun {
		if err := cfg.Validate(true); err != nil {
			return err
		}
	}

	log, runID := logger.WithRunID(logger.Get())
	ctx, stop := signalContext(logger.NewContext(c.Context, log))
	defer stop()

	log.Info("Starting anilist-bookmark-sync", map[string]interface{}{
		"version":    version,
		"bookmarks":  cfg.Paths.BookmarksFile,
		"checkpoint": cfg.Paths.CheckpointFile,
		"dry_run":    cfg.Sync.DryRun,
	})

	store := checkpoint.NewStore(cfg.Paths.CheckpointFile, log)
	if err := store.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := store.Unlock(); err != nil {
			log.Warn("Failed to release checkpoint lock", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	bm := bookmarks.NewStore(cfg.Paths.BookmarksFile, log)
	items, err := bm.Load()
	if err != nil {
		return err
	}

	cl := newClients(cfg, log)
	svc := sync.NewService(cl.resolver, cl.anilist, bm, store, nil, sync.OptionsFromConfig(cfg), log)

	summary, err := svc.Run(ctx, items)
	if summary != nil {
		fmt.Fprintln(c.App.Writer, renderSummary(summary))
	}
	if errors.Is(err, context.Canceled) {
		log.Warn("Sync interrupted, progress saved", map[string]interface{}{
			"run_id": runID,
		})
		return nil
	}
	return err
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	items, err := bookmarks.NewStore(cfg.Paths.BookmarksFile, log).Load()
	if err != nil {
		return err
	}
	set, err := checkpoint.NewStore(cfg.Paths.CheckpointFile, log).Load()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, renderStatus(items, set))
	return nil
}

func resolveTitle(c *cli.Context) error {
	title := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if title == "" {
		return errors.New("resolve: a title is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	ctx, stop := signalContext(c.Context)
	defer stop()

	res, err := newClients(cfg, log).resolver.Resolve(ctx, title)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, renderResolution(title, res))
	return nil
}
