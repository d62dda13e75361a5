// anilist-bookmark-sync pushes the reading progress from a local manga
// bookmarks file to an AniList list.
//
// Environment Variables:
//
//	ANILIST_TOKEN      AniList OAuth bearer token
//	MAL_CLIENT_ID      MyAnimeList API client ID (alternate titles)
//	BOOKMARKS_FILE     (optional) bookmarks file (default: manga_bookmarks.txt)
//	CHECKPOINT_FILE    (optional) checkpoint file (default: progress.txt)
//	NOT_FOUND_REPORT   (optional) report of unresolved titles (default: not_found.json)
//	LIST_STATUS        (optional) list status to set (default: CURRENT)
//	LOG_LEVEL          (optional) debug, info, warn, error
//	LOG_FORMAT         (optional) json, console or auto
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "anilist-bookmark-sync",
		Usage:   "Sync manga bookmarks to an AniList reading list",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Resolve every bookmark and update its AniList entry",
				Flags:  syncFlags(),
				Action: runSync,
			},
			{
				Name:   "status",
				Usage:  "Show which bookmarks are already checkpointed",
				Action: showStatus,
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a single title without updating anything",
				ArgsUsage: "TITLE",
				Action:    resolveTitle,
			},
		},
		DefaultCommand: "sync",
	}
}
