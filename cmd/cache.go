package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/match"
)

func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the match cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache entry counts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Emit machine-readable output",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Delete the cache file",
				Action: r.CacheClear,
			},
		},
	}
}

// CacheStats prints how many lookups the cache is holding.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	cache := match.NewCache(r.config.Matcher.CachePath)
	cache.Load()

	total, matched := cache.Stats()
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"path":    r.config.Matcher.CachePath,
			"total":   total,
			"matched": matched,
			"failed":  total - matched,
		}, true)
	}

	r.writePlain("Cache: %s\n", r.config.Matcher.CachePath)
	r.writePlain("Entries: %d (%d matched, %d failed)\n", total, matched, total-matched)
	return nil
}

// CacheClear removes the cache file so every track is matched fresh.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Matcher.CachePath
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return r.writePlain("no cache at %s\n", path)
		}
		return fmt.Errorf("failed to remove cache: %w", err)
	}
	r.logger.Infof("cache cleared")
	return r.writePlain("removed %s\n", path)
}
