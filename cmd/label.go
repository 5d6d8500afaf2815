package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/beatport"
	"github.com/dsoriano/cratesync/internal/shared"
)

func labelCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "label",
		Usage: "Work with Beatport record label catalogs",
		Commands: []*cli.Command{
			{
				Name:      "sync",
				Usage:     "Sync a label's track catalog to a Spotify playlist",
				ArgsUsage: "<label-url>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Playlist name, defaults to the label name",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: fmt.Sprintf("Fetch catalogs larger than %d tracks without asking", beatport.LargeLabelThreshold),
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Match tracks but do not touch Spotify playlists",
					},
					&cli.IntFlag{
						Name:    "threshold",
						Aliases: []string{"t"},
						Usage:   "Minimum match score (0-100), defaults to config",
					},
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "Bypass the match cache entirely",
					},
					&cli.BoolFlag{
						Name:  "force-retry",
						Usage: "Retry previously failed matches regardless of age",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a Markdown report to this path",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Playlist name prefix, defaults to config",
					},
				},
				Action: r.LabelSync,
			},
			{
				Name:      "search",
				Usage:     "Search Beatport for labels by name",
				ArgsUsage: "<query>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "query"},
				},
				Action: r.LabelSearch,
			},
		},
	}
}

// LabelSync fetches a label's full catalog, deduplicates releases, and syncs
// it to Spotify newest first.
func (r *Runner) LabelSync(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireStore(); err != nil {
		return err
	}

	rawURL := cmd.StringArg("url")
	if rawURL == "" {
		return fmt.Errorf("%w: label URL", shared.ErrMissingArgument)
	}
	labelURL, err := beatport.ValidateLabelURL(rawURL)
	if err != nil {
		return err
	}

	r.logger.Infof("fetching label catalog %s", labelURL)
	pager, err := r.scraper.OpenLabel(ctx, labelURL)
	if err != nil {
		return err
	}
	r.logger.Infof("label %q: %d tracks across %d pages", pager.LabelName(), pager.TotalTracks(), pager.TotalPages())

	if pager.TotalTracks() > beatport.LargeLabelThreshold && !cmd.Bool("force") {
		return fmt.Errorf("%w: label has %d tracks, rerun with --force to fetch them all", shared.ErrInvalidInput, pager.TotalTracks())
	}

	tracks, err := pager.All(ctx)
	if err != nil {
		var pageErr *beatport.PageError
		if !errors.As(err, &pageErr) {
			return err
		}
		r.logger.Warnf("catalog fetch incomplete (%v), continuing with %d tracks", pageErr, len(tracks))
	}

	tracks, removed := beatport.DeduplicateTracks(tracks)
	if removed > 0 {
		r.logger.Infof("removed %d duplicate releases", removed)
	}

	name := cmd.String("name")
	if name == "" {
		name = pager.LabelName()
	}

	return r.syncExternal(ctx, cmd, name, "label", labelURL, tracks)
}

// LabelSearch prints label search hits with enough context to pick a URL.
func (r *Runner) LabelSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	results, err := r.scraper.SearchLabels(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return r.writePlain("no labels found for %q\n", query)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(r.output)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Label", "Tracks", "Latest Release", "URL"})
	for _, result := range results {
		latest := result.LatestRelease
		if result.LatestReleaseDate != "" {
			latest = fmt.Sprintf("%s (%s)", latest, result.LatestReleaseDate)
		}
		tw.AppendRow(table.Row{result.Name, result.TrackCount, latest, result.URL})
	}
	tw.Render()
	return nil
}
