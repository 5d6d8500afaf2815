package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/beatport"
	"github.com/dsoriano/cratesync/internal/library"
	"github.com/dsoriano/cratesync/internal/report"
	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/spotify"
)

func chartCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "chart",
		Usage:     "Sync a Beatport DJ chart to a Spotify playlist",
		ArgsUsage: "<chart-url>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Playlist name, defaults to \"<curator> - <chart name>\"",
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
		Action: r.Chart,
	}
}

// syncExternal matches a scraped track list and reconciles it into a single
// playlist by full replacement. Shared by the chart and label commands.
func (r *Runner) syncExternal(ctx context.Context, cmd *cli.Command, name, sourceType, sourcePath string, members []library.Track) error {
	threshold := int(cmd.Int("threshold"))
	if threshold == 0 {
		threshold = r.config.Matcher.Threshold
	}
	prefix := cmd.String("prefix")
	if prefix == "" {
		prefix = r.config.Sync.Prefix
	}
	dryRun := cmd.Bool("dry-run")

	session := r.newSyncSession(threshold, !cmd.Bool("no-cache"), cmd.Bool("force-retry"))
	rep := report.NewSyncReport(threshold, dryRun)
	rep.CacheEnabled = session.cache != nil
	rep.SourceLabel = "Beatport"

	pl := &report.PlaylistReport{Name: name, Path: sourcePath, Action: "dry-run"}
	rep.Playlists = append(rep.Playlists, pl)

	r.logger.Infof("matching %q (%d tracks)", name, len(members))
	uris, err := r.matchTracks(ctx, session, members, pl)
	if err != nil {
		r.flush(session)
		return err
	}

	if !dryRun {
		opts := spotify.SyncOptions{Prefix: prefix, SourcePath: sourcePath, SourceType: sourceType}
		if err := r.reconcile(ctx, session, name, uris, opts, false, pl); err != nil {
			r.flush(session)
			return err
		}
	}

	r.flush(session)
	r.recordRun(rep, sourceType, sourcePath)

	rep.Render(r.output)
	if path := cmd.String("report"); path != "" {
		if err := rep.Save(path); err != nil {
			return err
		}
		r.logger.Infof("report written to %s", path)
	}
	return nil
}

// Chart fetches a Beatport DJ chart and syncs it to Spotify in chart order.
func (r *Runner) Chart(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireStore(); err != nil {
		return err
	}

	rawURL := cmd.StringArg("url")
	if rawURL == "" {
		return fmt.Errorf("%w: chart URL", shared.ErrMissingArgument)
	}
	chartURL, err := beatport.ValidateChartURL(rawURL)
	if err != nil {
		return err
	}

	r.logger.Infof("fetching chart %s", chartURL)
	chart, err := r.scraper.FetchChart(ctx, chartURL)
	if err != nil {
		return err
	}
	r.logger.Infof("chart %q by %s: %d tracks", chart.Name, chart.Curator, len(chart.Tracks))

	name := cmd.String("name")
	if name == "" {
		name = fmt.Sprintf("%s - %s", chart.Curator, chart.Name)
	}

	return r.syncExternal(ctx, cmd, name, "chart", chartURL, chart.Tracks)
}
