package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/history"
	"github.com/dsoriano/cratesync/internal/library"
	"github.com/dsoriano/cratesync/internal/match"
	"github.com/dsoriano/cratesync/internal/report"
	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/spotify"
	"github.com/dsoriano/cratesync/internal/state"
)

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync Rekordbox playlists to Spotify",
		ArgsUsage: "[library.xml]",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "path"},
		},
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Only sync playlists with this name or path (repeatable)",
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
				Name:    "incremental",
				Aliases: []string{"i"},
				Usage:   "Diff against current playlist contents instead of replacing",
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
		Action: r.Sync,
	}
}

// syncSession bundles the per-run moving parts so progress can be flushed at
// any exit point, rate-limit aborts included.
type syncSession struct {
	cache      *match.Cache
	identities *state.Store
	matcher    *match.Matcher
	reconciler *spotify.Reconciler
	threshold  int
	retryDays  int
	forceRetry bool
}

// flush persists cache and identity state. Called on both success and abort
// so partial progress always survives.
func (r *Runner) flush(s *syncSession) {
	if s.cache != nil {
		if err := s.cache.Save(); err != nil {
			r.logger.Warnf("failed to save match cache: %v", err)
		}
	}
	if s.identities != nil {
		if err := s.identities.Save(); err != nil {
			r.logger.Warnf("failed to save playlist state: %v", err)
		}
	}
}

// newSyncSession wires the matcher, cache, and identity store for one run.
func (r *Runner) newSyncSession(threshold int, useCache, forceRetry bool) *syncSession {
	session := &syncSession{
		matcher:    match.NewMatcher(r.searcher, match.Tunables{}),
		identities: state.NewStore(r.config.Sync.StatePath),
		threshold:  threshold,
		retryDays:  r.config.Matcher.RetryDays,
		forceRetry: forceRetry,
	}
	session.identities.Load()
	if useCache {
		session.cache = match.NewCache(r.config.Matcher.CachePath)
		session.cache.Load()
	}
	session.reconciler = spotify.NewReconciler(r.store, session.identities)
	return session
}

// matchTracks resolves each track to a Spotify URI, filling in the playlist
// report as it goes. Returned URIs keep track order.
func (r *Runner) matchTracks(ctx context.Context, s *syncSession, tracks []library.Track, pl *report.PlaylistReport) ([]string, error) {
	uris := make([]string, 0, len(tracks))
	for _, track := range tracks {
		var outcome *match.Outcome
		var source match.Source
		var err error

		if s.cache != nil {
			outcome, source, err = s.cache.MatchWithCache(ctx, s.matcher, track, s.threshold, s.retryDays, s.forceRetry)
		} else {
			outcome, err = s.matcher.Match(ctx, track, s.threshold)
			source = match.SourceAPI
		}
		if err != nil {
			return nil, err
		}

		switch source {
		case match.SourceCache:
			pl.CacheHits++
		case match.SourceRetry:
			pl.Retried++
			pl.APILookups++
		default:
			pl.APILookups++
		}

		if outcome == nil {
			r.logger.Debugf("no match: %s", track.Display())
			pl.Unmatched = append(pl.Unmatched, track.Display())
			continue
		}

		r.logger.Debugf("matched %s -> %s (%.1f, %s)", track.Display(), outcome.URI, outcome.Score, outcome.Edition)
		pl.Matched = append(pl.Matched, report.MatchedTrack{
			SourceName:    track.Display(),
			SpotifyName:   outcome.Title,
			SpotifyArtist: outcome.Artist,
			Score:         outcome.Score,
			MatchType:     outcome.Edition,
		})
		uris = append(uris, outcome.URI)
	}
	return uris, nil
}

// reconcile pushes matched URIs to Spotify and stamps the playlist report
// with the action taken.
func (r *Runner) reconcile(ctx context.Context, s *syncSession, name string, uris []string, opts spotify.SyncOptions, incremental bool, pl *report.PlaylistReport) error {
	if incremental {
		_, action, diff, err := s.reconciler.Incremental(ctx, name, uris, opts)
		if err != nil {
			return err
		}
		pl.Action = string(action)
		r.logger.Infof("%s: %s (+%d -%d =%d)", name, action, diff.Added, diff.Removed, diff.Unchanged)
		return nil
	}

	_, action, err := s.reconciler.Replace(ctx, name, uris, opts)
	if err != nil {
		return err
	}
	pl.Action = string(action)
	r.logger.Infof("%s: %s (%d tracks)", name, action, len(uris))
	return nil
}

// recordRun appends the run to the local history database. Failures are
// logged, never fatal; history is a convenience.
func (r *Runner) recordRun(rep *report.SyncReport, sourceType, sourcePath string) {
	repo, err := history.Open(r.config.Database.Path)
	if err != nil {
		r.logger.Warnf("failed to open history database: %v", err)
		return
	}
	defer repo.Close()

	hits, api := 0, 0
	for _, p := range rep.Playlists {
		hits += p.CacheHits
		api += p.APILookups
	}
	run := &history.Run{
		StartedAt:  rep.Timestamp,
		SourceType: sourceType,
		SourcePath: sourcePath,
		Playlists:  len(rep.Playlists),
		Matched:    rep.TotalMatched(),
		Unmatched:  rep.TotalUnmatched(),
		CacheHits:  hits,
		APILookups: api,
		DryRun:     rep.DryRun,
		Threshold:  rep.Threshold,
	}
	if err := repo.Record(run); err != nil {
		r.logger.Warnf("failed to record sync run: %v", err)
	}
}

// selectGroupings filters parsed playlists down to the requested names or
// paths. An empty filter keeps everything.
func selectGroupings(groupings []library.Grouping, wanted []string) ([]library.Grouping, error) {
	if len(wanted) == 0 {
		return groupings, nil
	}

	selected := make([]library.Grouping, 0, len(wanted))
	matched := make(map[string]bool, len(wanted))
	for _, g := range groupings {
		for _, w := range wanted {
			if g.Name == w || g.Path == w {
				selected = append(selected, g)
				matched[w] = true
				break
			}
		}
	}

	for _, w := range wanted {
		if !matched[w] {
			return nil, fmt.Errorf("%w: playlist %q not found in library", shared.ErrPlaylistNotFound, w)
		}
	}
	return selected, nil
}

// Sync matches a Rekordbox library against Spotify and reconciles the
// selected playlists.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireStore(); err != nil {
		return err
	}

	xmlPath := cmd.StringArg("path")
	if xmlPath == "" {
		xmlPath = r.config.Library.XMLPath
	}
	if xmlPath == "" {
		return fmt.Errorf("%w: library XML path (argument or library.xml_path in config)", shared.ErrMissingArgument)
	}

	if ok, reason := library.ValidateXML(xmlPath); !ok {
		return fmt.Errorf("%w: %s", shared.ErrInvalidLibrary, reason)
	}

	tracks, groupings, err := library.ParseXML(xmlPath)
	if err != nil {
		return err
	}
	r.logger.Infof("parsed %d tracks across %d playlists", len(tracks), len(groupings))

	selected, err := selectGroupings(groupings, cmd.StringSlice("playlist"))
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("%w: library has no playlists to sync", shared.ErrInvalidLibrary)
	}

	threshold := int(cmd.Int("threshold"))
	if threshold == 0 {
		threshold = r.config.Matcher.Threshold
	}
	prefix := cmd.String("prefix")
	if prefix == "" {
		prefix = r.config.Sync.Prefix
	}
	dryRun := cmd.Bool("dry-run")
	incremental := cmd.Bool("incremental") || r.config.Sync.Incremental

	session := r.newSyncSession(threshold, !cmd.Bool("no-cache"), cmd.Bool("force-retry"))
	rep := report.NewSyncReport(threshold, dryRun)
	rep.CacheEnabled = session.cache != nil

	for _, grouping := range selected {
		pl := &report.PlaylistReport{Name: grouping.Name, Path: grouping.Path, Action: "dry-run"}
		rep.Playlists = append(rep.Playlists, pl)

		members := make([]library.Track, 0, len(grouping.TrackIDs))
		for _, id := range grouping.TrackIDs {
			if track, ok := tracks[id]; ok {
				members = append(members, track)
			}
		}
		r.logger.Infof("matching %q (%d tracks)", grouping.Path, len(members))

		uris, err := r.matchTracks(ctx, session, members, pl)
		if err != nil {
			r.flush(session)
			return err
		}

		if dryRun {
			continue
		}

		opts := spotify.SyncOptions{
			Prefix:     prefix,
			SourcePath: grouping.Path,
			SourceType: "rekordbox",
		}
		if err := r.reconcile(ctx, session, grouping.Name, uris, opts, incremental, pl); err != nil {
			r.flush(session)
			return err
		}
	}

	r.flush(session)
	r.recordRun(rep, "rekordbox", xmlPath)

	rep.Render(r.output)
	if path := cmd.String("report"); path != "" {
		if err := rep.Save(path); err != nil {
			return err
		}
		r.logger.Infof("report written to %s", path)
	}
	return nil
}

func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List playlists found in a Rekordbox library export",
		ArgsUsage: "[library.xml]",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "path"},
		},
		Action: r.List,
	}
}

// List prints the playlist tree of a library export without touching Spotify.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	xmlPath := cmd.StringArg("path")
	if xmlPath == "" {
		xmlPath = r.config.Library.XMLPath
	}
	if xmlPath == "" {
		return fmt.Errorf("%w: library XML path (argument or library.xml_path in config)", shared.ErrMissingArgument)
	}

	tracks, groupings, err := library.ParseXML(xmlPath)
	if err != nil {
		return err
	}

	r.writePlain("%d tracks, %d playlists\n\n", len(tracks), len(groupings))
	for _, g := range groupings {
		depth := strings.Count(g.Path, "/")
		r.writePlain("%s%s (%d tracks)\n", strings.Repeat("  ", depth), g.Name, len(g.TrackIDs))
	}
	return nil
}

// isRateLimit reports whether err is the fatal rate-limit condition, used by
// main for exit messaging.
func isRateLimit(err error) bool {
	var rateErr *spotify.RateLimitError
	return errors.As(err, &rateErr)
}
