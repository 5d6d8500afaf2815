package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/history"
)

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to show",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit machine-readable output",
			},
		},
		Action: r.History,
	}
}

// History lists recent sync runs from the local database, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	repo, err := history.Open(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.Recent(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return r.writePlain("no sync runs recorded yet\n")
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(r.output)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"When", "Source", "Playlists", "Matched", "Rate", "Mode"})
	for _, run := range runs {
		mode := "live"
		if run.DryRun {
			mode = "dry-run"
		}
		tw.AppendRow(table.Row{
			run.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%s %s", run.SourceType, run.SourcePath),
			run.Playlists,
			fmt.Sprintf("%d/%d", run.Matched, run.Matched+run.Unmatched),
			fmt.Sprintf("%.1f%%", run.MatchRate()),
			mode,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.Render()
	return nil
}
