package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/history"
	"github.com/dsoriano/cratesync/internal/shared"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Write a starter config file and initialize the history database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// Setup bootstraps a working directory: an example config to fill in and an
// empty run-history database. Existing files are left alone.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.writePlain("config already exists at %s\n", configPath)
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("wrote %s - fill in your Spotify credentials\n", configPath)
	}

	repo, err := history.Open(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize history database: %w", err)
	}
	defer repo.Close()
	r.writePlain("history database ready at %s\n", r.config.Database.Path)

	return nil
}
