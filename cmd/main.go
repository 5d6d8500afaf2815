package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/spotify"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warnf("ignoring unreadable config.toml: %v", err)
		}
	}

	var client *spotify.Client
	creds := config.Credentials.Spotify
	if creds.ClientID != "" && creds.ClientSecret != "" {
		c, err := spotify.NewClient(creds.ClientID, creds.ClientSecret, creds.RedirectURI)
		if err != nil {
			logger.Warnf("spotify client unavailable: %v", err)
		} else {
			client = c
			if token, err := spotify.LoadToken(creds.TokenPath); err == nil {
				client.SetToken(context.Background(), token)
			}
		}
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
		Client: client,
	})

	app := &cli.Command{
		Name:     "cratesync",
		Usage:    "Sync DJ library playlists, Beatport charts, and label catalogs to Spotify",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if isRateLimit(err) {
			// Cache and playlist state were flushed before the abort; the
			// next run resumes from there.
			logger.Error(err.Error())
			os.Exit(1)
		}
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
