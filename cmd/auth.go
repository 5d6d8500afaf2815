package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/server"
	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/spotify"
)

// authTimeout bounds how long the auth command waits for the browser
// redirect before giving up.
const authTimeout = 5 * time.Minute

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with Spotify via the browser",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the current token state",
				Action: r.AuthStatus,
			},
		},
	}
}

// AuthLogin runs the OAuth2 authorization-code flow against a loopback
// callback server and stores the granted token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.client == nil {
		return fmt.Errorf("%w: set spotify client_id and client_secret in config", shared.ErrMissingCredentials)
	}

	stateToken := shared.GenerateID()
	authURL := r.client.AuthURL(stateToken)

	r.writePlain("Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Debugf("browser launch failed: %v", err)
		r.writePlain("Could not open a browser. Visit:\n\n  %s\n\n", authURL)
	}

	token, err := server.Await(ctx, r.client.OAuthConfig(), stateToken, authTimeout)
	if err != nil {
		return err
	}

	tokenPath := r.config.Credentials.Spotify.TokenPath
	if err := spotify.SaveToken(tokenPath, token); err != nil {
		return err
	}
	r.client.SetToken(ctx, token)

	r.logger.Infof("token saved to %s", tokenPath)
	return r.writePlain("Authorization successful.\n")
}

// AuthStatus reports whether a stored token exists and when it expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	tokenPath := r.config.Credentials.Spotify.TokenPath
	token, err := spotify.LoadToken(tokenPath)
	if err != nil {
		return err
	}

	r.writePlain("Token: %s\n", tokenPath)
	switch {
	case token.Expiry.IsZero():
		r.writePlain("Expiry: unknown\n")
	case token.Expiry.Before(time.Now()):
		r.writePlain("Expiry: %s (expired, will refresh on next use)\n", token.Expiry.Format(time.RFC3339))
	default:
		r.writePlain("Expiry: %s\n", token.Expiry.Format(time.RFC3339))
	}

	if r.client != nil {
		r.client.SetToken(ctx, token)
		userID, err := r.client.CurrentUserID(ctx)
		if err != nil {
			r.logger.Warnf("could not verify token: %v", err)
			return nil
		}
		r.writePlain("Account: %s\n", userID)
	}
	return nil
}
