package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/beatport"
	"github.com/dsoriano/cratesync/internal/match"
	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/spotify"
)

// Runner holds all dependencies for CLI commands and provides methods for
// each command action.
type Runner struct {
	config   *shared.Config
	logger   *log.Logger
	output   io.Writer
	client   *spotify.Client
	searcher match.Searcher
	store    spotify.PlaylistStore
	scraper  *beatport.Scraper
}

// RunnerOpts contains configuration options for creating a Runner. Searcher
// and Store default to the Spotify client; tests substitute fakes.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	Client   *spotify.Client
	Searcher match.Searcher
	Store    spotify.PlaylistStore
	Scraper  *beatport.Scraper
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Searcher == nil && opts.Client != nil {
		opts.Searcher = opts.Client
	}
	if opts.Store == nil && opts.Client != nil {
		opts.Store = opts.Client
	}
	if opts.Scraper == nil {
		opts.Scraper = beatport.NewScraper()
	}

	return &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		client:   opts.Client,
		searcher: opts.Searcher,
		store:    opts.Store,
		scraper:  opts.Scraper,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, listCommand, chartCommand, labelCommand, cacheCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// requireStore ensures remote-facing commands have an authenticated client
// behind them.
func (r *Runner) requireStore() error {
	if r.store == nil || r.searcher == nil {
		return fmt.Errorf("%w: configure spotify credentials and run auth login", shared.ErrNotAuthenticated)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
