package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/bergham123/anime-news-bot/app/cfg"
	"github.com/bergham123/anime-news-bot/app/logging"
)

type application struct {
	opts cfg.Options
}

// setup validates the global options and installs the logger.
func (a *application) setup() (*cfg.Cfg, error) {
	c, err := a.opts.Build()
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(c.LogFormat, c.Debug); err != nil {
		return nil, err
	}
	return c, nil
}

func main() {
	app := &application{}

	parser := flags.NewParser(&app.opts, flags.Default)
	parser.ShortDescription = "Anime news ingestion bot"

	parser.AddCommand("run", "Run one ingest pass and exit",
		"Fetches every enabled source once, stores new articles, updates the index and notifies the channel.",
		&runCommand{app: app})
	parser.AddCommand("serve", "Run on a schedule and serve the read API",
		"Runs an ingest pass every scheduler interval and serves the storage root over HTTP.",
		&serveCommand{app: app})
	parser.AddCommand("rebuild", "Rebuild month and year manifests",
		"Rebuilds the manifests of one year, or of every year found under the data directory.",
		&rebuildCommand{app: app})
	parser.AddCommand("stats", "Print index statistics",
		"Prints the global index pagination, the stats record and the most recent runs.",
		&statsCommand{app: app})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}
