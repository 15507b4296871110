package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bergham123/anime-news-bot/app/api"
	"github.com/bergham123/anime-news-bot/app/cfg"
	"github.com/bergham123/anime-news-bot/app/fsutil"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ingest"
	"github.com/bergham123/anime-news-bot/app/ledger"
	"github.com/bergham123/anime-news-bot/app/manifest"
	"github.com/bergham123/anime-news-bot/app/tasks"
)

type runCommand struct {
	app *application
}

func (cmd *runCommand) Execute(args []string) error {
	c, err := cmd.app.setup()
	if err != nil {
		return err
	}
	if err := c.RequireTelegram(); err != nil {
		slog.Error("Configuration incomplete", "error", err)
		return err
	}

	comp, err := newComponents(c)
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = comp.runner.Run(ctx)
	if errors.Is(err, ingest.ErrBusy) {
		slog.Warn("Another run holds the lock, exiting", "lock", c.LockPath())
		return nil
	}
	return err
}

type serveCommand struct {
	app *application
}

func (cmd *serveCommand) Execute(args []string) error {
	c, err := cmd.app.setup()
	if err != nil {
		return err
	}
	if err := c.RequireTelegram(); err != nil {
		slog.Error("Configuration incomplete", "error", err)
		return err
	}

	slog.Info("Starting anime news bot", "version", c.Version, "timezone", c.Location.String())

	comp, err := newComponents(c)
	if err != nil {
		return err
	}
	defer comp.Close()

	scheduler := tasks.NewScheduler(comp.runner, comp.sources, c.SchedulerInterval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(comp.store, comp.index, comp.manifests, comp.sources, comp.sources,
		comp.runs(), scheduler, comp.runner,
		api.Site{BaseURL: c.SiteBaseURL, ArticlePage: c.ArticlePage, Version: c.Version})

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      api.NewServer(handler, c.APIKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
		slog.Error("Server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}

type rebuildCommand struct {
	app  *application
	Args struct {
		Year int `positional-arg-name:"year" description:"Year to rebuild (default: every year found)"`
	} `positional-args:"yes"`
}

func (cmd *rebuildCommand) Execute(args []string) error {
	c, err := cmd.app.setup()
	if err != nil {
		return err
	}

	builder := manifest.NewBuilder(c.DataDir)

	if cmd.Args.Year != 0 {
		if err := builder.RebuildTree(cmd.Args.Year); err != nil {
			return fmt.Errorf("failed to rebuild %d: %w", cmd.Args.Year, err)
		}
		slog.Info("Manifests rebuilt", "year", cmd.Args.Year)
		return nil
	}

	years, err := builder.RebuildAll()
	if err != nil {
		return fmt.Errorf("failed to rebuild manifests: %w", err)
	}
	slog.Info("Manifests rebuilt", "years", years)
	return nil
}

type statsCommand struct {
	app   *application
	Limit int `long:"runs" default:"10" description:"Number of recent runs to list"`
}

func (cmd *statsCommand) Execute(args []string) error {
	c, err := cmd.app.setup()
	if err != nil {
		return err
	}

	globalIndex := index.NewGlobalIndex(c.IndexDir, c.PageSize, c.Now)

	pag, err := globalIndex.Pagination()
	if err != nil {
		return fmt.Errorf("failed to read pagination: %w", err)
	}
	stats, found, err := globalIndex.Stats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Fprintln(os.Stdout, renderIndexTable(pag, stats, found, c))

	runs, err := recentRuns(c, cmd.Limit)
	if err != nil {
		slog.Warn("Failed to read recent runs", "error", err)
		return nil
	}
	if len(runs) > 0 {
		fmt.Fprintln(os.Stdout, renderRunsTable(runs, c))
	}
	return nil
}

// recentRuns reads the ledger only when it already exists.
func recentRuns(c *cfg.Cfg, limit int) ([]ledger.Run, error) {
	if !fsutil.Exists(c.LedgerPath()) {
		return nil, nil
	}

	db, err := ledger.Open(c.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return ledger.NewRepository(db).RecentRuns(limit)
}
