// Command sportarr runs the sports-media acquisition orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohathar/sportarr/internal/config"
	"github.com/ohathar/sportarr/internal/database"
	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader"
	"github.com/ohathar/sportarr/internal/dvr"
	"github.com/ohathar/sportarr/internal/health"
	"github.com/ohathar/sportarr/internal/importer"
	"github.com/ohathar/sportarr/internal/indexer"
	"github.com/ohathar/sportarr/internal/indexer/status"
	"github.com/ohathar/sportarr/internal/logger"
	"github.com/ohathar/sportarr/internal/mediainfo"
	"github.com/ohathar/sportarr/internal/releasecache"
	"github.com/ohathar/sportarr/internal/rsssync"
	"github.com/ohathar/sportarr/internal/scheduler"
	"github.com/ohathar/sportarr/internal/scheduler/tasks"
	"github.com/ohathar/sportarr/internal/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sportarr: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("database", cfg.Database.Path).Msg("Starting Sportarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	st := store.New(db.Conn())

	// Shared services.
	ixClient := indexer.NewClient(cfg.Indexer.Timeout(), log.Logger)
	statusSvc := status.NewService(st, log.Logger)
	cache := releasecache.New(st, cfg.Cache.TTL(), log.Logger)
	clients := downloader.NewService(st, nil, log.Logger)
	imp := importer.New(st, importer.Config{
		RootFolder:   cfg.Importer.RootFolder,
		UseHardlinks: cfg.Importer.UseHardlinks,
	}, log.Logger)

	// Workers.
	rss := rsssync.NewService(st, cache, ixClient, statusSvc, cfg.Indexer.MaxResults, log.Logger)
	planner := search.NewPlanner(st, cache, ixClient, statusSvc, clients, search.Config{
		BroadcastWindow: cfg.Search.BroadcastWindow(),
		FanOutLimit:     cfg.Search.FanOutLimit,
		MaxResults:      cfg.Indexer.MaxResults,
	}, log.Logger)
	monitor := downloader.NewMonitor(st, clients, imp, downloader.MonitorConfig{
		StallThreshold:   cfg.Download.StallThreshold(),
		RemoveCompleted:  cfg.Download.RemoveCompleted,
		RemoveFailed:     cfg.Download.RemoveFailed,
		RedownloadFailed: cfg.Download.RedownloadFailed,
	}, log.Logger)
	dvrSched := dvr.NewScheduler(st, imp, mediainfo.NewFFProbe(), dvr.NewHLSRecorder(), dvr.Config{
		Window:       cfg.Dvr.Window(),
		PrePadding:   cfg.Dvr.PrePadding(),
		PostPadding:  cfg.Dvr.PostPadding(),
		RecordingDir: cfg.Dvr.RecordingDir,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	for _, task := range []scheduler.TaskConfig{
		tasks.RssSync(rss, cfg.Search.RssInterval()),
		tasks.EventSearch(planner, cfg.Search.SearchInterval()),
		tasks.QueueMonitor(monitor, cfg.Download.PollInterval()),
		tasks.DvrScheduler(dvrSched, cfg.Dvr.Interval()),
		tasks.CacheCleanup(cache, st, cfg.Cache.CleanupInterval()),
	} {
		if err := sched.RegisterTask(task); err != nil {
			return err
		}
	}

	if err := sched.Start(); err != nil {
		return err
	}

	healthServer := health.NewServer(st, sched, clients, log.Logger)
	go func() {
		if err := healthServer.Start(cfg.Server.Address()); err != nil {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()

	// Run until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Health server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}
	dvrSched.Stop()

	return nil
}
