// Package tasks wires the background workers into the scheduler.
package tasks

import (
	"context"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader"
	"github.com/ohathar/sportarr/internal/dvr"
	"github.com/ohathar/sportarr/internal/metrics"
	"github.com/ohathar/sportarr/internal/releasecache"
	"github.com/ohathar/sportarr/internal/rsssync"
	"github.com/ohathar/sportarr/internal/scheduler"
	"github.com/ohathar/sportarr/internal/search"
)

// RssSync builds the discovery worker task: indexer feeds flow into the
// release cache.
func RssSync(svc *rsssync.Service, interval time.Duration) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "rss-sync",
		Name:        "RSS Sync",
		Description: "Polls enabled indexer feeds into the release cache",
		Interval:    interval,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			err := svc.RunOnce(ctx)
			metrics.TaskRuns.WithLabelValues("rss-sync", outcome(err)).Inc()
			return err
		},
	}
}

// EventSearch builds the search planner task.
func EventSearch(planner *search.Planner, interval time.Duration) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "event-search",
		Name:        "Event Search",
		Description: "Plans searches and grabs for monitored events",
		Interval:    interval,
		Func: func(ctx context.Context) error {
			err := planner.RunOnce(ctx)
			metrics.TaskRuns.WithLabelValues("event-search", outcome(err)).Inc()
			return err
		},
	}
}

// QueueMonitor builds the download lifecycle task.
func QueueMonitor(monitor *downloader.Monitor, interval time.Duration) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "queue-monitor",
		Name:        "Queue Monitor",
		Description: "Advances active downloads through the lifecycle state machine",
		Interval:    interval,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			err := monitor.RunOnce(ctx)
			metrics.TaskRuns.WithLabelValues("queue-monitor", outcome(err)).Inc()
			return err
		},
	}
}

// DvrScheduler builds the DVR scheduling task.
func DvrScheduler(sched *dvr.Scheduler, interval time.Duration) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "dvr-scheduler",
		Name:        "DVR Scheduler",
		Description: "Schedules, dispatches and imports IPTV recordings",
		Interval:    interval,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			err := sched.RunOnce(ctx)
			metrics.TaskRuns.WithLabelValues("dvr-scheduler", outcome(err)).Inc()
			return err
		},
	}
}

// blocklistRetention bounds how long suppressed releases stay blocked; after
// this the release pool has usually turned over and a re-grab is safe.
const blocklistRetention = 30 * 24 * time.Hour

// CacheCleanup builds the sweeper task: expired release cache entries and
// aged-out blocklist rows go in the same pass.
func CacheCleanup(cache *releasecache.Cache, st *store.Store, interval time.Duration) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "cache-cleanup",
		Name:        "Cache Cleanup",
		Description: "Removes expired release cache entries and aged blocklist rows",
		Interval:    interval,
		Func: func(ctx context.Context) error {
			now := time.Now().UTC()
			_, err := cache.Cleanup(ctx, now)
			if err == nil {
				_, err = st.DeleteBlocklistBefore(ctx, now.Add(-blocklistRetention))
			}
			metrics.TaskRuns.WithLabelValues("cache-cleanup", outcome(err)).Inc()
			return err
		},
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
