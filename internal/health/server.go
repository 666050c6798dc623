// Package health exposes the health-check and status HTTP surface.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader"
	"github.com/ohathar/sportarr/internal/scheduler"
)

// Server is the operator-facing health/status listener. It is deliberately
// small: readiness, worker status, indexer health and Prometheus metrics.
type Server struct {
	echo        *echo.Echo
	store       *store.Store
	sched       *scheduler.Scheduler
	downloaders *downloader.Service
	logger      zerolog.Logger
}

// NewServer creates the health server.
func NewServer(st *store.Store, sched *scheduler.Scheduler, downloaders *downloader.Service, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		store:       st,
		sched:       sched,
		downloaders: downloaders,
		logger:      logger.With().Str("component", "health-server").Logger(),
	}

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/v1/system/status", s.systemStatus)
	e.GET("/api/v1/system/tasks", s.listTasks)
	e.GET("/api/v1/queue", s.listQueue)
	e.GET("/api/v1/indexer/status", s.indexerStatus)

	return s
}

// Start begins listening. Blocks until Shutdown.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("Health server listening")
	err := s.echo.Start(address)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// healthz reports store reachability; a failed ping is the fatal error
// surface of the spec's error model.
func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.DB().PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) systemStatus(c echo.Context) error {
	ctx := c.Request().Context()

	events, err := s.store.ListMonitoredEvents(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	queue, err := s.store.ListActiveQueueItems(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"monitoredEvents": len(events),
		"activeDownloads": len(queue),
		"tasks":           len(s.sched.ListTasks()),
	})
}

// listQueue returns the download queue joined with each client's live state.
func (s *Server) listQueue(c echo.Context) error {
	entries, err := s.downloaders.ListQueue(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

func (s *Server) indexerStatus(c echo.Context) error {
	ctx := c.Request().Context()

	indexers, err := s.store.ListEnabledIndexers(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	now := time.Now().UTC()
	out := make([]map[string]any, 0, len(indexers))
	for _, ix := range indexers {
		st, err := s.store.GetIndexerStatus(ctx, ix.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}

		health := "healthy"
		if st.DisabledUntil != nil && now.Before(*st.DisabledUntil) {
			health = "disabled"
		} else if st.RateLimitedUntil != nil && now.Before(*st.RateLimitedUntil) {
			health = "rateLimited"
		} else if st.ConsecutiveFailures > 0 {
			health = "warning"
		}

		out = append(out, map[string]any{
			"id":                  ix.ID,
			"name":                ix.Name,
			"health":              health,
			"consecutiveFailures": st.ConsecutiveFailures,
			"lastFailureReason":   st.LastFailureReason,
			"disabledUntil":       st.DisabledUntil,
			"rateLimitedUntil":    st.RateLimitedUntil,
			"queriesThisHour":     st.QueriesThisHour,
			"grabsThisHour":       st.GrabsThisHour,
		})
	}
	return c.JSON(http.StatusOK, out)
}
