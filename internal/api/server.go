// Package api exposes the logged history, diagnostics and session journal
// over HTTP for the chart viewer and other headless consumers. It reads the
// same SQLite files the writer appends to; WAL mode keeps the two sides
// from blocking each other.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/plcwatch/plclogger/internal/diag"
	"github.com/plcwatch/plclogger/internal/history"
	"github.com/plcwatch/plclogger/internal/journal"
	"github.com/plcwatch/plclogger/internal/schema"
)

// Server serves the read-only API. Prober and journal are optional; their
// endpoints answer 404 when absent.
type Server struct {
	echo    *echo.Echo
	logsDir string
	prober  *diag.Prober
	jnl     *journal.Journal
}

// NewServer wires the routes.
func NewServer(logsDir string, prober *diag.Prober, jnl *journal.Journal) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("uri", v.URI).Int("status", v.Status).Msg("API request")
			return nil
		},
	}))

	s := &Server{echo: e, logsDir: logsDir, prober: prober, jnl: jnl}

	e.GET("/api/health", s.handleHealth)
	e.GET("/api/databases", s.handleDatabases)
	e.GET("/api/databases/:name/columns", s.handleColumns)
	e.GET("/api/databases/:name/rows", s.handleRows)
	e.GET("/api/diagnostics", s.handleDiagnostics)
	e.POST("/api/diagnostics/reset", s.handleDiagnosticsReset)
	e.GET("/api/sessions", s.handleSessions)

	return s
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("API server starting")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDatabases(c echo.Context) error {
	dbs, err := schema.ListDatabases(s.logsDir)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if dbs == nil {
		dbs = []schema.DatabaseInfo{}
	}
	return c.JSON(http.StatusOK, dbs)
}

// resolve maps a database name from the URL onto a known file in the logs
// directory. Names that don't match a listed database are rejected, which
// also rules out any path traversal.
func (s *Server) resolve(name string) (string, error) {
	dbs, err := schema.ListDatabases(s.logsDir)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, db := range dbs {
		if db.Name == name {
			return db.Path, nil
		}
	}
	return "", echo.NewHTTPError(http.StatusNotFound, "unknown database "+name)
}

func (s *Server) handleColumns(c echo.Context) error {
	path, err := s.resolve(c.Param("name"))
	if err != nil {
		return err
	}
	cols, err := history.Columns(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cols)
}

func (s *Server) handleRows(c echo.Context) error {
	path, err := s.resolve(c.Param("name"))
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	rows, err := history.Rows(path, c.QueryParam("tag"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleDiagnostics(c echo.Context) error {
	if s.prober == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagnostics not running")
	}
	return c.JSON(http.StatusOK, s.prober.Snapshot())
}

func (s *Server) handleDiagnosticsReset(c echo.Context) error {
	if s.prober == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagnostics not running")
	}
	s.prober.Reset()
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleSessions(c echo.Context) error {
	if s.jnl == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal not available")
	}
	entries, err := s.jnl.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
