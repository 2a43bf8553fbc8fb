// Package server is the dashboard's HTTP front end. Each page request is one
// render cycle: read the session's selection, apply the query string, build
// and resolve the query, then render the page.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/analytics"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/metrics"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

// Stats resolves statistics rows.
type Stats interface {
	Select(ctx context.Context, sel query.Selection) ([]stats.Row, error)
	CountyComparison(ctx context.Context, year int) ([]stats.Row, error)
}

// Maps composes the map widget.
type Maps interface {
	Compose(ctx context.Context, q query.Query, countyRows []stats.Row) (*mapview.Map, error)
	Boundaries(ctx context.Context) ([]fetcher.Boundary, error)
}

// Tiles serves proxied Earth Engine tiles.
type Tiles interface {
	Get(ctx context.Context, mapID string, z, x, y int) (mapview.Tile, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Config    *config.Config
	Reference *dataset.Reference
	Catalog   *dataset.Catalog
	Builder   *query.Builder
	Stats     Stats
	Maps      Maps
	Tiles     Tiles
	Metrics   *metrics.Metrics
	Analytics *analytics.Tracker
	Logger    *slog.Logger
}

// Server serves the dashboard.
type Server struct {
	cfg       *config.Config
	ref       *dataset.Reference
	catalog   *dataset.Catalog
	builder   *query.Builder
	stats     Stats
	maps      Maps
	tiles     Tiles
	metrics   *metrics.Metrics
	analytics *analytics.Tracker
	logger    *slog.Logger
	sessions  *SessionStore
	limiter   *RateLimiter
	echo      *echo.Echo
}

// New builds a Server with its routes registered.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	initial := query.Selection{
		County: d.Catalog.National(),
		From:   d.Reference.FirstYear(),
		To:     d.Reference.LastYear(),
	}

	s := &Server{
		cfg:       d.Config,
		ref:       d.Reference,
		catalog:   d.Catalog,
		builder:   d.Builder,
		stats:     d.Stats,
		maps:      d.Maps,
		tiles:     d.Tiles,
		metrics:   d.Metrics,
		analytics: d.Analytics,
		logger:    d.Logger,
		sessions:  NewSessionStore(d.Config.Server.SessionTTL, initial),
		limiter:   NewRateLimiter(rate.Limit(d.Config.Server.RateLimit), d.Config.Server.RateBurst),
	}
	s.echo = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Sessions exposes the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(s.observe)

	// Health and metrics stay outside the limiter so health checks never get 429.
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	g := e.Group("", s.limiter.Middleware())
	g.GET("/", s.handlePage)
	g.GET("/api/stats", s.handleStats)
	g.GET("/api/counties", s.handleCounties)
	g.GET("/api/boundaries", s.handleBoundaries)
	g.GET("/chart/trend.png", s.handleTrendChart)
	g.GET("/chart/counties.png", s.handleCountiesChart)

	// Tiles skip the limiter: one map view fetches dozens at once.
	e.GET("/tiles/:map/:z/:x/:y", s.handleTile)

	return e
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				s.logger.DebugContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				s.logger.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	})
}

// observe records per-route request counts and latency.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		} else if err != nil && !c.Response().Committed {
			status = http.StatusInternalServerError
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, status, time.Since(start))
		return err
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// The session and rate-limiter sweeps run alongside and stop with it.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting dashboard server", "address", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		s.limiter.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				s.metrics.SetActiveSessions(s.sessions.Sweep())
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server exited properly")
	return nil
}
