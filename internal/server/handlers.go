package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/generator"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handlePage runs one render cycle for the caller's session.
func (s *Server) handlePage(c echo.Context) error {
	ctx := c.Request().Context()

	id := ""
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		id = cookie.Value
	}
	sess, created := s.sessions.Acquire(id)
	if created {
		c.SetCookie(&http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(s.cfg.Server.SessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s.metrics.SetActiveSessions(s.sessions.Len())
	}

	metric := sess.Metric
	if c.QueryParams().Has("metric") {
		metric = chart.ParseMetric(c.QueryParam("metric"))
	}

	generation := s.sessions.Begin(sess.ID)
	sel, err := parseSelection(c, sess.Selection)
	var view *View
	if err == nil {
		view, err = s.cycle(ctx, sel, metric)
	}
	s.metrics.ObserveRender(err)
	if err != nil {
		apperrors.LogError(s.logger, err, "render")
		return s.renderFailure(c, sess, err)
	}

	if s.sessions.Commit(sess.ID, generation, *view) {
		if sel != sess.Selection {
			s.analytics.Track(sess.ID, "selection_changed", map[string]any{
				"county": sel.County,
				"from":   sel.From,
				"to":     sel.To,
				"metric": string(metric),
			})
		}
	} else {
		s.logger.Debug("render superseded by a newer interaction", "session", sess.ID, "selection", sel.String())
	}
	return s.renderPage(c, http.StatusOK, *view, "", false)
}

// cycle resolves everything the page shows for sel.
func (s *Server) cycle(ctx context.Context, sel query.Selection, metric chart.Metric) (*View, error) {
	q, err := s.builder.Build(sel)
	if err != nil {
		return nil, err
	}
	rows, err := s.stats.Select(ctx, sel)
	if err != nil {
		return nil, err
	}
	countyRows, err := s.stats.CountyComparison(ctx, sel.To)
	if err != nil {
		return nil, err
	}
	m, err := s.maps.Compose(ctx, q, countyRows)
	if err != nil {
		return nil, err
	}
	return &View{
		Selection:  sel,
		Metric:     metric,
		Rows:       rows,
		CountyRows: countyRows,
		Map:        m,
	}, nil
}

// renderFailure shows err above the last good view, or above empty
// controls when the session has never rendered.
func (s *Server) renderFailure(c echo.Context, sess Session, err error) error {
	view := View{Selection: sess.Selection, Metric: sess.Metric}
	stale := false
	if sess.Last != nil {
		view = *sess.Last
		stale = !apperrors.IsInvalidSelection(err)
	}
	return s.renderPage(c, apperrors.HTTPStatus(err), view, apperrors.UserMessage(err), stale)
}

func (s *Server) renderPage(c echo.Context, status int, view View, message string, stale bool) error {
	p := generator.Page{
		Selection:   view.Selection,
		Counties:    s.catalog.Options(),
		FirstYear:   s.ref.FirstYear(),
		LastYear:    s.ref.LastYear(),
		BaseYear:    s.ref.BaseYear(),
		Metric:      view.Metric,
		Rows:        view.Rows,
		CountyRows:  view.CountyRows,
		Map:         view.Map,
		MapHeight:   s.cfg.Map.Height,
		Error:       message,
		Status:      status,
		Stale:       stale,
		GeneratedAt: time.Now(),
	}
	if len(view.Rows) > 0 {
		p.TrendChart = generator.TrendChartURL(view.Selection, view.Metric)
		p.CountiesChart = generator.CountiesChartURL(view.Selection.To, view.Metric)
	}

	var buf bytes.Buffer
	if err := generator.Render(&buf, p); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return c.HTMLBlob(status, buf.Bytes())
}

func (s *Server) handleStats(c echo.Context) error {
	sel, err := parseSelection(c, s.defaultSelection())
	if err != nil {
		return s.apiError(c, err)
	}
	rows, err := s.stats.Select(c.Request().Context(), sel)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"selection": sel,
		"rows":      rows,
	})
}

func (s *Server) handleCounties(c echo.Context) error {
	year, err := s.yearParam(c)
	if err != nil {
		return s.apiError(c, err)
	}
	rows, err := s.stats.CountyComparison(c.Request().Context(), year)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"year":     year,
		"counties": rows,
	})
}

// handleBoundaries serves county GeoJSON. With a year the features carry
// that year's loss figures.
func (s *Server) handleBoundaries(c echo.Context) error {
	ctx := c.Request().Context()
	boundaries, err := s.maps.Boundaries(ctx)
	if err != nil {
		return s.apiError(c, err)
	}

	var rows []stats.Row
	if c.QueryParams().Has("year") {
		year, err := s.yearParam(c)
		if err != nil {
			return s.apiError(c, err)
		}
		if rows, err = s.stats.CountyComparison(ctx, year); err != nil {
			return s.apiError(c, err)
		}
	}
	return c.JSON(http.StatusOK, mapview.CountyGeoJSON(boundaries, rows, c.QueryParam("county")))
}

// handleTrendChart draws exactly the selected years. A single year is a
// single point.
func (s *Server) handleTrendChart(c echo.Context) error {
	sel, err := parseSelection(c, s.defaultSelection())
	if err != nil {
		return s.imageError(c, err)
	}
	if err := s.builder.Validate(sel); err != nil {
		return s.imageError(c, err)
	}

	opts := chart.TrendOptions{Metric: chart.ParseMetric(c.QueryParam("metric"))}
	rows, err := s.stats.Select(c.Request().Context(), sel)
	if err != nil {
		return s.imageError(c, err)
	}
	png, err := chart.Trend(rows, opts)
	if err != nil {
		return s.imageError(c, apperrors.Internal("failed to draw trend chart", err))
	}
	return s.png(c, png)
}

func (s *Server) handleCountiesChart(c echo.Context) error {
	year, err := s.yearParam(c)
	if err != nil {
		return s.imageError(c, err)
	}
	rows, err := s.stats.CountyComparison(c.Request().Context(), year)
	if err != nil {
		return s.imageError(c, err)
	}
	png, err := chart.Counties(rows, chart.ParseMetric(c.QueryParam("metric")))
	if err != nil {
		return s.imageError(c, apperrors.Internal("failed to draw county chart", err))
	}
	return s.png(c, png)
}

func (s *Server) handleTile(c echo.Context) error {
	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(c.Param("y"), ".png"))
	if errZ != nil || errX != nil || errY != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tile coordinates must be integers")
	}

	tile, err := s.tiles.Get(c.Request().Context(), c.Param("map"), z, x, y)
	if err != nil {
		if !apperrors.IsInvalidSelection(err) {
			apperrors.LogError(s.logger, err, "tile")
		}
		return echo.NewHTTPError(apperrors.HTTPStatus(err), apperrors.UserMessage(err))
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, tile.ContentType, tile.Data)
}

func (s *Server) png(c echo.Context, data []byte) error {
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", data)
}

func (s *Server) apiError(c echo.Context, err error) error {
	if !apperrors.IsInvalidSelection(err) {
		apperrors.LogError(s.logger, err, c.Path())
	}
	return c.JSON(apperrors.HTTPStatus(err), map[string]string{
		"error": apperrors.UserMessage(err),
		"code":  string(apperrors.CodeOf(err)),
	})
}

func (s *Server) imageError(c echo.Context, err error) error {
	if !apperrors.IsInvalidSelection(err) {
		apperrors.LogError(s.logger, err, c.Path())
	}
	return echo.NewHTTPError(apperrors.HTTPStatus(err), apperrors.UserMessage(err))
}

func (s *Server) defaultSelection() query.Selection {
	return query.Selection{
		County: s.catalog.National(),
		From:   s.ref.FirstYear(),
		To:     s.ref.LastYear(),
	}
}

// yearParam reads ?year=, defaulting to the last year of the window.
func (s *Server) yearParam(c echo.Context) (int, error) {
	raw := c.QueryParam("year")
	if raw == "" {
		return s.ref.LastYear(), nil
	}
	year, err := parseYear(raw)
	if err != nil {
		return 0, err
	}
	if !s.ref.InWindow(year) {
		return 0, apperrors.InvalidSelection(
			fmt.Sprintf("Year %d is outside %d-%d.", year, s.ref.FirstYear(), s.ref.LastYear()),
			map[string]any{"year": year})
	}
	return year, nil
}

// parseSelection applies the query string to base. "year" selects a single
// year; "from" and "to" override it. Absent parameters keep base's values.
func parseSelection(c echo.Context, base query.Selection) (query.Selection, error) {
	sel := base
	params := c.QueryParams()

	if params.Has("county") {
		sel.County = strings.TrimSpace(params.Get("county"))
	}
	if params.Has("year") {
		year, err := parseYear(params.Get("year"))
		if err != nil {
			return base, err
		}
		sel.From, sel.To = year, year
	}
	if params.Has("from") {
		from, err := parseYear(params.Get("from"))
		if err != nil {
			return base, err
		}
		sel.From = from
	}
	if params.Has("to") {
		to, err := parseYear(params.Get("to"))
		if err != nil {
			return base, err
		}
		sel.To = to
	}
	return sel, nil
}

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperrors.InvalidSelection(fmt.Sprintf("%q is not a year.", raw), map[string]any{"year": raw})
	}
	return year, nil
}
