// Package stats resolves queries into Statistics Rows.
package stats

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
)

// Row is one year of forest loss inside one boundary. Areas are hectares.
type Row struct {
	County       string  `json:"county"`
	Year         int     `json:"year"`
	LossHa       float64 `json:"loss_ha"`
	CumulativeHa float64 `json:"cumulative_ha"`
	BaselineHa   float64 `json:"baseline_ha"`
	Percent      float64 `json:"percent"`
}

// Computer evaluates an expression and decodes the result.
type Computer interface {
	ComputeInto(ctx context.Context, node expr.Node, out any) error
}

// CacheObserver is told whether a lookup was served from memory.
type CacheObserver func(cache string, hit bool)

// Options configures an Aggregator.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
	Observe   CacheObserver
}

// Aggregator resolves queries with one Earth Engine call each. Results are
// kept for CacheTTL; concurrent identical requests share one call. Failures
// are never cached.
type Aggregator struct {
	computer Computer
	builder  *query.Builder
	catalog  *dataset.Catalog
	cache    *expirable.LRU[string, []Row]
	group    singleflight.Group
	logger   *slog.Logger
	observe  CacheObserver
}

func NewAggregator(c Computer, b *query.Builder, catalog *dataset.Catalog, opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 1
	}
	return &Aggregator{
		computer: c,
		builder:  b,
		catalog:  catalog,
		cache:    expirable.NewLRU[string, []Row](opts.CacheSize, nil, opts.CacheTTL),
		logger:   opts.Logger,
		observe:  opts.Observe,
	}
}

// Select validates sel, builds its query and resolves it.
func (a *Aggregator) Select(ctx context.Context, sel query.Selection) ([]Row, error) {
	q, err := a.builder.Build(sel)
	if err != nil {
		return nil, err
	}
	return a.Rows(ctx, q)
}

// Rows returns one row per year of q, ascending.
func (a *Aggregator) Rows(ctx context.Context, q query.Query) ([]Row, error) {
	return a.cached(ctx, "rows|"+q.Selection.Key(), func(ctx context.Context) ([]Row, error) {
		return a.resolve(ctx, q)
	})
}

// CountyComparison returns one row per county for year, sorted by
// cumulative loss ascending.
func (a *Aggregator) CountyComparison(ctx context.Context, year int) ([]Row, error) {
	counties := a.catalog.Counties()
	node, err := a.builder.Comparison(counties, year)
	if err != nil {
		return nil, err
	}

	return a.cached(ctx, "counties|"+strconv.Itoa(year), func(ctx context.Context) ([]Row, error) {
		var triples [][]*float64
		if err := a.computer.ComputeInto(ctx, node, &triples); err != nil {
			return nil, err
		}
		if len(triples) != len(counties) {
			return nil, shapeError(len(counties), len(triples), map[string]any{"year": year})
		}

		rows := make([]Row, 0, len(counties))
		for i, name := range counties {
			t := triples[i]
			if len(t) != 3 {
				return nil, shapeError(3, len(t), map[string]any{"year": year, "county": name})
			}
			baseline, cumulative := value(t[0]), value(t[1])
			rows = append(rows, Row{
				County:       name,
				Year:         year,
				LossHa:       value(t[2]),
				CumulativeHa: cumulative,
				BaselineHa:   baseline,
				Percent:      Percent(cumulative, baseline),
			})
		}
		slices.SortStableFunc(rows, func(x, y Row) int {
			return cmp.Or(cmp.Compare(x.CumulativeHa, y.CumulativeHa), cmp.Compare(x.County, y.County))
		})
		return rows, nil
	})
}

func (a *Aggregator) cached(ctx context.Context, key string, load func(context.Context) ([]Row, error)) ([]Row, error) {
	if rows, ok := a.cache.Get(key); ok {
		a.notify(true)
		return slices.Clone(rows), nil
	}
	a.notify(false)

	// The shared call outlives any one caller; each caller stops waiting
	// when its own request ends.
	start := time.Now()
	loadCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		if rows, ok := a.cache.Get(key); ok {
			return rows, nil
		}
		rows, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		a.cache.Add(key, rows)
		return rows, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.ServiceError("Earth Engine request was cancelled", ctx.Err(), map[string]any{"key": key})
	case res := <-ch:
		if res.Err != nil {
			a.logger.Warn("statistics request failed", "key", key, "duration", time.Since(start), "error", res.Err)
			return nil, res.Err
		}
		a.logger.Debug("statistics resolved", "key", key, "duration", time.Since(start), "shared_result", res.Shared)
		return slices.Clone(res.Val.([]Row)), nil
	}
}

func (a *Aggregator) notify(hit bool) {
	if a.observe != nil {
		a.observe("stats", hit)
	}
}

func (a *Aggregator) resolve(ctx context.Context, q query.Query) ([]Row, error) {
	var values []*float64
	if err := a.computer.ComputeInto(ctx, q.Batch(), &values); err != nil {
		return nil, err
	}

	want := len(q.Years) + 2
	if len(values) != want {
		return nil, shapeError(want, len(values), map[string]any{"selection": q.Selection.String()})
	}

	baseline := value(values[0])
	cumulative := value(values[1])
	rows := make([]Row, 0, len(q.Years))
	for i, y := range q.Years {
		loss := value(values[i+2])
		cumulative += loss
		rows = append(rows, Row{
			County:       q.Selection.County,
			Year:         y.Year,
			LossHa:       loss,
			CumulativeHa: cumulative,
			BaselineHa:   baseline,
			Percent:      Percent(cumulative, baseline),
		})
	}
	return rows, nil
}

// Percent is loss as a share of baseline, 0 when there was no forest.
func Percent(loss, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return loss / baseline * 100
}

// value treats a null reduction (no pixels in the region) as zero area.
func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func shapeError(want, got int, ctx map[string]any) error {
	return apperrors.ServiceError(
		fmt.Sprintf("Earth Engine returned %d values, expected %d", got, want), nil, ctx)
}

// Latest returns the last row, the one the summary metric shows.
func Latest(rows []Row) (Row, bool) {
	if len(rows) == 0 {
		return Row{}, false
	}
	return rows[len(rows)-1], true
}
