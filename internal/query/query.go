// Package query turns a user's selection into Earth Engine expressions.
// Nothing here talks to the network: a Query is a set of lazy expressions
// that the stats and mapview packages resolve when a page needs them.
package query

import (
	"fmt"
	"strings"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

// Selection is the UI state that drives one render cycle.
type Selection struct {
	County string `json:"county"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// SingleYear selects one year.
func SingleYear(county string, year int) Selection {
	return Selection{County: county, From: year, To: year}
}

// Years lists the selected years in ascending order.
func (s Selection) Years() []int {
	if s.To < s.From {
		return nil
	}
	years := make([]int, 0, s.To-s.From+1)
	for y := s.From; y <= s.To; y++ {
		years = append(years, y)
	}
	return years
}

// Key identifies the selection for caching.
func (s Selection) Key() string {
	return fmt.Sprintf("%s|%d|%d", s.County, s.From, s.To)
}

func (s Selection) String() string {
	if s.From == s.To {
		return fmt.Sprintf("%s %d", s.County, s.From)
	}
	return fmt.Sprintf("%s %d-%d", s.County, s.From, s.To)
}

// YearLoss is the hectares of forest lost in Year inside the selection.
type YearLoss struct {
	Year int
	Loss expr.Node
}

// Query holds every expression a render cycle may resolve.
type Query struct {
	Selection Selection

	// Boundary is the selected county, or the nation.
	Boundary expr.FeatureCollection
	Region   expr.Geometry

	// Baseline is the forest area in the base year.
	Baseline expr.Node
	// Prior is the loss accumulated before Selection.From, so rows can carry
	// cumulative totals. It is the constant 0 when From is the first year.
	Prior expr.Node
	Years []YearLoss

	// LossMask is the loss raster for the selected years, for display.
	LossMask expr.Image
}

// Batch packs the reductions into one list so a single request resolves
// them: [baseline, prior, year From, ..., year To].
func (q Query) Batch() expr.Node {
	items := make([]expr.Node, 0, len(q.Years)+2)
	items = append(items, q.Baseline, q.Prior)
	for _, y := range q.Years {
		items = append(items, y.Loss)
	}
	return expr.List(items...)
}

// Names is satisfied by *dataset.Catalog.
type Names interface {
	Contains(name string) bool
}

// Builder validates selections and builds queries against one dataset.
type Builder struct {
	ref   *dataset.Reference
	names Names
}

func NewBuilder(ref *dataset.Reference, names Names) *Builder {
	return &Builder{ref: ref, names: names}
}

// Validate rejects selections that cannot be sent to Earth Engine.
func (b *Builder) Validate(sel Selection) error {
	ctx := map[string]any{"county": sel.County, "from": sel.From, "to": sel.To}

	if strings.TrimSpace(sel.County) == "" {
		return apperrors.InvalidSelection("Select a county.", ctx)
	}
	if !b.names.Contains(sel.County) {
		return apperrors.InvalidSelection(fmt.Sprintf("%q is not a county of %s.", sel.County, b.ref.Country()), ctx)
	}
	for _, y := range []int{sel.From, sel.To} {
		if !b.ref.InWindow(y) {
			return apperrors.InvalidSelection(fmt.Sprintf("Year %d is outside %d-%d.", y, b.ref.FirstYear(), b.ref.LastYear()), ctx)
		}
	}
	if sel.From > sel.To {
		return apperrors.InvalidSelection(fmt.Sprintf("Start year %d is after end year %d.", sel.From, sel.To), ctx)
	}
	return nil
}

// Build validates sel and returns its expressions.
func (b *Builder) Build(sel Selection) (Query, error) {
	if err := b.Validate(sel); err != nil {
		return Query{}, err
	}

	ref := b.ref
	boundary := ref.Boundary(sel.County)
	region := boundary.Geometry()
	lossKey := ref.LossBand()

	q := Query{
		Selection: sel,
		Boundary:  boundary,
		Region:    region,
		Baseline:  ref.SumHectares(ref.Forest2000(), ref.TreeCoverBand(), region),
		Prior:     expr.Constant(0),
		LossMask:  ref.LossBetween(sel.From, sel.To),
	}
	if sel.From > ref.FirstYear() {
		q.Prior = ref.SumHectares(ref.LossThrough(sel.From-1), lossKey, region)
	}
	for _, y := range sel.Years() {
		q.Years = append(q.Years, YearLoss{
			Year: y,
			Loss: ref.SumHectares(ref.LossForYear(y), lossKey, region),
		})
	}
	return q, nil
}

// Comparison builds one [baseline, loss through year, loss in year] triple
// per county, packed in a single list in the order of counties.
func (b *Builder) Comparison(counties []string, year int) (expr.Node, error) {
	if !b.ref.InWindow(year) {
		return nil, apperrors.InvalidSelection(
			fmt.Sprintf("Year %d is outside %d-%d.", year, b.ref.FirstYear(), b.ref.LastYear()),
			map[string]any{"year": year})
	}

	ref := b.ref
	through := ref.LossThrough(year)
	triples := make([]expr.Node, 0, len(counties))
	for _, name := range counties {
		region := ref.County(name).Geometry()
		triples = append(triples, expr.List(
			ref.SumHectares(ref.Forest2000(), ref.TreeCoverBand(), region),
			ref.SumHectares(through, ref.LossBand(), region),
			ref.SumHectares(ref.LossForYear(year), ref.LossBand(), region),
		))
	}
	return expr.List(triples...), nil
}
