// Package chart renders statistics rows as PNG charts.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

var (
	colorMuted     = drawing.ColorFromHex("d3d3d3")
	colorActive    = drawing.ColorFromHex("ff4b4b")
	colorHighlight = drawing.ColorFromHex("ff0000")
	colorBarHigh   = drawing.ColorFromHex("ff4b4b")
	colorBarLow    = drawing.ColorFromHex("ff8080")
)

// ErrNoRows is returned when there is nothing to draw.
var ErrNoRows = errors.New("chart: no rows")

// Metric picks which row value is plotted.
type Metric string

const (
	Cumulative Metric = "cumulative"
	Annual     Metric = "annual"
)

// ParseMetric defaults to Cumulative for anything unrecognized.
func ParseMetric(s string) Metric {
	if Metric(s) == Annual {
		return Annual
	}
	return Cumulative
}

func (m Metric) value(r stats.Row) float64 {
	if m == Annual {
		return r.LossHa
	}
	return r.CumulativeHa
}

// Points returns the x (year) and y values of rows in row order.
func Points(rows []stats.Row, m Metric) ([]float64, []float64) {
	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		xs[i] = float64(r.Year)
		ys[i] = m.value(r)
	}
	return xs, ys
}

// TrendOptions configures Trend.
type TrendOptions struct {
	Metric Metric
	// Highlight is the year drawn as the current position; rows after it
	// are muted. Zero highlights the last row.
	Highlight int
	Width     int
	Height    int
}

// Trend draws rows as a line over years: the whole series muted, the part
// up to Highlight in red and a dot at Highlight. A single row draws as a
// single point.
func Trend(rows []stats.Row, opts TrendOptions) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if opts.Width == 0 {
		opts.Width = 480
	}
	if opts.Height == 0 {
		opts.Height = 320
	}
	if opts.Highlight == 0 {
		opts.Highlight = rows[len(rows)-1].Year
	}

	xs, ys := Points(rows, opts.Metric)

	cut := 0
	for cut < len(rows) && rows[cut].Year <= opts.Highlight {
		cut++
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "All years",
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: colorMuted, StrokeWidth: 1.5},
		},
	}
	if cut > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("Through %d", opts.Highlight),
			XValues: xs[:cut],
			YValues: ys[:cut],
			Style:   chart.Style{StrokeColor: colorActive, StrokeWidth: 2.5},
		})
		series = append(series, chart.ContinuousSeries{
			Name:    strconv.Itoa(rows[cut-1].Year),
			XValues: xs[cut-1 : cut],
			YValues: ys[cut-1 : cut],
			Style:   pointStyle(colorHighlight),
		})
	}

	minX, maxX := xs[0], xs[len(xs)-1]
	if maxX <= minX {
		minX, maxX = minX-1, maxX+1
	}
	_, maxY := bounds(ys)
	yMax := niceMax(maxY)

	ch := chart.Chart{
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: minX, Max: maxX},
			Ticks: yearTicks(rows, minX, maxX),
		},
		YAxis: chart.YAxis{
			Name:           "Hectares",
			Range:          &chart.ContinuousRange{Min: 0, Max: yMax},
			Ticks:          niceTicks(0, yMax, 5),
			ValueFormatter: hectares,
		},
		Series: series,
	}
	return render(ch)
}

// Counties draws one bar per row in row order. Bars above the median are
// drawn darker.
func Counties(rows []stats.Row, m Metric) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	_, ys := Points(rows, m)
	mid := median(ys)

	bars := make([]chart.Value, 0, len(rows))
	maxY := 0.0
	for _, r := range rows {
		v := m.value(r)
		maxY = math.Max(maxY, v)
		fill := colorBarLow
		if v > mid {
			fill = colorBarHigh
		}
		bars = append(bars, chart.Value{
			Label: r.County,
			Value: v,
			Style: chart.Style{FillColor: fill, StrokeColor: fill, StrokeWidth: 0},
		})
	}

	const barWidth, barSpacing = 28, 8
	yMax := niceMax(maxY)
	bc := chart.BarChart{
		Width:      max(320, 120+len(bars)*(barWidth+barSpacing)),
		Height:     360,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 90}},
		XAxis:      chart.Style{TextRotationDegrees: 45, FontSize: 8},
		YAxis: chart.YAxis{
			Name:           "Hectares",
			Range:          &chart.ContinuousRange{Min: 0, Max: yMax},
			Ticks:          niceTicks(0, yMax, 5),
			ValueFormatter: hectares,
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering county chart: %w", err)
	}
	return buf.Bytes(), nil
}

func render(ch chart.Chart) ([]byte, error) {
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering trend chart: %w", err)
	}
	return buf.Bytes(), nil
}

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 0,
		DotWidth:    5,
		DotColor:    col,
	}
}

func median(vs []float64) float64 {
	sorted := slices.Clone(vs)
	slices.Sort(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func bounds(vs []float64) (float64, float64) {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// niceMax rounds v up to 1, 2, 2.5 or 5 times a power of ten, at least 1.
func niceMax(v float64) float64 {
	if v <= 1 || math.IsNaN(v) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(v)))
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		if c*mag >= v {
			return c * mag
		}
	}
	return 10 * mag
}

func niceTicks(lo, hi float64, n int) []chart.Tick {
	step := (hi - lo) / float64(n)
	ticks := make([]chart.Tick, 0, n+1)
	for i := 0; i <= n; i++ {
		v := lo + step*float64(i)
		ticks = append(ticks, chart.Tick{Value: v, Label: hectares(v)})
	}
	return ticks
}

// yearTicks labels at most eight years across the axis.
func yearTicks(rows []stats.Row, minX, maxX float64) []chart.Tick {
	step := max(1, (len(rows)+7)/8)
	ticks := make([]chart.Tick, 0, len(rows)/step+2)
	if len(rows) == 1 {
		ticks = append(ticks, chart.Tick{Value: minX, Label: ""})
	}
	for i := 0; i < len(rows); i += step {
		ticks = append(ticks, chart.Tick{Value: float64(rows[i].Year), Label: strconv.Itoa(rows[i].Year)})
	}
	if len(rows) == 1 {
		ticks = append(ticks, chart.Tick{Value: maxX, Label: ""})
	}
	return ticks
}

// hectares formats an axis value with thousands separators.
func hectares(v any) string {
	f, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	return Thousands(f)
}

// Thousands formats f rounded to an integer with comma separators.
func Thousands(f float64) string {
	n := int64(math.Round(f))
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	s := strconv.FormatInt(n, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}
