// Package generator renders the dashboard page and writes static exports.
package generator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

var page = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"toJSON":    toJSON,
	"thousands": chart.Thousands,
	"percent":   func(f float64) string { return fmt.Sprintf("%.1f", f) },
}).Parse(pageTemplate))

// Page is one rendered view of the dashboard.
type Page struct {
	Selection  query.Selection
	Counties   []string // select options, national aggregate first
	FirstYear  int
	LastYear   int
	BaseYear   int
	Metric     chart.Metric
	Rows       []stats.Row
	CountyRows []stats.Row
	Map        *mapview.Map
	MapHeight  int

	// Chart image sources. The server links its chart routes; exports
	// embed the PNGs as data URIs.
	TrendChart    template.URL
	CountiesChart template.URL

	// Error is shown in a banner above the controls. Status picks its wording.
	Error  string
	Status int
	Stale  bool

	Static      bool
	GeneratedAt time.Time
}

type pageData struct {
	Page
	Metric      string
	Years       []int
	Latest      *stats.Row
	GeneratedAt string
}

// Render writes the page as HTML.
func Render(w io.Writer, p Page) error {
	data := pageData{
		Page:        p,
		Metric:      string(p.Metric),
		GeneratedAt: p.GeneratedAt.UTC().Format("Jan 2, 2006 at 15:04 UTC"),
	}
	if data.Metric == "" {
		data.Metric = string(chart.Cumulative)
	}
	if data.Map == nil {
		data.Map = &mapview.Map{Basemaps: []mapview.Basemap{}, Layers: []mapview.Layer{}}
	}
	for y := p.FirstYear; y <= p.LastYear; y++ {
		data.Years = append(data.Years, y)
	}
	if latest, ok := stats.Latest(p.Rows); ok {
		data.Latest = &latest
	}
	return page.Execute(w, data)
}

// Snapshot is the JSON written next to an exported page.
type Snapshot struct {
	Selection   query.Selection `json:"selection"`
	Rows        []stats.Row     `json:"rows"`
	Counties    []stats.Row     `json:"counties"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// Export writes a self-contained page to outputPath and its data to the
// same name with a .json extension. Both files are replaced atomically so
// a browser never reads a partial file. It returns the snapshot path.
func Export(outputPath string, p Page) (string, error) {
	p.Static = true

	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	if err := atomic.WriteFile(outputPath, &buf); err != nil {
		return "", fmt.Errorf("writing %s: %w", outputPath, err)
	}

	snap, err := json.MarshalIndent(Snapshot{
		Selection:   p.Selection,
		Rows:        p.Rows,
		Counties:    p.CountyRows,
		GeneratedAt: p.GeneratedAt.UTC(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	snapPath := SnapshotPath(outputPath)
	if err := atomic.WriteFile(snapPath, bytes.NewReader(snap)); err != nil {
		return "", fmt.Errorf("writing %s: %w", snapPath, err)
	}
	return snapPath, nil
}

// SnapshotPath swaps the extension of an export path for .json.
func SnapshotPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".json"
}

// TrendChartURL links the trend chart for a selection.
func TrendChartURL(sel query.Selection, m chart.Metric) template.URL {
	v := url.Values{}
	v.Set("county", sel.County)
	v.Set("from", fmt.Sprint(sel.From))
	v.Set("to", fmt.Sprint(sel.To))
	v.Set("metric", string(m))
	return template.URL("/chart/trend.png?" + v.Encode())
}

// CountiesChartURL links the per-county bar chart for one year.
func CountiesChartURL(year int, m chart.Metric) template.URL {
	v := url.Values{}
	v.Set("year", fmt.Sprint(year))
	v.Set("metric", string(m))
	return template.URL("/chart/counties.png?" + v.Encode())
}

// DataURI embeds a PNG so an exported page needs no server.
func DataURI(png []byte) template.URL {
	if len(png) == 0 {
		return ""
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}

func toJSON(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}
