package generator

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

func samplePage() Page {
	sel := query.Selection{County: "Lofa", From: 2019, To: 2020}
	return Page{
		Selection: sel,
		Counties:  []string{"Liberia", "Bomi", "Lofa"},
		FirstYear: 2001,
		LastYear:  2024,
		BaseYear:  2000,
		Metric:    chart.Annual,
		Rows: []stats.Row{
			{County: "Lofa", Year: 2019, LossHa: 1200, CumulativeHa: 45000, BaselineHa: 900000, Percent: 5},
			{County: "Lofa", Year: 2020, LossHa: 1500, CumulativeHa: 46500, BaselineHa: 900000, Percent: 5.1667},
		},
		Map: &mapview.Map{
			CenterLat: 6.5, CenterLon: -9.5, Zoom: 7,
			Layers:   []mapview.Layer{{Name: "Loss 2019-2020", TileURL: "/tiles/abc/{z}/{x}/{y}", Color: "#FF0000", Opacity: 1, Visible: true}},
			Counties: mapview.FeatureCollection{Type: "FeatureCollection", Features: []mapview.Feature{}},
			Selected: "Lofa",
			Year:     2020,
		},
		MapHeight:     850,
		TrendChart:    TrendChartURL(sel, chart.Annual),
		CountiesChart: CountiesChartURL(2020, chart.Annual),
		GeneratedAt:   time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC),
	}
}

func TestRender_Page(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, samplePage()))
	html := buf.String()

	assert.Contains(t, html, "<title>Liberia Forest Loss Tracker</title>")
	assert.Contains(t, html, `<option value="Lofa" selected>Lofa</option>`)
	assert.Contains(t, html, `<option value="2019" selected>2019</option>`)
	assert.Contains(t, html, `<option value="annual" selected>`)
	assert.Contains(t, html, "46,500 Ha")
	assert.Contains(t, html, "-5.2%")
	assert.Contains(t, html, `/tiles/abc/{z}/{x}/{y}`)
	assert.Contains(t, html, `/chart/trend.png?county=Lofa&amp;from=2019&amp;metric=annual&amp;to=2020`)
	assert.Contains(t, html, "Liberia Forest Loss: 2000&ndash;2020")
	assert.Contains(t, html, "Jan 2, 2025 at 15:04 UTC")
	assert.NotContains(t, html, "error-banner")
}

func TestRender_ErrorBanner(t *testing.T) {
	p := samplePage()
	p.Error = "Earth Engine quota exceeded; try again in a moment"
	p.Status = 502
	p.Stale = true

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, p))
	html := buf.String()
	assert.Contains(t, html, "error-banner")
	assert.Contains(t, html, "Earth Engine is unavailable")
	assert.Contains(t, html, "quota exceeded")
	assert.Contains(t, html, "Showing the last successful view.")
}

func TestRender_EscapesUserText(t *testing.T) {
	p := samplePage()
	p.Error = `"<script>alert(1)</script>" is not a county of Liberia.`
	p.Status = 400

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, p))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
	assert.Contains(t, buf.String(), "Check your selection")
}

func TestRender_WithoutRowsOrMap(t *testing.T) {
	p := Page{
		Selection:   query.SingleYear("Liberia", 2024),
		Counties:    []string{"Liberia"},
		FirstYear:   2001,
		LastYear:    2024,
		BaseYear:    2000,
		MapHeight:   600,
		GeneratedAt: time.Now(),
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, p))
	assert.NotContains(t, buf.String(), `id="summary"`)
	assert.Contains(t, buf.String(), `<option value="cumulative" selected>`)
}

func TestExport_WritesPageAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "liberia.html")

	p := samplePage()
	p.TrendChart = DataURI([]byte("\x89PNG"))
	p.CountyRows = []stats.Row{{County: "Bomi", Year: 2020, CumulativeHa: 10}}

	snapPath, err := Export(out, p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "liberia.json"), snapPath)

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "data:image/png;base64,")
	assert.Contains(t, string(html), "only available on the live dashboard")

	raw, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, p.Selection, snap.Selection)
	assert.Len(t, snap.Rows, 2)
	assert.Equal(t, "Bomi", snap.Counties[0].County)
}

func TestExport_OverwritesExisting(t *testing.T) {
	out := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	_, err := Export(out, samplePage())
	require.NoError(t, err)

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(html)), "<!DOCTYPE html>"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "out/page.json", SnapshotPath("out/page.html"))
	assert.Equal(t, "page.json", SnapshotPath("page"))
	assert.Empty(t, DataURI(nil))
	assert.Equal(t, "/chart/counties.png?metric=cumulative&year=2024", string(CountiesChartURL(2024, chart.Cumulative)))
}
