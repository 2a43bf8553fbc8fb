package chart

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func series(county string, from, to int) []stats.Row {
	var rows []stats.Row
	cum := 0.0
	for y := from; y <= to; y++ {
		loss := float64((y-from)%5+1) * 100
		cum += loss
		rows = append(rows, stats.Row{County: county, Year: y, LossHa: loss, CumulativeHa: cum, BaselineHa: 1e6})
	}
	return rows
}

func assertPNG(t *testing.T, data []byte, wantWidth int) {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, pngSignature), "output is a PNG")
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	if wantWidth > 0 {
		assert.Equal(t, wantWidth, img.Bounds().Dx())
	}
}

func TestPoints_PreservesRowOrder(t *testing.T) {
	rows := series("Lofa", 2001, 2024)
	xs, ys := Points(rows, Cumulative)

	require.Len(t, xs, 24)
	for i := range xs {
		assert.Equal(t, float64(2001+i), xs[i])
		assert.Equal(t, rows[i].CumulativeHa, ys[i])
		assert.GreaterOrEqual(t, ys[i], 0.0)
	}

	_, annual := Points(rows, Annual)
	assert.Equal(t, rows[3].LossHa, annual[3])
}

func TestTrend_FullRange(t *testing.T) {
	data, err := Trend(series("Lofa", 2001, 2024), TrendOptions{Highlight: 2015})
	require.NoError(t, err)
	assertPNG(t, data, 480)
}

func TestTrend_SinglePoint(t *testing.T) {
	data, err := Trend(series("Lofa", 2020, 2020), TrendOptions{Width: 300, Height: 200})
	require.NoError(t, err)
	assertPNG(t, data, 300)
}

func TestTrend_AllZero(t *testing.T) {
	rows := []stats.Row{{Year: 2001}, {Year: 2002}}
	data, err := Trend(rows, TrendOptions{Metric: Annual})
	require.NoError(t, err)
	assertPNG(t, data, 0)
}

func TestTrend_Empty(t *testing.T) {
	_, err := Trend(nil, TrendOptions{})
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestCounties(t *testing.T) {
	rows := []stats.Row{
		{County: "Bomi", CumulativeHa: 10},
		{County: "Lofa", CumulativeHa: 200},
		{County: "Nimba", CumulativeHa: 3000},
	}
	data, err := Counties(rows, Cumulative)
	require.NoError(t, err)
	assertPNG(t, data, 0)

	_, err = Counties(nil, Cumulative)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestParseMetric(t *testing.T) {
	assert.Equal(t, Annual, ParseMetric("annual"))
	assert.Equal(t, Cumulative, ParseMetric("cumulative"))
	assert.Equal(t, Cumulative, ParseMetric(""))
	assert.Equal(t, Cumulative, ParseMetric("bogus"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1.0, niceMax(0))
	assert.Equal(t, 1.0, niceMax(1))
	assert.Equal(t, 250.0, niceMax(240))
	assert.Equal(t, 5000.0, niceMax(3001))

	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, median(nil))

	assert.Equal(t, "0", Thousands(0))
	assert.Equal(t, "999", Thousands(999))
	assert.Equal(t, "1,000", Thousands(1000))
	assert.Equal(t, "1,234,568", Thousands(1234567.6))
	assert.Equal(t, "-12,345", Thousands(-12345))
}
