package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/logger"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

type fakeBackend struct {
	mu            sync.Mutex
	createCalls   int
	tileCalls     int
	boundaryCalls int
	tileNames     []string
	boundaryErr   error
	createErr     error
	block         chan struct{}
	waiting       int
}

func (f *fakeBackend) Waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

func (f *fakeBackend) Project() string { return "test-project" }

func (f *fakeBackend) CreateMap(ctx context.Context, image expr.Image, _ fetcher.Visualization) (string, error) {
	if f.block != nil {
		f.mu.Lock()
		f.waiting++
		f.mu.Unlock()
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls++
	return fmt.Sprintf("projects/test-project/maps/map%d", f.createCalls), nil
}

func (f *fakeBackend) Tile(_ context.Context, name string, z, x, y int) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tileCalls++
	f.tileNames = append(f.tileNames, name)
	return []byte(fmt.Sprintf("%d/%d/%d", z, x, y)), "image/png", nil
}

func (f *fakeBackend) FetchBoundaries(context.Context, expr.FeatureCollection, string) ([]fetcher.Boundary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundaryCalls++
	if f.boundaryErr != nil {
		return nil, f.boundaryErr
	}
	geom := &fetcher.GeoGeometry{Type: "Polygon", Coordinates: json.RawMessage(`[[[0,0],[1,0],[1,1],[0,0]]]`)}
	return []fetcher.Boundary{
		{Name: "Bomi", Geometry: geom, Properties: map[string]any{"ADM1_NAME": "Bomi"}},
		{Name: "Lofa", Geometry: geom, Properties: map[string]any{"ADM1_NAME": "Lofa"}},
	}, nil
}

func setup(t *testing.T, backend *fakeBackend) (*View, *query.Builder) {
	t.Helper()
	cfg := config.Default()
	ref := dataset.NewReference(cfg.Dataset)
	catalog := dataset.NewCatalog("Liberia", []string{"Bomi", "Lofa"})

	v, err := NewView(backend, ref, cfg.Map, Options{MapIDTTL: time.Hour, TileCache: 8, Logger: logger.Discard()})
	require.NoError(t, err)
	return v, query.NewBuilder(ref, catalog)
}

func TestCompose_LofaSingleYear(t *testing.T) {
	backend := &fakeBackend{}
	v, b := setup(t, backend)

	q, err := b.Build(query.SingleYear("Lofa", 2020))
	require.NoError(t, err)

	rows := []stats.Row{{County: "Lofa", Year: 2020, CumulativeHa: 120, BaselineHa: 1200, Percent: 10}}
	m, err := v.Compose(context.Background(), q, rows)
	require.NoError(t, err)

	assert.Equal(t, 6.5, m.CenterLat)
	assert.Equal(t, -9.5, m.CenterLon)
	assert.Equal(t, 7, m.Zoom)
	assert.Equal(t, "Lofa", m.Selected)
	assert.Equal(t, 2020, m.Year)
	assert.Len(t, m.Basemaps, 2)

	require.Len(t, m.Layers, 3)
	assert.Equal(t, "Forest 2000 (Base)", m.Layers[0].Name)
	assert.Equal(t, "#006400", m.Layers[0].Color)
	assert.Equal(t, "Loss 2020", m.Layers[2].Name)
	assert.True(t, m.Layers[2].Visible)
	assert.Equal(t, "/tiles/map3/{z}/{x}/{y}", m.Layers[2].TileURL)

	require.Len(t, m.Counties.Features, 2)
	lofa := m.Counties.Features[1].Properties
	assert.Equal(t, "Lofa", lofa["name"])
	assert.Equal(t, true, lofa["selected"])
	assert.Equal(t, 120.0, lofa["loss_ha"])
	assert.Equal(t, 10.0, lofa["loss_pct"])
	assert.Equal(t, false, m.Counties.Features[0].Properties["selected"])
}

func TestCompose_ReusesMapIDs(t *testing.T) {
	backend := &fakeBackend{}
	v, b := setup(t, backend)

	q, err := b.Build(query.SingleYear("Lofa", 2020))
	require.NoError(t, err)

	_, err = v.Compose(context.Background(), q, nil)
	require.NoError(t, err)
	_, err = v.Compose(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.createCalls)
	assert.Equal(t, 1, backend.boundaryCalls)

	other, err := b.Build(query.SingleYear("Bomi", 2020))
	require.NoError(t, err)
	_, err = v.Compose(context.Background(), other, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.createCalls, "layers are clipped to the nation, so the county does not change them")

	later, err := b.Build(query.SingleYear("Bomi", 2021))
	require.NoError(t, err)
	_, err = v.Compose(context.Background(), later, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, backend.createCalls, "forest layer is shared across years")
}

func TestCompose_CancelledCallerDoesNotFailSharedLayer(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	v, b := setup(t, backend)
	q, err := b.Build(query.SingleYear("Lofa", 2020))
	require.NoError(t, err)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := v.Compose(first, q, nil)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return backend.Waiting() == 1 }, time.Second, time.Millisecond)

	type result struct {
		m   *Map
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := v.Compose(context.Background(), q, nil)
		second <- result{m, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err = <-firstErr
	assert.True(t, apperrors.IsService(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(backend.block)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.m.Layers, 3)
}

func TestCompose_NationalSelectionHighlightsNothing(t *testing.T) {
	v, b := setup(t, &fakeBackend{})
	q, err := b.Build(query.SingleYear("Liberia", 2024))
	require.NoError(t, err)

	m, err := v.Compose(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Empty(t, m.Selected)
	for _, f := range m.Counties.Features {
		assert.Equal(t, false, f.Properties["selected"])
	}
}

func TestCompose_Errors(t *testing.T) {
	t.Run("map creation failure", func(t *testing.T) {
		v, b := setup(t, &fakeBackend{createErr: apperrors.ServiceError("quota", nil, nil)})
		q, _ := b.Build(query.SingleYear("Lofa", 2020))
		_, err := v.Compose(context.Background(), q, nil)
		assert.True(t, apperrors.IsService(err))
	})

	t.Run("boundary failure is retried next time", func(t *testing.T) {
		backend := &fakeBackend{boundaryErr: errors.New("boom")}
		v, b := setup(t, backend)
		q, _ := b.Build(query.SingleYear("Lofa", 2020))

		_, err := v.Compose(context.Background(), q, nil)
		require.Error(t, err)

		backend.boundaryErr = nil
		_, err = v.Compose(context.Background(), q, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, backend.boundaryCalls)
	})
}

func TestTileCache(t *testing.T) {
	backend := &fakeBackend{}
	tiles, err := NewTileCache(backend, 2, nil)
	require.NoError(t, err)

	tile, err := tiles.Get(context.Background(), "abc", 7, 60, 61)
	require.NoError(t, err)
	assert.Equal(t, "7/60/61", string(tile.Data))
	assert.Equal(t, "image/png", tile.ContentType)
	assert.Equal(t, []string{"projects/test-project/maps/abc"}, backend.tileNames)

	_, err = tiles.Get(context.Background(), "abc", 7, 60, 61)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.tileCalls, "repeated tile is served from cache")

	_, _ = tiles.Get(context.Background(), "abc", 7, 60, 62)
	_, _ = tiles.Get(context.Background(), "abc", 7, 60, 63)
	assert.Equal(t, 2, tiles.Len())
	_, _ = tiles.Get(context.Background(), "abc", 7, 60, 61)
	assert.Equal(t, 4, backend.tileCalls, "least recently used tile was evicted")
}

func TestValidateTile(t *testing.T) {
	assert.NoError(t, ValidateTile("abc-123_X", 0, 0, 0))
	assert.NoError(t, ValidateTile("abc", 7, 127, 127))

	bad := []struct {
		id      string
		z, x, y int
	}{
		{"", 1, 0, 0},
		{"../secret", 1, 0, 0},
		{"a/b", 1, 0, 0},
		{"abc", -1, 0, 0},
		{"abc", 23, 0, 0},
		{"abc", 1, 2, 0},
		{"abc", 1, 0, -1},
	}
	for _, tc := range bad {
		err := ValidateTile(tc.id, tc.z, tc.x, tc.y)
		assert.True(t, apperrors.IsInvalidSelection(err), "%+v", tc)
	}
}

func TestTileURL(t *testing.T) {
	assert.Equal(t, "/tiles/abc/{z}/{x}/{y}", TileURL("projects/p/maps/abc"))
}

func TestOutline_HasNoEarthEngineLayers(t *testing.T) {
	backend := &fakeBackend{}
	v, _ := setup(t, backend)

	m, err := v.Outline(context.Background(), query.SingleYear("Bomi", 2010), nil)
	require.NoError(t, err)
	assert.Empty(t, m.Layers)
	assert.Equal(t, 0, backend.createCalls)
	assert.Equal(t, "Bomi", m.Selected)
	assert.Len(t, m.Counties.Features, 2)
	assert.Equal(t, 2010, m.Year)
}
