// Package mapview composes the layers shown on the Leaflet map. Earth
// Engine layers are passed along as tile URL templates; this package never
// touches pixels except to proxy tiles the service has rendered.
package mapview

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

// Basemap is a third-party tile layer the browser loads directly.
type Basemap struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom"`
}

var basemaps = []Basemap{
	{
		Name:        "Google Hybrid",
		URL:         "https://mt1.google.com/vt/lyrs=y&x={x}&y={y}&z={z}",
		Attribution: "Google",
		MaxZoom:     22,
	},
	{
		Name:        "OpenStreetMap",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		MaxZoom:     19,
	},
}

// Layer is an Earth Engine overlay served through the tile proxy.
type Layer struct {
	Name    string  `json:"name"`
	TileURL string  `json:"tileUrl"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	Visible bool    `json:"visible"`
}

// Map is everything the page needs to draw the map widget.
type Map struct {
	CenterLat float64           `json:"centerLat"`
	CenterLon float64           `json:"centerLon"`
	Zoom      int               `json:"zoom"`
	Basemaps  []Basemap         `json:"basemaps"`
	Layers    []Layer           `json:"layers"`
	Counties  FeatureCollection `json:"counties"`
	Selected  string            `json:"selected"`
	Year      int               `json:"year"`
}

// Backend is the part of the Earth Engine client the map needs.
type Backend interface {
	Project() string
	CreateMap(ctx context.Context, image expr.Image, vis fetcher.Visualization) (string, error)
	Tile(ctx context.Context, mapName string, z, x, y int) ([]byte, string, error)
	FetchBoundaries(ctx context.Context, fc expr.FeatureCollection, nameProperty string) ([]fetcher.Boundary, error)
}

// CacheObserver is told whether a lookup was served from memory.
type CacheObserver func(cache string, hit bool)

// Options configures a View.
type Options struct {
	MapIDTTL  time.Duration
	TileCache int
	Logger    *slog.Logger
	Observe   CacheObserver
}

// View builds Maps and serves their tiles.
type View struct {
	backend Backend
	ref     *dataset.Reference
	cfg     config.MapConfig
	mapIDs  *expirable.LRU[string, string]
	group   singleflight.Group
	tiles   *TileCache
	logger  *slog.Logger
	observe CacheObserver

	mu         sync.Mutex
	boundaries []fetcher.Boundary
}

func NewView(backend Backend, ref *dataset.Reference, cfg config.MapConfig, opts Options) (*View, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tiles, err := NewTileCache(backend, opts.TileCache, opts.Observe)
	if err != nil {
		return nil, err
	}
	return &View{
		backend: backend,
		ref:     ref,
		cfg:     cfg,
		mapIDs:  expirable.NewLRU[string, string](256, nil, opts.MapIDTTL),
		tiles:   tiles,
		logger:  opts.Logger,
		observe: opts.Observe,
	}, nil
}

// Tiles returns the proxy cache for the server's tile route.
func (v *View) Tiles() *TileCache { return v.tiles }

// Compose builds the map for q. countyRows enrich county popups and may be
// empty.
func (v *View) Compose(ctx context.Context, q query.Query, countyRows []stats.Row) (*Map, error) {
	sel := q.Selection
	nation := v.ref.Nation().Geometry()
	forest := v.ref.Forest2000().Clip(nation)

	specs := []layerSpec{
		{
			name:    "Forest 2000 (Base)",
			image:   forest.SelfMask(),
			vis:     fetcher.Visualization{Min: 0, Max: 1, Palette: []string{"006400"}, Opacity: 0.6},
			visible: true,
		},
		{
			name:    fmt.Sprintf("Cumulative Loss %d-%d", v.ref.FirstYear(), sel.To),
			image:   v.ref.LossThrough(sel.To).Clip(nation).SelfMask(),
			vis:     fetcher.Visualization{Min: 0, Max: 1, Palette: []string{"800000"}, Opacity: 0.8},
			visible: false,
		},
		{
			name:    "Loss " + yearLabel(sel),
			image:   q.LossMask.Clip(nation).SelfMask(),
			vis:     fetcher.Visualization{Min: 0, Max: 1, Palette: []string{"FF0000"}, Opacity: 1},
			visible: true,
		},
	}

	layers := make([]Layer, 0, len(specs))
	for _, spec := range specs {
		layer, err := v.resolve(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("resolving %s layer: %w", spec.name, err)
		}
		layers = append(layers, layer)
	}

	m, err := v.Outline(ctx, sel, countyRows)
	if err != nil {
		return nil, err
	}
	m.Layers = layers
	return m, nil
}

// Outline is the map without Earth Engine layers: basemaps and county
// boundaries only. Static exports use it since tile URLs point at the
// running server.
func (v *View) Outline(ctx context.Context, sel query.Selection, countyRows []stats.Row) (*Map, error) {
	boundaries, err := v.Boundaries(ctx)
	if err != nil {
		return nil, err
	}

	selected := sel.County
	if selected == v.ref.Country() {
		selected = ""
	}

	return &Map{
		CenterLat: v.cfg.CenterLat,
		CenterLon: v.cfg.CenterLon,
		Zoom:      v.cfg.Zoom,
		Basemaps:  basemaps,
		Layers:    []Layer{},
		Counties:  CountyGeoJSON(boundaries, countyRows, selected),
		Selected:  selected,
		Year:      sel.To,
	}, nil
}

// Boundaries returns the county outlines, fetched on first use and then
// kept for the life of the process. Failures are not remembered.
func (v *View) Boundaries(ctx context.Context) ([]fetcher.Boundary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.boundaries != nil {
		return v.boundaries, nil
	}
	b, err := v.backend.FetchBoundaries(ctx, v.ref.Counties(), v.ref.CountyProperty())
	if err != nil {
		return nil, err
	}
	v.logger.Info("county boundaries loaded", "count", len(b))
	v.boundaries = b
	return b, nil
}

type layerSpec struct {
	name    string
	image   expr.Image
	vis     fetcher.Visualization
	visible bool
}

func (v *View) resolve(ctx context.Context, spec layerSpec) (Layer, error) {
	raw, err := expr.MarshalCanonical(spec.image)
	if err != nil {
		return Layer{}, err
	}
	key := fmt.Sprintf("%s|%v|%v|%v|%v", raw, spec.vis.Min, spec.vis.Max, spec.vis.Palette, spec.vis.Opacity)

	name, ok := v.mapIDs.Get(key)
	if v.observe != nil {
		v.observe("map_id", ok)
	}
	if !ok {
		loadCtx := context.WithoutCancel(ctx)
		ch := v.group.DoChan(key, func() (any, error) {
			name, err := v.backend.CreateMap(loadCtx, spec.image, spec.vis)
			if err != nil {
				return nil, err
			}
			v.mapIDs.Add(key, name)
			return name, nil
		})
		select {
		case <-ctx.Done():
			return Layer{}, apperrors.ServiceError("Earth Engine request was cancelled", ctx.Err(), map[string]any{"layer": spec.name})
		case res := <-ch:
			if res.Err != nil {
				return Layer{}, res.Err
			}
			name = res.Val.(string)
		}
	}

	color := ""
	if len(spec.vis.Palette) > 0 {
		color = "#" + spec.vis.Palette[len(spec.vis.Palette)-1]
	}
	return Layer{
		Name:    spec.name,
		TileURL: TileURL(name),
		Color:   color,
		Opacity: spec.vis.Opacity,
		Visible: spec.visible,
	}, nil
}

// TileURL is the Leaflet URL template for a map resource name.
func TileURL(mapName string) string {
	return "/tiles/" + path.Base(mapName) + "/{z}/{x}/{y}"
}

func yearLabel(sel query.Selection) string {
	if sel.From == sel.To {
		return fmt.Sprint(sel.From)
	}
	return fmt.Sprintf("%d-%d", sel.From, sel.To)
}
