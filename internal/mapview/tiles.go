package mapview

import (
	"context"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
)

const maxZoom = 22

var mapIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Tile is a rendered map tile.
type Tile struct {
	Data        []byte
	ContentType string
}

type tileSource interface {
	Project() string
	Tile(ctx context.Context, mapName string, z, x, y int) ([]byte, string, error)
}

// TileCache proxies Earth Engine tiles and keeps the most recent ones in
// memory. Tiles of a map never change, so entries only leave by eviction.
type TileCache struct {
	source  tileSource
	cache   *lru.Cache[string, Tile]
	observe CacheObserver
}

func NewTileCache(source tileSource, size int, observe CacheObserver) (*TileCache, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, Tile](size)
	if err != nil {
		return nil, fmt.Errorf("creating tile cache: %w", err)
	}
	return &TileCache{source: source, cache: cache, observe: observe}, nil
}

// Get returns tile z/x/y of the map with the given id (the last segment of
// its resource name).
func (t *TileCache) Get(ctx context.Context, mapID string, z, x, y int) (Tile, error) {
	if err := ValidateTile(mapID, z, x, y); err != nil {
		return Tile{}, err
	}

	key := fmt.Sprintf("%s/%d/%d/%d", mapID, z, x, y)
	if tile, ok := t.cache.Get(key); ok {
		t.notify(true)
		return tile, nil
	}
	t.notify(false)

	name := fmt.Sprintf("projects/%s/maps/%s", t.source.Project(), mapID)
	data, contentType, err := t.source.Tile(ctx, name, z, x, y)
	if err != nil {
		return Tile{}, err
	}

	tile := Tile{Data: data, ContentType: contentType}
	t.cache.Add(key, tile)
	return tile, nil
}

// Len is the number of cached tiles.
func (t *TileCache) Len() int { return t.cache.Len() }

func (t *TileCache) notify(hit bool) {
	if t.observe != nil {
		t.observe("tile", hit)
	}
}

// ValidateTile rejects coordinates outside the web mercator pyramid and map
// ids that could escape the tiles path.
func ValidateTile(mapID string, z, x, y int) error {
	ctx := map[string]any{"map": mapID, "z": z, "x": x, "y": y}
	if !mapIDPattern.MatchString(mapID) {
		return apperrors.InvalidSelection("invalid map id", ctx)
	}
	if z < 0 || z > maxZoom {
		return apperrors.InvalidSelection("zoom out of range", ctx)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return apperrors.InvalidSelection("tile out of range", ctx)
	}
	return nil
}
