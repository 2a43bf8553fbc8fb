package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

// Feature is one GeoJSON feature as returned by table:computeFeatures.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   *GeoGeometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// GeoGeometry holds a GeoJSON geometry without decoding its coordinates.
type GeoGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  json.RawMessage `json:"geometries,omitempty"`
}

// Boundary is an administrative area with its outline.
type Boundary struct {
	Name       string         `json:"name"`
	Geometry   *GeoGeometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FetchBoundaries retrieves the features of fc and keys them by the
// nameProperty attribute. Features without a polygon outline or a name are
// skipped, and a name seen twice keeps its first feature.
func (c *Client) FetchBoundaries(ctx context.Context, fc expr.FeatureCollection, nameProperty string) ([]Boundary, error) {
	features, err := c.ComputeFeatures(ctx, fc)
	if err != nil {
		return nil, err
	}

	boundaries := make([]Boundary, 0, len(features))
	seen := make(map[string]bool, len(features))
	for _, feature := range features {
		if !isPolygonal(feature.Geometry) {
			continue
		}

		name := propertyString(feature.Properties, nameProperty)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		boundaries = append(boundaries, Boundary{
			Name:       name,
			Geometry:   feature.Geometry,
			Properties: feature.Properties,
		})
	}

	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].Name < boundaries[j].Name
	})

	c.logger.Debug("fetched boundaries", "features", len(features), "kept", len(boundaries))
	return boundaries, nil
}

// isPolygonal reports whether g can be drawn as an outline on the map.
func isPolygonal(g *GeoGeometry) bool {
	if g == nil {
		return false
	}
	switch g.Type {
	case "Polygon", "MultiPolygon":
		return len(g.Coordinates) > 0
	case "GeometryCollection":
		return len(g.Geometries) > 0
	default:
		return false
	}
}

func propertyString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
