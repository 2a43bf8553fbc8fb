package mapview

import (
	"maps"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

// FeatureCollection is the GeoJSON document given to L.geoJSON.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string               `json:"type"`
	Geometry   *fetcher.GeoGeometry `json:"geometry"`
	Properties map[string]any       `json:"properties"`
}

// CountyGeoJSON turns boundaries into GeoJSON with the popup fields
// name, loss_ha, baseline_ha, loss_pct and selected. Counties missing from
// rows get zeros.
func CountyGeoJSON(boundaries []fetcher.Boundary, rows []stats.Row, selected string) FeatureCollection {
	byCounty := make(map[string]stats.Row, len(rows))
	for _, r := range rows {
		byCounty[r.County] = r
	}

	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(boundaries))}
	for _, b := range boundaries {
		props := make(map[string]any, len(b.Properties)+5)
		maps.Copy(props, b.Properties)

		row := byCounty[b.Name]
		props["name"] = b.Name
		props["loss_ha"] = row.CumulativeHa
		props["baseline_ha"] = row.BaselineHa
		props["loss_pct"] = row.Percent
		props["selected"] = b.Name == selected

		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   b.Geometry,
			Properties: props,
		})
	}
	return fc
}
