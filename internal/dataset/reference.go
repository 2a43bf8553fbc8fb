// Package dataset describes which Earth Engine assets the dashboard reads
// and how forest, loss and boundaries are derived from them.
package dataset

import (
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

const squareMetersPerHectare = 10000

// Reference builds expressions over the Hansen Global Forest Change image and
// the GAUL boundary collections. It holds no data, only asset names.
type Reference struct {
	cfg config.DatasetConfig
}

func NewReference(cfg config.DatasetConfig) *Reference {
	return &Reference{cfg: cfg}
}

func (r *Reference) FirstYear() int { return r.cfg.FirstYear }
func (r *Reference) LastYear() int  { return r.cfg.LastYear }
func (r *Reference) BaseYear() int  { return r.cfg.BaseYear }

// Country is the name of the national boundary, also used as the
// pseudo-county for national statistics.
func (r *Reference) Country() string { return r.cfg.Country }

func (r *Reference) CountyProperty() string { return r.cfg.CountyProperty }

// LossBand is the dictionary key of loss reductions.
func (r *Reference) LossBand() string { return r.cfg.LossBand }

// TreeCoverBand is the dictionary key of baseline reductions.
func (r *Reference) TreeCoverBand() string { return r.cfg.TreeCoverBand }

// Years lists every year in the dataset window in ascending order.
func (r *Reference) Years() []int {
	years := make([]int, 0, r.cfg.LastYear-r.cfg.FirstYear+1)
	for y := r.cfg.FirstYear; y <= r.cfg.LastYear; y++ {
		years = append(years, y)
	}
	return years
}

// InWindow reports whether year has loss data.
func (r *Reference) InWindow(year int) bool {
	return year >= r.cfg.FirstYear && year <= r.cfg.LastYear
}

func (r *Reference) hansen() expr.Image {
	return expr.LoadImage(r.cfg.HansenAsset)
}

func (r *Reference) lossYear() expr.Image {
	return r.hansen().Select(r.cfg.LossBand)
}

// Forest2000 is 1 where tree cover in 2000 met the threshold.
func (r *Reference) Forest2000() expr.Image {
	return r.hansen().Select(r.cfg.TreeCoverBand).Gte(r.cfg.TreeCoverThreshold)
}

// LossForYear masks forest pixels lost in exactly year.
func (r *Reference) LossForYear(year int) expr.Image {
	return r.lossYear().Eq(float64(year - r.cfg.BaseYear)).And(r.Forest2000())
}

// LossThrough masks forest pixels lost in any year up to and including year.
func (r *Reference) LossThrough(year int) expr.Image {
	loss := r.lossYear()
	return loss.Lte(float64(year - r.cfg.BaseYear)).And(loss.Neq(0)).And(r.Forest2000())
}

// LossBetween masks forest pixels lost in the contiguous range [from, to].
func (r *Reference) LossBetween(from, to int) expr.Image {
	if from == to {
		return r.LossForYear(from)
	}
	loss := r.lossYear()
	return loss.Gte(float64(from - r.cfg.BaseYear)).
		And(loss.Lte(float64(to - r.cfg.BaseYear))).
		And(r.Forest2000())
}

// Hectares converts a 0/1 mask into per-pixel area in hectares.
func (r *Reference) Hectares(mask expr.Image) expr.Image {
	return mask.Multiply(expr.PixelArea()).DivideBy(squareMetersPerHectare)
}

// SumHectares reduces mask over region and extracts the band named key.
// The result is null when no pixel is inside region.
func (r *Reference) SumHectares(mask expr.Image, key string, region expr.Geometry) expr.Node {
	return r.Hectares(mask).
		ReduceRegion(expr.SumReducer(), region, r.cfg.Scale, r.cfg.MaxPixels).
		Get(key)
}

// Nation is the level-0 boundary of the configured country.
func (r *Reference) Nation() expr.FeatureCollection {
	return expr.LoadTable(r.cfg.CountryAsset).Filter(expr.Equals(r.cfg.CountryProperty, r.cfg.Country))
}

// Counties are the level-1 boundaries inside the configured country.
func (r *Reference) Counties() expr.FeatureCollection {
	return expr.LoadTable(r.cfg.CountyAsset).Filter(expr.Equals(r.cfg.CountryProperty, r.cfg.Country))
}

// County selects one county by name. The name is not checked here.
func (r *Reference) County(name string) expr.FeatureCollection {
	return r.Counties().Filter(expr.Equals(r.cfg.CountyProperty, name))
}

// Boundary resolves a catalog name to its feature collection; the country
// name selects the national boundary.
func (r *Reference) Boundary(name string) expr.FeatureCollection {
	if name == r.cfg.Country {
		return r.Nation()
	}
	return r.County(name)
}
