package dataset

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

// Computer evaluates an expression and decodes the result.
type Computer interface {
	ComputeInto(ctx context.Context, node expr.Node, out any) error
}

// Catalog is the set of selectable boundary names: the counties of the
// country plus the country itself for national figures.
type Catalog struct {
	national string
	counties []string
	known    map[string]struct{}
}

// NewCatalog builds a catalog from county names. Blank and duplicate names
// are dropped; the result is sorted.
func NewCatalog(national string, counties []string) *Catalog {
	c := &Catalog{
		national: national,
		known:    map[string]struct{}{national: {}},
	}
	for _, name := range counties {
		name = strings.TrimSpace(name)
		if name == "" || name == national {
			continue
		}
		if _, dup := c.known[name]; dup {
			continue
		}
		c.known[name] = struct{}{}
		c.counties = append(c.counties, name)
	}
	slices.Sort(c.counties)
	return c
}

// LoadCatalog lists the county names of ref's country from Earth Engine.
func LoadCatalog(ctx context.Context, c Computer, ref *Reference) (*Catalog, error) {
	var names []string
	if err := c.ComputeInto(ctx, ref.Counties().AggregateArray(ref.CountyProperty()), &names); err != nil {
		return nil, fmt.Errorf("loading county names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no counties found for %s", ref.Country())
	}
	return NewCatalog(ref.Country(), names), nil
}

// National is the name that selects the whole country.
func (c *Catalog) National() string { return c.national }

// Contains reports whether name is the country or one of its counties.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.known[name]
	return ok
}

// Counties returns the sorted county names, without the country.
func (c *Catalog) Counties() []string {
	return slices.Clone(c.counties)
}

// Options lists names as shown in the selector: the country first.
func (c *Catalog) Options() []string {
	return append([]string{c.national}, c.counties...)
}
