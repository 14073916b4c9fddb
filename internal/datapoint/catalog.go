// Package datapoint defines the named extraction targets that are compared
// between the staging and production APIs.
package datapoint

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/extraction-ops/internal/model"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Scope tags data points that can be mistaken for one another.
type Scope string

const (
	Scope1     Scope = "scope1"
	Scope2     Scope = "scope2"
	Scope3     Scope = "scope3"
	ScopeOther Scope = "other"
)

// Scopes lists every scope tag in display order.
var Scopes = []Scope{Scope1, Scope2, Scope3, ScopeOther}

// DataPoint is one named, independently comparable numeric target.
type DataPoint struct {
	Key     string `yaml:"key" json:"key"`
	Label   string `yaml:"label" json:"label"`
	Scope   Scope  `yaml:"scope" json:"scope"`
	Path    string `yaml:"path" json:"path"`
	Generic bool   `yaml:"generic" json:"generic"`
}

type getter func(e *model.Emissions) *float64

// Catalog is an ordered, validated set of data points.
type Catalog struct {
	points  []DataPoint
	index   map[string]int
	getters map[string]getter
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the built-in catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalogYAML)
		if err != nil {
			panic(eris.Wrap(err, "datapoint: embedded catalog"))
		}
		defaultCat = c
	})
	return defaultCat
}

// Load reads a catalog from a YAML file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "datapoint: read catalog %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		DataPoints []DataPoint `yaml:"datapoints"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "datapoint: parse catalog")
	}
	return New(doc.DataPoints)
}

// New validates points and builds a catalog preserving their order.
func New(points []DataPoint) (*Catalog, error) {
	if len(points) == 0 {
		return nil, eris.New("datapoint: catalog is empty")
	}

	c := &Catalog{
		points:  make([]DataPoint, 0, len(points)),
		index:   make(map[string]int, len(points)),
		getters: make(map[string]getter, len(points)),
	}
	for _, dp := range points {
		if dp.Key == "" {
			return nil, eris.New("datapoint: key is required")
		}
		if _, dup := c.index[dp.Key]; dup {
			return nil, eris.Errorf("datapoint: duplicate key %q", dp.Key)
		}
		if !validScope(dp.Scope) {
			return nil, eris.Errorf("datapoint: %s: unknown scope %q", dp.Key, dp.Scope)
		}
		g, err := compilePath(dp.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "datapoint: %s", dp.Key)
		}
		if dp.Label == "" {
			dp.Label = dp.Key
		}
		c.index[dp.Key] = len(c.points)
		c.getters[dp.Key] = g
		c.points = append(c.points, dp)
	}
	return c, nil
}

// All returns the data points in catalog order.
func (c *Catalog) All() []DataPoint {
	out := make([]DataPoint, len(c.points))
	copy(out, c.points)
	return out
}

// Len returns the number of data points.
func (c *Catalog) Len() int { return len(c.points) }

// Get looks up a data point by key.
func (c *Catalog) Get(key string) (DataPoint, bool) {
	i, ok := c.index[key]
	if !ok {
		return DataPoint{}, false
	}
	return c.points[i], true
}

// SameScope returns the data points sharing dp's scope, excluding dp itself.
func (c *Catalog) SameScope(dp DataPoint) []DataPoint {
	var out []DataPoint
	for _, other := range c.points {
		if other.Scope == dp.Scope && other.Key != dp.Key {
			out = append(out, other)
		}
	}
	return out
}

// InScope returns the data points tagged with scope.
func (c *Catalog) InScope(scope Scope) []DataPoint {
	var out []DataPoint
	for _, dp := range c.points {
		if dp.Scope == scope {
			out = append(out, dp)
		}
	}
	return out
}

// Value resolves dp against a reporting period. A nil period, missing
// emissions, or a missing leaf all yield nil.
func (c *Catalog) Value(p *model.ReportingPeriod, dp DataPoint) *float64 {
	if p == nil || p.Emissions == nil {
		return nil
	}
	g, ok := c.getters[dp.Key]
	if !ok {
		return nil
	}
	return g(p.Emissions)
}

func validScope(s Scope) bool {
	for _, known := range Scopes {
		if s == known {
			return true
		}
	}
	return false
}

func compilePath(path string) (getter, error) {
	parts := strings.Split(path, ".")
	switch {
	case path == "scope1.total":
		return func(e *model.Emissions) *float64 {
			if e.Scope1 == nil {
				return nil
			}
			return e.Scope1.Total.Ptr()
		}, nil
	case len(parts) == 2 && parts[0] == "scope2":
		var pick func(s *model.Scope2) model.Number
		switch parts[1] {
		case "mb":
			pick = func(s *model.Scope2) model.Number { return s.MB }
		case "lb":
			pick = func(s *model.Scope2) model.Number { return s.LB }
		case "unknown":
			pick = func(s *model.Scope2) model.Number { return s.Unknown }
		default:
			return nil, eris.Errorf("unknown scope2 field %q", parts[1])
		}
		return func(e *model.Emissions) *float64 {
			if e.Scope2 == nil {
				return nil
			}
			return pick(e.Scope2).Ptr()
		}, nil
	case path == "scope3.statedTotalEmissions":
		return func(e *model.Emissions) *float64 {
			if e.Scope3 == nil || e.Scope3.StatedTotalEmissions == nil {
				return nil
			}
			return e.Scope3.StatedTotalEmissions.Total.Ptr()
		}, nil
	case path == "scope3.calculatedTotalEmissions":
		return func(e *model.Emissions) *float64 {
			if e.Scope3 == nil {
				return nil
			}
			return e.Scope3.CalculatedTotalEmissions.Ptr()
		}, nil
	case len(parts) == 3 && parts[0] == "scope3" && parts[1] == "categories":
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 || n > 16 {
			return nil, eris.Errorf("invalid scope3 category %q", parts[2])
		}
		return func(e *model.Emissions) *float64 {
			return e.Scope3.CategoryTotal(n)
		}, nil
	}
	return nil, eris.Errorf("unresolvable path %q", path)
}
