package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/model"
)

// ring is one closed polygon ring in lon/lat order.
type ring []shp.Point

// Boundary is a polygon region loaded from a shapefile, used to clip the
// exported map to a country outline.
type Boundary struct {
	rings []ring
}

// LoadBoundary reads all polygon shapes from a shapefile and collects
// their rings. Non-polygon shapes are ignored.
func LoadBoundary(path string) (*Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open boundary shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var rings []ring
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		for part := 0; part < int(poly.NumParts); part++ {
			start := poly.Parts[part]
			end := int32(len(poly.Points))
			if part+1 < int(poly.NumParts) {
				end = poly.Parts[part+1]
			}
			if end-start < 3 {
				continue
			}
			rings = append(rings, ring(poly.Points[start:end]))
		}
	}

	if len(rings) == 0 {
		return nil, eris.Errorf("export: no polygon rings in %s", path)
	}

	zap.L().Debug("boundary loaded",
		zap.String("path", path),
		zap.Int("rings", len(rings)),
	)
	return &Boundary{rings: rings}, nil
}

// Contains reports whether the lon/lat point lies inside the boundary,
// using even-odd ray casting so holes subtract from outer rings.
func (b *Boundary) Contains(lon, lat float64) bool {
	inside := false
	for _, r := range b.rings {
		if pointInRing(lon, lat, r) {
			inside = !inside
		}
	}
	return inside
}

// Filter returns the stations whose coordinates fall inside the boundary.
// Stations with unparseable coordinates are dropped.
func (b *Boundary) Filter(stations []model.Station) []model.Station {
	kept := make([]model.Station, 0, len(stations))
	for i := range stations {
		lon, lat, err := stations[i].Point()
		if err != nil {
			continue
		}
		if b.Contains(lon, lat) {
			kept = append(kept, stations[i])
		}
	}
	zap.L().Info("boundary filter applied",
		zap.Int("input", len(stations)),
		zap.Int("kept", len(kept)),
	)
	return kept
}

func pointInRing(lon, lat float64, r ring) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := r[i].X, r[i].Y
		xj, yj := r[j].X, r[j].Y
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
