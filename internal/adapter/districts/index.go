// Package districts resolves coordinates to CDTFA sales & use tax districts.
//
// Polygons are loaded once from GeoJSON, indexed by bounding box in an
// R-tree and tested for containment on the sphere with S2.
package districts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// pointTolerance is the half-width of the query box built around a point.
const pointTolerance = 1e-9

// nearbyRadius is how far ResolveAll looks, in degrees (about 55 m), when no
// district contains the point itself. Geocoded points on a boundary street
// can land in the gap between adjacent polygons.
const nearbyRadius = 0.0005

// nearbyVertices is the vertex count of the polygon approximating the
// nearby search circle.
const nearbyVertices = 32

// district is one feature of the dataset. order is its position in the
// file; when polygons overlap the earliest one wins.
type district struct {
	attrs    domain.DistrictAttributes
	polygons []*s2.Polygon
	bounds   rtreego.Rect
	order    int
}

func (d *district) Bounds() rtreego.Rect { return d.bounds }

func (d *district) contains(p s2.Point) bool {
	for _, poly := range d.polygons {
		if poly.ContainsPoint(p) {
			return true
		}
	}
	return false
}

func (d *district) intersects(other *s2.Polygon) bool {
	for _, poly := range d.polygons {
		if poly.Intersects(other) {
			return true
		}
	}
	return false
}

// Index implements domain.DistrictResolver over an in-memory dataset.
type Index struct {
	tree    *rtreego.Rtree
	count   int
	metrics *observability.Metrics
}

// Load reads the GeoJSON dataset at path and builds the index. It fails
// when the file is missing, malformed, or holds no usable polygons.
func Load(path string, metrics *observability.Metrics, logger *slog.Logger) (*Index, error) {
	features, err := readFeatures(path)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(features, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("tax districts loaded", "path", path, "districts", idx.count)
	return idx, nil
}

// Parse builds an index from GeoJSON bytes.
func Parse(data []byte, metrics *observability.Metrics, logger *slog.Logger) (*Index, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, err
	}
	return newIndex(features, metrics, logger)
}

func newIndex(features []*geojson.Feature, metrics *observability.Metrics, logger *slog.Logger) (*Index, error) {
	tree := rtreego.NewTree(2, 25, 50)
	count := 0

	for i, f := range features {
		if f.Geometry == nil {
			continue
		}
		d, err := newDistrict(f, i)
		if err != nil {
			logger.Warn("skipping district feature", "index", i, "error", err)
			continue
		}
		tree.Insert(d)
		count++
	}

	if count == 0 {
		return nil, fmt.Errorf("no usable district polygons")
	}
	metrics.DistrictsLoaded.Set(float64(count))
	return &Index{tree: tree, count: count, metrics: metrics}, nil
}

func newDistrict(f *geojson.Feature, order int) (*district, error) {
	polys := polygonsOf(f.Geometry)
	var s2polys []*s2.Polygon
	for _, p := range polys {
		if sp := toS2Polygon(p); sp != nil {
			s2polys = append(s2polys, sp)
		}
	}
	if len(s2polys) == 0 {
		return nil, fmt.Errorf("geometry %s has no valid rings", f.Geometry.GeoJSONType())
	}

	b := f.Geometry.Bound()
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min.X(), b.Min.Y()},
		rtreego.Point{b.Max.X(), b.Max.Y()},
	)
	if err != nil {
		return nil, fmt.Errorf("bounds: %w", err)
	}

	return &district{
		attrs:    attributesOf(f.Properties),
		polygons: s2polys,
		bounds:   rect,
		order:    order,
	}, nil
}

// toS2Polygon converts the outer ring and holes of p. Rings with fewer than
// three distinct vertices are dropped; a polygon whose outer ring is dropped
// yields nil.
func toS2Polygon(p orb.Polygon) *s2.Polygon {
	var loops []*s2.Loop
	for i, ring := range p {
		loop := toS2Loop(ring)
		if loop == nil {
			if i == 0 {
				return nil
			}
			continue
		}
		loops = append(loops, loop)
	}
	if len(loops) == 0 {
		return nil
	}
	return s2.PolygonFromLoops(loops)
}

func toS2Loop(ring orb.Ring) *s2.Loop {
	pts := make([]s2.Point, 0, len(ring))
	for i, pt := range ring {
		// GeoJSON rings repeat the first vertex at the end.
		if i == len(ring)-1 && len(ring) > 1 && pt.Equal(ring[0]) {
			break
		}
		if i > 0 && pt.Equal(ring[i-1]) {
			continue
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(pt.Lat(), pt.Lon())))
	}
	if len(pts) < 3 {
		return nil
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop
}

// Resolve returns the attributes of the first district, in dataset order,
// whose polygon contains the point.
func (ix *Index) Resolve(_ context.Context, lat, lon float64) (domain.DistrictAttributes, error) {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	for _, d := range ix.candidates(lat, lon, pointTolerance) {
		if d.contains(p) {
			ix.metrics.DistrictLookups.WithLabelValues("found").Inc()
			return d.attrs, nil
		}
	}

	ix.metrics.DistrictLookups.WithLabelValues("not_found").Inc()
	return domain.DistrictAttributes{}, domain.NotFound(fmt.Sprintf("no district contains %.6f,%.6f", lat, lon))
}

// ResolveAll returns every district containing the point, in dataset order.
// When none does, it falls back to the districts within nearbyRadius of the
// point and reports nearby as true. No match at all is a KindNotFound error.
func (ix *Index) ResolveAll(_ context.Context, lat, lon float64) (matches []domain.DistrictAttributes, nearby bool, err error) {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))

	for _, d := range ix.candidates(lat, lon, pointTolerance) {
		if d.contains(p) {
			matches = append(matches, d.attrs)
		}
	}
	if len(matches) > 0 {
		ix.metrics.DistrictLookups.WithLabelValues("found").Inc()
		return matches, false, nil
	}

	circle := s2.PolygonFromLoops([]*s2.Loop{
		s2.RegularLoop(p, s1.Angle(nearbyRadius)*s1.Degree, nearbyVertices),
	})
	// A degree of longitude shrinks away from the equator, so the box is
	// widened past the circle's arc radius.
	for _, d := range ix.candidates(lat, lon, 2*nearbyRadius) {
		if d.intersects(circle) {
			matches = append(matches, d.attrs)
		}
	}
	if len(matches) > 0 {
		ix.metrics.DistrictLookups.WithLabelValues("nearby").Inc()
		return matches, true, nil
	}

	ix.metrics.DistrictLookups.WithLabelValues("not_found").Inc()
	return nil, false, domain.NotFound(fmt.Sprintf("no district within %g degrees of %.6f,%.6f", nearbyRadius, lat, lon))
}

// candidates returns the districts whose bounding box meets the square of
// half-width tol around the point, in dataset order.
func (ix *Index) candidates(lat, lon, tol float64) []*district {
	found := ix.tree.SearchIntersect(rtreego.Point{lon, lat}.ToRect(tol))
	out := make([]*district, 0, len(found))
	for _, c := range found {
		out = append(out, c.(*district))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Len reports how many districts are indexed.
func (ix *Index) Len() int {
	return ix.count
}
