package districts

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/shopspring/decimal"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

// Property keys, matched case-insensitively. The dataset has shipped with
// both the truncated shapefile names and their upper-case forms.
var (
	jurisdictionKeys = []string{"juris_name"}
	countyKeys       = []string{"county_nam", "county_name", "county"}
	cityKeys         = []string{"city_name", "city_name_"}
	rateKeys         = []string{"rate"}
	startKeys        = []string{"start_date"}
)

// startDateLayouts are the textual forms START_DATE has been exported in.
var startDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"1/2/2006",
}

// readFeatures decodes a GeoJSON FeatureCollection and returns its features
// in WGS84 lon/lat. A collection declared or detected as Web Mercator
// (EPSG:3857) is reprojected.
func readFeatures(path string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read districts: %w", err)
	}
	return decodeFeatures(data)
}

func decodeFeatures(data []byte) ([]*geojson.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode districts: %w", err)
	}

	if isWebMercator(fc) {
		for _, f := range fc.Features {
			if f.Geometry != nil {
				f.Geometry = project.Geometry(f.Geometry, project.Mercator.ToWGS84)
			}
		}
	}
	return fc.Features, nil
}

// isWebMercator reports whether the collection uses projected meters: either
// its legacy "crs" member names EPSG:3857 (or the older 900913 code), or a
// coordinate falls outside the lon/lat range.
func isWebMercator(fc *geojson.FeatureCollection) bool {
	if crs, ok := fc.ExtraMembers["crs"]; ok {
		name := fmt.Sprint(crs)
		if strings.Contains(name, "3857") || strings.Contains(name, "900913") {
			return true
		}
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if math.Abs(b.Min.X()) > 180 || math.Abs(b.Max.X()) > 180 ||
			math.Abs(b.Min.Y()) > 90 || math.Abs(b.Max.Y()) > 90 {
			return true
		}
	}
	return false
}

// polygonsOf flattens a feature geometry into its polygons. Non-areal
// geometries yield nothing.
func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Collection:
		var out []orb.Polygon
		for _, child := range v {
			out = append(out, polygonsOf(child)...)
		}
		return out
	default:
		return nil
	}
}

func attributesOf(props geojson.Properties) domain.DistrictAttributes {
	lower := make(map[string]any, len(props))
	for k, v := range props {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}

	attrs := domain.DistrictAttributes{
		JurisdictionName: stringProp(lower, jurisdictionKeys),
		County:           stringProp(lower, countyKeys),
		Rate:             rateProp(lower, rateKeys),
	}
	if city := stringProp(lower, cityKeys); city != "" {
		attrs.City = &city
	}
	if d, ok := dateProp(lower, startKeys); ok {
		attrs.EffectiveDate = &d
	}
	return attrs
}

// stringProp returns the first non-blank value among keys.
func stringProp(props map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func rateProp(props map[string]any, keys []string) decimal.NullDecimal {
	for _, k := range keys {
		switch v := props[k].(type) {
		case float64:
			return decimal.NewNullDecimal(decimal.NewFromFloat(v))
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				return decimal.NewNullDecimal(d)
			}
		}
	}
	return decimal.NullDecimal{}
}

// dateProp reads a calendar date. Esri exports write dates as epoch
// milliseconds; other tools write them as text.
func dateProp(props map[string]any, keys []string) (time.Time, bool) {
	for _, k := range keys {
		switch v := props[k].(type) {
		case float64:
			return domain.DateOf(time.UnixMilli(int64(v)).UTC()), true
		case string:
			s := strings.TrimSpace(v)
			for _, layout := range startDateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return domain.DateOf(t), true
				}
			}
		}
	}
	return time.Time{}, false
}
