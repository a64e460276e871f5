package domain

import "context"

// GeocodingResult is the best candidate a geocoding provider returned for an address.
type GeocodingResult struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	MatchedAddress string  `json:"matched_address"`
	Score          float64 `json:"score"` // provider match score, 0-100 for ArcGIS
}

// Found reports whether the provider returned a candidate.
func (r GeocodingResult) Found() bool {
	return r.MatchedAddress != ""
}

// Geocoder maps a free-text address to a coordinate. An address with no
// candidates yields a zero result and a nil error.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodingResult, error)
}
