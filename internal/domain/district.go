package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DistrictAttributes describes the CDTFA tax district that contains a point.
type DistrictAttributes struct {
	JurisdictionName string              `json:"jurisdiction"`
	County           string              `json:"county"`
	City             *string             `json:"city,omitempty"`
	Rate             decimal.NullDecimal `json:"rate"`
	// EffectiveDate is when the district's current rate took effect.
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// CityName returns the district's city, or "" for unincorporated areas.
func (d DistrictAttributes) CityName() string {
	if d.City == nil {
		return ""
	}
	return *d.City
}

// DistrictResolver maps a WGS84 coordinate to the district containing it.
// A point outside every district yields a KindNotFound error.
type DistrictResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (DistrictAttributes, error)
}
