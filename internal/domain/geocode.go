package domain

import (
	"context"
	"log/slog"
)

const (
	msgNotGeocoded     = "Address could not be geocoded"
	msgOutsideDistrict = "Address not found in California tax district data"
)

// Location is a geocoded address together with the district containing it.
type Location struct {
	Geocoding GeocodingResult
	District  DistrictAttributes
}

// LocateAddress geocodes address and resolves the district for the
// resulting point. A missing candidate or district is KindNotFound; a
// geocoder failure is KindUpstream. Failures are logged at warn level.
func LocateAddress(ctx context.Context, address string, geocoder Geocoder, resolver DistrictResolver, logger *slog.Logger) (Location, error) {
	result, err := geocoder.Geocode(ctx, address)
	if err != nil {
		logger.Warn("geocoding failed", "address", address, "error", err)
		return Location{}, Upstream("geocoding failed", err)
	}
	if !result.Found() {
		logger.Info("address has no geocoding candidates", "address", address)
		return Location{}, NotFound(msgNotGeocoded)
	}

	district, err := resolver.Resolve(ctx, result.Lat, result.Lon)
	if err != nil {
		if KindOf(err) == KindNotFound {
			logger.Info("point outside known districts",
				"address", address,
				"lat", result.Lat,
				"lon", result.Lon,
			)
			return Location{Geocoding: result}, NotFound(msgOutsideDistrict)
		}
		logger.Warn("district lookup failed", "address", address, "error", err)
		return Location{Geocoding: result}, err
	}

	return Location{Geocoding: result, District: district}, nil
}
