// Package domain holds the jurisdiction and coupon rules of the validator.
//
// # Tax Districts
//
// District polygons come from the California Department of Tax and Fee
// Administration (CDTFA) sales & use tax district dataset. Each polygon
// carries:
//
//	JURIS_NAME   jurisdiction label, e.g. "SACRAMENTO"
//	County_nam   county name, e.g. "SACRAMENTO"
//	City_name    city name; empty for unincorporated areas
//	RATE         combined sales & use tax rate, e.g. 0.0875
//
// Resolving a point is delegated to a [DistrictResolver]; geocoding an
// address is delegated to a [Geocoder].
//
// # Jurisdiction Claims
//
// A claim is free text such as "City of Sacramento", "Sacramento, City of"
// or "Sacramento County". Claims containing "city" anywhere are compared
// against the district's city; all others against its county. Both sides
// are reduced by [NormalizeJurisdiction] and compared for exact equality:
//
//	"City of Sacramento"   -> "sacramento"
//	"Sacramento, City of"  -> "sacramento"
//	"SACRAMENTO COUNTY"    -> "sacramento"
//
// There is no fuzzy matching. The "city" test is a substring test, so
// a county whose name contained "city" would be treated as a city claim.
//
// # Coupon Dataset
//
// Coupons are rows with the columns Coupon, Program Status, Jurisdiction,
// Start Date and End Date. Codes are upper-cased; rows whose code is blank
// or the dataframe null marker "NAN" are skipped. Dates are M/D/YY or
// M/D/YYYY strings, or native spreadsheet dates; anything else means
// "no bound". A coupon is accepted when its status is "active", today is
// inside its window, and its own Jurisdiction claim matches the district of
// the submitted address.
package domain
