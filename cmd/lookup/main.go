// Command lookup answers a single jurisdiction or coupon question from the
// command line, using the same district data and geocoder as the service.
// Without --claim or --coupon it lists every district at the location, or
// those within about 55 m when none contains it.
//
// Usage:
//
//	go run ./cmd/lookup --districts data/CDTFA_TaxDistricts.geojson \
//	  --address "915 I St, Sacramento, CA 95814" --claim "City of Sacramento"
//
//	go run ./cmd/lookup --districts data/CDTFA_TaxDistricts.geojson \
//	  --lat 38.5816 --lon -121.4944
//
//	go run ./cmd/lookup --districts data/CDTFA_TaxDistricts.geojson \
//	  --coupons data/coupons.csv --address "915 I St, Sacramento" --coupon SAVE10
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/agromin/jurisdiction-validator/internal/adapter/arcgis"
	"github.com/agromin/jurisdiction-validator/internal/adapter/coupons"
	"github.com/agromin/jurisdiction-validator/internal/adapter/districts"
	"github.com/agromin/jurisdiction-validator/internal/config"
	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
	"github.com/agromin/jurisdiction-validator/internal/service"
	"github.com/agromin/jurisdiction-validator/internal/store"
)

type options struct {
	districtsPath string
	couponsPath   string
	address       string
	claim         string
	coupon        string
	lat, lon      float64
	geocoderURL   string
	timeout       time.Duration
	verbose       bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
	flagSet.StringVar(&opts.districtsPath, "districts", "data/CDTFA_TaxDistricts.geojson", "path to the tax district GeoJSON")
	flagSet.StringVar(&opts.couponsPath, "coupons", "", "coupon table (CSV or XLSX) for --coupon")
	flagSet.StringVarP(&opts.address, "address", "a", "", "address to geocode")
	flagSet.StringVarP(&opts.claim, "claim", "c", "", "claimed jurisdiction to check")
	flagSet.StringVar(&opts.coupon, "coupon", "", "coupon code to check for --address")
	flagSet.Float64Var(&opts.lat, "lat", 0, "latitude (skips geocoding)")
	flagSet.Float64Var(&opts.lon, "lon", 0, "longitude (skips geocoding)")
	flagSet.StringVar(&opts.geocoderURL, "geocoder-url", config.DefaultGeocoderURL, "ArcGIS findAddressCandidates endpoint")
	flagSet.DurationVar(&opts.timeout, "timeout", 15*time.Second, "geocoder request timeout")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetricsForTesting()

	index, err := districts.Load(opts.districtsPath, metrics, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout+5*time.Second)
	defer cancel()

	usePoint := flagSet.Changed("lat") || flagSet.Changed("lon")
	switch {
	case usePoint:
		return printDistricts(ctx, out, index, lookupResult{Lat: opts.lat, Lon: opts.lon})

	case opts.address == "":
		return errors.New("either --address or --lat/--lon is required")
	}

	geocoder := arcgis.NewClient(opts.geocoderURL, os.Getenv("GEOCODER_TOKEN"), opts.timeout, metrics, logger)
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.UTC
	}
	couponStore := store.New(store.Config{Sources: localCoupons(opts.couponsPath)}, metrics, logger)
	v := service.New(geocoder, index, couponStore, logger, metrics, service.WithLocation(loc))

	switch {
	case opts.coupon != "":
		decision, _ := v.ValidateCoupon(ctx, opts.address, opts.coupon)
		return printJSON(out, decision)
	case opts.claim != "":
		decision, err := v.ValidateJurisdiction(ctx, opts.address, opts.claim)
		if err != nil {
			return err
		}
		return printJSON(out, decision)
	default:
		result, err := geocoder.Geocode(ctx, opts.address)
		if err != nil {
			return err
		}
		if !result.Found() {
			return domain.NotFound("Address could not be geocoded")
		}
		return printDistricts(ctx, out, index, lookupResult{
			Address:        opts.address,
			MatchedAddress: result.MatchedAddress,
			Lat:            result.Lat,
			Lon:            result.Lon,
		})
	}
}

// lookupResult lists every district at a point. Nearby is set when no
// district contains the point and the list holds those just around it.
type lookupResult struct {
	Address        string                      `json:"address,omitempty"`
	MatchedAddress string                      `json:"matched_address,omitempty"`
	Lat            float64                     `json:"lat"`
	Lon            float64                     `json:"lon"`
	Nearby         bool                        `json:"nearby"`
	Districts      []domain.DistrictAttributes `json:"districts"`
}

func printDistricts(ctx context.Context, out io.Writer, index *districts.Index, result lookupResult) error {
	matches, nearby, err := index.ResolveAll(ctx, result.Lat, result.Lon)
	if err != nil {
		return err
	}
	result.Districts, result.Nearby = matches, nearby
	return printJSON(out, result)
}

func localCoupons(path string) []store.Source {
	if path == "" {
		return nil
	}
	format := coupons.FormatCSV
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		format = coupons.FormatSpreadsheet
	}
	return []store.Source{coupons.NewFileSource(path, format)}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
