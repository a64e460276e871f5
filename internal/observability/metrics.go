package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jurisdiction"

// Metrics holds the Prometheus counters, histograms, and gauges for the validator.
type Metrics struct {
	// Validation requests.
	ValidationRequests *prometheus.CounterVec   // labels: endpoint={jurisdiction,coupon}, status={accepted,denied,error}
	ValidationDuration *prometheus.HistogramVec // labels: endpoint

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: layer={memory,redis}, result={hit,miss,error}
	GeocodeAPIDuration prometheus.Histogram

	// District index.
	DistrictLookups *prometheus.CounterVec // labels: outcome={found,nearby,not_found}
	DistrictsLoaded prometheus.Gauge

	// Coupon dataset.
	CouponLoads   *prometheus.CounterVec // labels: source, outcome={success,error}
	CouponRecords prometheus.Gauge
	CouponUploads *prometheus.CounterVec // labels: outcome={success,rejected,invalid,error}

	// Decision events.
	DecisionsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all validator metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ValidationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_requests_total",
			Help:      "Validation requests by endpoint and decision status.",
		}, []string{"endpoint", "status"}),
		ValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "End-to-end duration of a validation request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"endpoint"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "ArcGIS geocoding request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		DistrictLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "district_lookups_total",
			Help:      "Point-in-district lookups by outcome.",
		}, []string{"outcome"}),
		DistrictsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "districts_loaded",
			Help:      "Number of tax district polygons in the index.",
		}),
		CouponLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_loads_total",
			Help:      "Coupon dataset load attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		CouponRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coupon_records",
			Help:      "Number of coupon records in the current snapshot.",
		}),
		CouponUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_uploads_total",
			Help:      "Coupon dataset uploads by outcome.",
		}, []string{"outcome"}),
		DecisionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_published_total",
			Help:      "Decision events handed to Kafka by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.ValidationRequests,
		m.ValidationDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.DistrictLookups,
		m.DistrictsLoaded,
		m.CouponLoads,
		m.CouponRecords,
		m.CouponUploads,
		m.DecisionsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ValidationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "validation_requests_total"}, []string{"endpoint", "status"}),
		ValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "validation_duration_seconds"}, []string{"endpoint"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_cache_total"}, []string{"layer", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "geocode_api_duration_seconds"}),
		DistrictLookups:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "district_lookups_total"}, []string{"outcome"}),
		DistrictsLoaded:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "districts_loaded"}),
		CouponLoads:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "coupon_loads_total"}, []string{"source", "outcome"}),
		CouponRecords:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "coupon_records"}),
		CouponUploads:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "coupon_uploads_total"}, []string{"outcome"}),
		DecisionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "decisions_published_total"}, []string{"outcome"}),
	}
}
