package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// Validator answers the validation endpoints and reports readiness.
type Validator interface {
	sharedobs.ReadinessChecker
	ValidateJurisdiction(ctx context.Context, address, claim string) (domain.JurisdictionDecision, error)
	ValidateCoupon(ctx context.Context, address, code string) (domain.CouponDecision, error)
}

// CouponUploader replaces the coupon dataset and reports how many records
// are served afterwards.
type CouponUploader interface {
	Replace(ctx context.Context, content []byte) (int, error)
}

// Options configures the upload endpoint.
type Options struct {
	// UploadAPIKey guards POST /api/upload-coupons. Empty rejects every upload.
	UploadAPIKey   string
	UploadMaxBytes int64
}

// Server exposes the validation API, the lookup form and the operational
// endpoints.
type Server struct {
	httpServer *http.Server
	validator  Validator
	uploader   CouponUploader
	opts       Options
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer builds the router and wraps it in an http.Server.
func NewServer(addr string, validator Validator, uploader CouponUploader, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = 10 << 20
	}

	s := &Server{
		validator: validator,
		uploader:  uploader,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverJSON(logger))

	r.Get("/", handleIndex)
	r.Get("/health", sharedobs.LivenessHandler())
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(validator))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/validate", s.handleValidate)
		r.Get("/validate-coupon", s.handleValidateCoupon)
		r.Post("/upload-coupons", s.handleUpload)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
