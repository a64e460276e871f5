package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/agromin/jurisdiction-validator/internal/adapter/arcgis"
	"github.com/agromin/jurisdiction-validator/internal/adapter/coupons"
	"github.com/agromin/jurisdiction-validator/internal/adapter/districts"
	httpadapter "github.com/agromin/jurisdiction-validator/internal/adapter/http"
	kafkaadapter "github.com/agromin/jurisdiction-validator/internal/adapter/kafka"
	"github.com/agromin/jurisdiction-validator/internal/adapter/rediscache"
	"github.com/agromin/jurisdiction-validator/internal/config"
	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
	"github.com/agromin/jurisdiction-validator/internal/scheduler"
	"github.com/agromin/jurisdiction-validator/internal/service"
	"github.com/agromin/jurisdiction-validator/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Districts are loaded once; the service cannot answer anything without them.
	index, err := districts.Load(cfg.DistrictsPath, metrics, logger)
	if err != nil {
		logger.Error("failed to load tax districts", "path", cfg.DistrictsPath, "error", err)
		os.Exit(1)
	}

	var geocoder domain.Geocoder = arcgis.NewClient(cfg.GeocoderURL, cfg.GeocoderToken, cfg.GeocoderTimeout, metrics, logger)
	if cfg.RedisURL != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis geocode cache disabled", "error", err)
		} else {
			defer rdb.Close()
			geocoder = rediscache.NewGeocoder(geocoder, rdb, cfg.GeocodeRedisTTL, metrics, logger)
			logger.Info("redis geocode cache enabled", "ttl", cfg.GeocodeRedisTTL)
		}
	}
	geocoder = arcgis.NewCachedGeocoder(geocoder, cfg.GeocodeCacheSize, metrics)

	couponStore := store.New(store.Config{
		Sources:         couponSources(cfg),
		SpreadsheetPath: cfg.CouponsLocalXLSXPath,
		CSVPath:         cfg.CouponsLocalCSVPath,
		TTL:             cfg.CouponCacheTTL,
	}, metrics, logger)

	opts := []service.Option{service.WithLocation(cfg.Location)}
	var publisher *kafkaadapter.DecisionPublisher
	if cfg.PublishDecisions() {
		publisher = kafkaadapter.NewDecisionPublisher(cfg.KafkaBrokers, cfg.KafkaDecisionsTopic, metrics, logger)
		opts = append(opts, service.WithPublisher(publisher))
		logger.Info("decision events enabled", "topic", cfg.KafkaDecisionsTopic, "brokers", cfg.KafkaBrokers)
	}

	validator := service.New(geocoder, index, couponStore, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, validator, couponStore, httpadapter.Options{
		UploadAPIKey:   cfg.UploadAPIKey,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}, metrics, logger)
	if cfg.UploadAPIKey == "" {
		logger.Warn("UPLOAD_API_KEY not set; coupon uploads are disabled")
	}

	// Warm the coupon cache so the first request does not pay for the fetch.
	go couponStore.Get(ctx)

	var sched *scheduler.Scheduler
	if cfg.CouponRefreshSchedule != "" {
		sched = scheduler.New(cfg.CouponRefreshSchedule, couponStore, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("invalid coupon refresh schedule", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// couponSources returns the configured sources in fallback order: remote
// spreadsheet, remote CSV, local spreadsheet, local CSV.
func couponSources(cfg *config.Config) []store.Source {
	var sources []store.Source
	if cfg.CouponsRemoteXLSXURL != "" {
		sources = append(sources, coupons.NewRemoteSource(cfg.CouponsRemoteXLSXURL, coupons.FormatSpreadsheet, cfg.CouponFetchTimeout))
	}
	if cfg.CouponsRemoteCSVURL != "" {
		sources = append(sources, coupons.NewRemoteSource(cfg.CouponsRemoteCSVURL, coupons.FormatCSV, cfg.CouponFetchTimeout))
	}
	return append(sources,
		coupons.NewFileSource(cfg.CouponsLocalXLSXPath, coupons.FormatSpreadsheet),
		coupons.NewFileSource(cfg.CouponsLocalCSVPath, coupons.FormatCSV),
	)
}
