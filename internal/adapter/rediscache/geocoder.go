// Package rediscache shares geocoding results between validator replicas
// through Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

const keyPrefix = "geocode:"

// NewClient parses redisURL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Geocoder is a read-through cache in front of another Geocoder. Redis
// failures are logged and the inner geocoder is used directly.
type Geocoder struct {
	inner   domain.Geocoder
	rdb     redis.UniversalClient
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGeocoder wraps inner with a Redis cache whose entries expire after ttl.
func NewGeocoder(inner domain.Geocoder, rdb redis.UniversalClient, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Geocoder {
	return &Geocoder{
		inner:   inner,
		rdb:     rdb,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func (g *Geocoder) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	key := cacheKey(address)

	raw, err := g.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var result domain.GeocodingResult
		if jsonErr := json.Unmarshal(raw, &result); jsonErr == nil && result.Found() {
			g.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			return result, nil
		}
		g.logger.Warn("discarding unreadable geocode cache entry", "key", key)
		g.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()
	case errors.Is(err, redis.Nil):
		g.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()
	default:
		g.logger.Warn("geocode cache read failed", "error", err)
		g.metrics.GeocodeCache.WithLabelValues("redis", "error").Inc()
	}

	result, err := g.inner.Geocode(ctx, address)
	if err != nil || !result.Found() {
		return result, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return result, nil
	}
	if err := g.rdb.Set(ctx, key, payload, g.ttl).Err(); err != nil {
		g.logger.Warn("geocode cache write failed", "error", err)
	}
	return result, nil
}

func cacheKey(address string) string {
	return keyPrefix + strings.ToLower(strings.Join(strings.Fields(address), " "))
}
