package rediscache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, nil
}

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestGeocoder_RedisDownFallsThrough(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{Lat: 38.58, Lon: -121.49, MatchedAddress: "Sacramento"}}
	g := NewGeocoder(inner, unreachableClient(t), time.Hour,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := g.Geocode(context.Background(), "1500 Capitol Ave")
	require.NoError(t, err)
	assert.Equal(t, "Sacramento", result.MatchedAddress)

	_, err = g.Geocode(context.Background(), "1500 Capitol Ave")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ParseURL")
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewClient(ctx, "redis://127.0.0.1:1/0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "geocode:1500 capitol ave", cacheKey("  1500  Capitol AVE "))
}
