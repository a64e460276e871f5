package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// Client implements domain.Geocoder using the ArcGIS findAddressCandidates API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an ArcGIS geocoding client. token may be empty for the
// public World geocoder.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Geocode returns the best candidate for a single-line address. No
// candidates is a zero result with a nil error.
func (c *Client) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	params := url.Values{
		"f":            {"json"},
		"singleLine":   {address},
		"outFields":    {"Match_addr"},
		"maxLocations": {"1"},
	}
	if c.token != "" {
		params.Set("token", c.token)
	}

	start := time.Now()
	result, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode(), address)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
	case !result.Found():
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL, address string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeocodingResult{}, fmt.Errorf("arcgis API error: status %d: %s", resp.StatusCode, body)
	}

	var arcResp response
	if err := json.NewDecoder(resp.Body).Decode(&arcResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	// ArcGIS reports token and parameter errors in a 200 body.
	if arcResp.Error != nil {
		return domain.GeocodingResult{}, fmt.Errorf("arcgis API error: code %d: %s", arcResp.Error.Code, arcResp.Error.Message)
	}

	if len(arcResp.Candidates) == 0 {
		c.logger.Debug("no geocoding candidates", "address", address)
		return domain.GeocodingResult{}, nil
	}

	cand := arcResp.Candidates[0]
	matched := strings.TrimSpace(cand.Address)
	if matched == "" {
		matched = address
	}
	return domain.GeocodingResult{
		Lat:            cand.Location.Y,
		Lon:            cand.Location.X,
		MatchedAddress: matched,
		Score:          cand.Score,
	}, nil
}

// ArcGIS API response types.

type response struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Address  string   `json:"address"`
	Location location `json:"location"` // x = lon, y = lat
	Score    float64  `json:"score"`
}

type location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

