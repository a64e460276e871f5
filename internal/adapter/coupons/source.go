package coupons

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

// maxRemoteBytes bounds a remote coupon table download.
const maxRemoteBytes = 32 << 20

// RemoteSource fetches a coupon table over HTTP.
type RemoteSource struct {
	url        string
	format     Format
	httpClient *http.Client
}

// NewRemoteSource creates a source for the table at url. Requests are
// bounded by timeout.
func NewRemoteSource(url string, format Format, timeout time.Duration) *RemoteSource {
	return &RemoteSource{
		url:        url,
		format:     format,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *RemoteSource) Name() string { return "remote-" + s.format.String() }

func (s *RemoteSource) Load(ctx context.Context) (map[string]domain.CouponRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch coupons: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch coupons: status %d", resp.StatusCode)
	}

	return Parse(s.format, io.LimitReader(resp.Body, maxRemoteBytes))
}

// FileSource reads a coupon table from local disk.
type FileSource struct {
	path   string
	format Format
}

// NewFileSource creates a source for the table at path.
func NewFileSource(path string, format Format) *FileSource {
	return &FileSource{path: path, format: format}
}

func (s *FileSource) Name() string { return "local-" + s.format.String() }

// Path is where the table lives on disk.
func (s *FileSource) Path() string { return s.path }

// Format is the encoding the file is read with.
func (s *FileSource) Format() Format { return s.format }

func (s *FileSource) Load(_ context.Context) (map[string]domain.CouponRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open coupons: %w", err)
	}
	defer f.Close()

	return Parse(s.format, f)
}
