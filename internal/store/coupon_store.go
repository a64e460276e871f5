// Package store holds the process-wide coupon snapshot.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/zeebo/blake3"

	"github.com/agromin/jurisdiction-validator/internal/adapter/coupons"
	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// DefaultTTL is how long a loaded snapshot is served before reloading.
const DefaultTTL = 300 * time.Second

// Source provides the full coupon dataset.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]domain.CouponRecord, error)
}

// snapshot is one loaded dataset. gen orders reloads: a reload that began
// before a forced refresh never replaces that refresh's result.
type snapshot struct {
	records  map[string]domain.CouponRecord
	loadedAt time.Time
	gen      uint64
}

// Config wires a CouponStore.
type Config struct {
	// Sources are tried in order on every reload; the first that loads wins.
	Sources []Source
	// SpreadsheetPath and CSVPath are where uploads are written. They should
	// be the paths of the local sources in Sources.
	SpreadsheetPath string
	CSVPath         string
	TTL             time.Duration
	Clock           clockwork.Clock
}

// CouponStore caches the coupon dataset for a fixed TTL. Readers always see
// a complete snapshot; concurrent reloads after expiry may duplicate work.
type CouponStore struct {
	sources         []Source
	spreadsheetPath string
	csvPath         string
	ttl             time.Duration
	clock           clockwork.Clock
	metrics         *observability.Metrics
	logger          *slog.Logger

	current  atomic.Pointer[snapshot]
	gen      atomic.Uint64
	uploadMu sync.Mutex
}

// New creates an empty store. Nothing is loaded until the first Get.
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *CouponStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &CouponStore{
		sources:         cfg.Sources,
		spreadsheetPath: cfg.SpreadsheetPath,
		csvPath:         cfg.CSVPath,
		ttl:             cfg.TTL,
		clock:           cfg.Clock,
		metrics:         metrics,
		logger:          logger,
	}
}

// Get returns the cached mapping when it is non-empty and younger than the
// TTL, and reloads otherwise.
func (s *CouponStore) Get(ctx context.Context) map[string]domain.CouponRecord {
	return s.load(ctx, false)
}

// ForceRefresh reloads the dataset regardless of age.
func (s *CouponStore) ForceRefresh(ctx context.Context) map[string]domain.CouponRecord {
	return s.load(ctx, true)
}

// Len is the size of the current snapshot without triggering a reload.
func (s *CouponStore) Len() int {
	if snap := s.current.Load(); snap != nil {
		return len(snap.records)
	}
	return 0
}

func (s *CouponStore) load(ctx context.Context, force bool) map[string]domain.CouponRecord {
	if !force {
		if snap := s.current.Load(); snap != nil && len(snap.records) > 0 && s.clock.Since(snap.loadedAt) < s.ttl {
			return snap.records
		}
	}

	// Forced loads take a new generation so any reload already in flight
	// drops its older result.
	var gen uint64
	if force {
		gen = s.gen.Add(1)
	} else {
		gen = s.gen.Load()
	}

	records := s.fetch(ctx)
	next := &snapshot{records: records, loadedAt: s.clock.Now(), gen: gen}
	for {
		cur := s.current.Load()
		if cur != nil && cur.gen > gen {
			s.logger.Debug("discarding stale coupon reload", "generation", gen, "current", cur.gen)
			return cur.records
		}
		if s.current.CompareAndSwap(cur, next) {
			s.metrics.CouponRecords.Set(float64(len(records)))
			return records
		}
	}
}

// fetch walks the sources in priority order. Exhausting them yields an
// empty mapping, which callers treat as "no coupons".
func (s *CouponStore) fetch(ctx context.Context) map[string]domain.CouponRecord {
	for _, src := range s.sources {
		records, err := src.Load(ctx)
		if err != nil {
			s.metrics.CouponLoads.WithLabelValues(src.Name(), "error").Inc()
			s.logger.Warn("coupon source unavailable", "source", src.Name(), "error", err)
			continue
		}
		s.metrics.CouponLoads.WithLabelValues(src.Name(), "success").Inc()
		s.logger.Info("coupons loaded", "source", src.Name(), "count", len(records))
		return records
	}

	s.logger.Warn("no coupon source available; serving empty dataset", "sources", len(s.sources))
	return map[string]domain.CouponRecord{}
}

// Replace validates an uploaded table, writes it to the local path for its
// format and force-refreshes. An upload identical to the file already on
// disk is not rewritten. The other format's local file is removed so
// the upload is what the local fallback reads. It returns the number of
// records served after the refresh; a configured remote source still takes
// precedence over the upload.
func (s *CouponStore) Replace(ctx context.Context, content []byte) (int, error) {
	if len(content) == 0 {
		return 0, domain.Denied("no file content provided")
	}

	format := coupons.DetectFormat(content)
	records, err := coupons.Parse(format, bytes.NewReader(content))
	if err != nil {
		return 0, domain.Denied(fmt.Sprintf("invalid %s coupon file: %v", format, err))
	}

	target, other := s.csvPath, s.spreadsheetPath
	if format == coupons.FormatSpreadsheet {
		target, other = s.spreadsheetPath, s.csvPath
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	digest := blake3.Sum256(content)
	if sameContent(target, digest) {
		s.logger.Info("coupon upload unchanged", "path", target, "blake3", hex.EncodeToString(digest[:]))
	} else {
		if err := writeFileAtomic(target, content); err != nil {
			return 0, fmt.Errorf("persist coupons: %w", err)
		}
		s.logger.Info("coupon file replaced",
			"path", target,
			"format", format.String(),
			"bytes", len(content),
			"blake3", hex.EncodeToString(digest[:]),
			"records", len(records),
		)
	}
	if other != "" {
		if err := os.Remove(other); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not remove stale coupon file", "path", other, "error", err)
		}
	}

	return len(s.ForceRefresh(ctx)), nil
}

// sameContent reports whether the file at path already hashes to digest.
// An unreadable file counts as different.
func sameContent(path string, digest [32]byte) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return blake3.Sum256(existing) == digest
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place so readers never see a partial file.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
