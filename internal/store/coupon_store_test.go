package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromin/jurisdiction-validator/internal/adapter/coupons"
	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

// --- fake source ---

type fakeSource struct {
	name    string
	records map[string]domain.CouponRecord
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Load(_ context.Context) (map[string]domain.CouponRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	// Fresh map per load, like a real source.
	out := make(map[string]domain.CouponRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func oneCoupon(code string) map[string]domain.CouponRecord {
	return map[string]domain.CouponRecord{code: {Code: code, Status: "Active"}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(clock clockwork.Clock, sources ...Source) *CouponStore {
	return New(Config{Sources: sources, Clock: clock}, observability.NewMetricsForTesting(), discardLogger())
}

func sameMap(a, b map[string]domain.CouponRecord) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// --- TTL ---

func TestCouponStore_CachesWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "remote-xlsx", records: oneCoupon("SAVE10")}
	s := newTestStore(clock, src)

	first := s.Get(context.Background())
	clock.Advance(299 * time.Second)
	second := s.Get(context.Background())

	assert.Equal(t, 1, src.callCount())
	assert.True(t, sameMap(first, second), "expected the same mapping instance")
}

func TestCouponStore_ReloadsAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "remote-xlsx", records: oneCoupon("SAVE10")}
	s := newTestStore(clock, src)

	first := s.Get(context.Background())
	clock.Advance(300 * time.Second)
	second := s.Get(context.Background())

	assert.Equal(t, 2, src.callCount())
	assert.False(t, sameMap(first, second))
}

func TestCouponStore_ForceRefresh(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "remote-xlsx", records: oneCoupon("SAVE10")}
	s := newTestStore(clock, src)

	s.Get(context.Background())
	s.ForceRefresh(context.Background())

	assert.Equal(t, 2, src.callCount())
}

func TestCouponStore_EmptyDatasetIsNotCached(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "local-csv", records: map[string]domain.CouponRecord{}}
	s := newTestStore(clock, src)

	s.Get(context.Background())
	s.Get(context.Background())

	assert.Equal(t, 2, src.callCount())
}

func TestCouponStore_CustomTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "local-csv", records: oneCoupon("A")}
	s := New(Config{Sources: []Source{src}, Clock: clock, TTL: time.Minute},
		observability.NewMetricsForTesting(), discardLogger())

	s.Get(context.Background())
	clock.Advance(61 * time.Second)
	s.Get(context.Background())

	assert.Equal(t, 2, src.callCount())
}

// --- fallback chain ---

func TestCouponStore_FallsThroughInOrder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	remoteXLSX := &fakeSource{name: "remote-xlsx", err: errors.New("403")}
	remoteCSV := &fakeSource{name: "remote-csv", err: errors.New("dial timeout")}
	localXLSX := &fakeSource{name: "local-xlsx", records: oneCoupon("LOCAL")}
	localCSV := &fakeSource{name: "local-csv", records: oneCoupon("NEVER")}

	s := newTestStore(clock, remoteXLSX, remoteCSV, localXLSX, localCSV)
	records := s.Get(context.Background())

	assert.Contains(t, records, "LOCAL")
	assert.NotContains(t, records, "NEVER")
	assert.Equal(t, 1, remoteXLSX.callCount())
	assert.Equal(t, 1, remoteCSV.callCount())
	assert.Equal(t, 1, localXLSX.callCount())
	assert.Equal(t, 0, localCSV.callCount())
	assert.Equal(t, 1, s.Len())
}

func TestCouponStore_AllSourcesFail(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	s := newTestStore(clock,
		&fakeSource{name: "remote-xlsx", err: errors.New("boom")},
		&fakeSource{name: "local-csv", err: os.ErrNotExist},
	)

	records := s.Get(context.Background())
	require.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 0, s.Len())
}

func TestCouponStore_NoSources(t *testing.T) {
	s := newTestStore(clockwork.NewFakeClock())
	assert.Empty(t, s.Get(context.Background()))
}

func TestCouponStore_ConcurrentReaders(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	src := &fakeSource{name: "local-csv", records: oneCoupon("SAVE10")}
	s := newTestStore(clock, src)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				records := s.Get(context.Background())
				assert.Len(t, records, 1)
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, src.callCount(), 1)
}

// --- upload ---

const uploadCSV = "Coupon,Program Status,Jurisdiction\nsave10,Active,City of Sacramento\nyolo5,Active,Yolo County\n"

func newUploadStore(t *testing.T) (*CouponStore, string, string) {
	t.Helper()
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "coupons.xlsx")
	csvPath := filepath.Join(dir, "coupons.csv")

	s := New(Config{
		Sources: []Source{
			coupons.NewFileSource(xlsxPath, coupons.FormatSpreadsheet),
			coupons.NewFileSource(csvPath, coupons.FormatCSV),
		},
		SpreadsheetPath: xlsxPath,
		CSVPath:         csvPath,
		Clock:           clockwork.NewFakeClockAt(time.Now()),
	}, observability.NewMetricsForTesting(), discardLogger())
	return s, xlsxPath, csvPath
}

func TestCouponStore_ReplaceCSV(t *testing.T) {
	s, xlsxPath, csvPath := newUploadStore(t)

	// A stale spreadsheet would otherwise shadow the CSV upload.
	require.NoError(t, os.WriteFile(xlsxPath, []byte("stale"), 0o600))

	n, err := s.Replace(context.Background(), []byte(uploadCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	written, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, uploadCSV, string(written))

	_, err = os.Stat(xlsxPath)
	assert.True(t, os.IsNotExist(err), "stale spreadsheet should be removed")

	records := s.Get(context.Background())
	assert.Contains(t, records, "SAVE10")
	assert.Contains(t, records, "YOLO5")
}

func TestCouponStore_ReplaceRejectsEmpty(t *testing.T) {
	s, _, _ := newUploadStore(t)

	_, err := s.Replace(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindDenied, domain.KindOf(err))
}

func TestCouponStore_ReplaceRejectsUnparsable(t *testing.T) {
	s, _, csvPath := newUploadStore(t)

	_, err := s.Replace(context.Background(), []byte("Code,Status\nabc,active\n"))
	require.Error(t, err)
	assert.Equal(t, domain.KindDenied, domain.KindOf(err))

	_, statErr := os.Stat(csvPath)
	assert.True(t, os.IsNotExist(statErr), "invalid upload must not be persisted")

	_, err = s.Replace(context.Background(), []byte("PK this is not a workbook"))
	require.Error(t, err)
	assert.Equal(t, domain.KindDenied, domain.KindOf(err))
}

func TestCouponStore_ReplaceWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The CSV path's parent is a regular file, so the write fails.
	s := New(Config{CSVPath: filepath.Join(blocker, "coupons.csv")},
		observability.NewMetricsForTesting(), discardLogger())

	_, err := s.Replace(context.Background(), []byte(uploadCSV))
	require.Error(t, err)
	assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
}

func TestCouponStore_ReplaceSameContentKeepsFile(t *testing.T) {
	s, _, csvPath := newUploadStore(t)

	_, err := s.Replace(context.Background(), []byte(uploadCSV))
	require.NoError(t, err)
	before, err := os.Stat(csvPath)
	require.NoError(t, err)

	n, err := s.Replace(context.Background(), []byte(uploadCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	after, err := os.Stat(csvPath)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "identical upload should not rewrite the file")

	_, err = s.Replace(context.Background(), []byte(uploadCSV+"extra1,Active,Yolo County\n"))
	require.NoError(t, err)
	changed, err := os.Stat(csvPath)
	require.NoError(t, err)
	assert.False(t, os.SameFile(before, changed), "changed upload should replace the file")
}

// gatedSource blocks its first load until released and then returns
// records; later loads fail so the store falls through to the next source.
type gatedSource struct {
	records map[string]domain.CouponRecord
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) Name() string { return "remote-csv" }

func (g *gatedSource) Load(_ context.Context) (map[string]domain.CouponRecord, error) {
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return nil, errors.New("remote down")
	}
	close(g.started)
	<-g.release
	return g.records, nil
}

func TestCouponStore_SlowReloadDoesNotOverwriteUpload(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "coupons.csv")
	remote := &gatedSource{
		records: oneCoupon("OLD"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(Config{
		Sources: []Source{remote, coupons.NewFileSource(csvPath, coupons.FormatCSV)},
		CSVPath: csvPath,
		Clock:   clockwork.NewFakeClockAt(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)),
	}, observability.NewMetricsForTesting(), discardLogger())

	slow := make(chan map[string]domain.CouponRecord, 1)
	go func() { slow <- s.Get(context.Background()) }()
	<-remote.started

	n, err := s.Replace(context.Background(), []byte("Coupon,Program Status,Jurisdiction\nnew1,Active,Yolo County\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	close(remote.release)
	stale := <-slow
	assert.Contains(t, stale, "NEW1", "the slow reader should get the newer snapshot")

	records := s.Get(context.Background())
	assert.Contains(t, records, "NEW1")
	assert.NotContains(t, records, "OLD")
	assert.Equal(t, 1, s.Len())
}
