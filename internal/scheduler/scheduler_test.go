package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

type countingRefresher struct {
	calls atomic.Int32
}

func (c *countingRefresher) ForceRefresh(_ context.Context) map[string]domain.CouponRecord {
	c.calls.Add(1)
	return map[string]domain.CouponRecord{"SAVE10": {Code: "SAVE10"}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsRefresh(t *testing.T) {
	r := &countingRefresher{}
	s := New("@every 1s", r, discardLogger())

	require.NoError(t, s.Start(context.Background()))
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New("every now and then", &countingRefresher{}, discardLogger())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every now and then")
}

func TestScheduler_CancelledContextSkipsRefresh(t *testing.T) {
	r := &countingRefresher{}
	s := New("@every 1h", r, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.refresh(ctx)

	assert.Equal(t, int32(0), r.calls.Load())
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{logger: discardLogger()}
	l.Info("start", "entries", 1)
	l.Error(errors.New("boom"), "job failed", "entry", 2)
}
