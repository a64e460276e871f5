package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToday_UsesLocation(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 03:00 UTC on Jan 2 is still Jan 1 in Los Angeles.
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.January, 2, 3, 0, 0, 0, time.UTC))

	assert.Equal(t, date(2026, time.January, 1), Today(clock, la))
	assert.Equal(t, date(2026, time.January, 2), Today(clock, nil))
}

func TestNewDecisionEvent(t *testing.T) {
	at := time.Date(2026, time.January, 2, 3, 0, 0, 0, time.FixedZone("PST", -8*3600))

	a := NewDecisionEvent(DecisionCoupon, StatusDenied, "1500 Capitol Ave", at)
	b := NewDecisionEvent(DecisionCoupon, StatusDenied, "1500 Capitol Ave", at)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, DecisionCoupon, a.Type)
	assert.Equal(t, StatusDenied, a.Status)
	assert.Equal(t, time.UTC, a.DecidedAt.Location())
	assert.True(t, at.Equal(a.DecidedAt))
}
