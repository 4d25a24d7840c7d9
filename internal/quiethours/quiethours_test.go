package quiethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeETA_NoWindowConfigured(t *testing.T) {
	eta, deferred, err := ComputeETA(nil, nil, "UTC", time.Now())
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.True(t, eta.IsZero())
}

func TestComputeETA_OutsideWindow(t *testing.T) {
	start := &ClockTime{Hour: 22, Minute: 0}
	end := &ClockTime{Hour: 8, Minute: 0}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	_, deferred, err := ComputeETA(start, end, "UTC", now)
	require.NoError(t, err)
	assert.False(t, deferred)
}

func TestComputeETA_WrapAroundMidnight(t *testing.T) {
	start := &ClockTime{Hour: 22, Minute: 0}
	end := &ClockTime{Hour: 8, Minute: 0}
	now := time.Date(2026, 7, 30, 23, 30, 0, 0, time.UTC)

	eta, deferred, err := ComputeETA(start, end, "UTC", now)
	require.NoError(t, err)
	require.True(t, deferred)
	assert.Equal(t, time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC), eta)
}

func TestComputeETA_WrapAroundMidnight_AfterMidnightBeforeEnd(t *testing.T) {
	start := &ClockTime{Hour: 22, Minute: 0}
	end := &ClockTime{Hour: 8, Minute: 0}
	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)

	eta, deferred, err := ComputeETA(start, end, "UTC", now)
	require.NoError(t, err)
	require.True(t, deferred)
	assert.Equal(t, time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC), eta)
}

func TestComputeETA_NonWrappingWindow(t *testing.T) {
	start := &ClockTime{Hour: 9, Minute: 0}
	end := &ClockTime{Hour: 17, Minute: 0}
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	eta, deferred, err := ComputeETA(start, end, "UTC", now)
	require.NoError(t, err)
	require.True(t, deferred)
	assert.Equal(t, time.Date(2026, 7, 30, 17, 0, 0, 0, time.UTC), eta)
}

func TestComputeETA_InvalidTimezone(t *testing.T) {
	start := &ClockTime{Hour: 22, Minute: 0}
	end := &ClockTime{Hour: 8, Minute: 0}

	_, _, err := ComputeETA(start, end, "Not/A_Zone", time.Now())
	assert.Error(t, err)
}

func TestClockTime_Before(t *testing.T) {
	assert.True(t, ClockTime{Hour: 9, Minute: 0}.Before(ClockTime{Hour: 9, Minute: 30}))
	assert.False(t, ClockTime{Hour: 10, Minute: 0}.Before(ClockTime{Hour: 9, Minute: 30}))
}
