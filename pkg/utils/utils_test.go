package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorShares(t *testing.T) {
	assert.Equal(t, 57, FloorShares(6000, 105))
	assert.Equal(t, 100, FloorShares(10000, 100))
	assert.Equal(t, 0, FloorShares(50, 100))
	assert.Equal(t, 0, FloorShares(1000, 0))
	assert.Equal(t, 0, FloorShares(1000, -5))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 66.67, Round2(66.666666))
	assert.Equal(t, -6.67, Round2(-6.666666))
	assert.Equal(t, 1.0, Round2(1.004))
}

func TestDayHelpers(t *testing.T) {
	d, err := ParseDate("2024-02-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", FormatDate(d))

	withTime := time.Date(2024, 2, 5, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, d, Day(withTime))
	assert.True(t, SameDay(d, withTime))
	assert.False(t, SameDay(d, d.AddDate(0, 0, 1)))

	assert.True(t, IsWeekend(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)))  // Saturday
	assert.False(t, IsWeekend(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC))) // Monday
}
