package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronWildcard(t *testing.T) {
	c, err := parseCron("* * * * *")
	require.NoError(t, err)
	assert.Len(t, c.minutes, 60)
	assert.Len(t, c.hours, 24)
	assert.Len(t, c.daysOfMonth, 31)
	assert.Len(t, c.months, 12)
	assert.Len(t, c.daysOfWeek, 7)
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := parseCron("* * * *")
	assert.Error(t, err)
}

func TestParseCronRejectsOutOfRange(t *testing.T) {
	_, err := parseCron("60 * * * *")
	assert.Error(t, err)
}

func TestParseCronStep(t *testing.T) {
	c, err := parseCron("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, c.minutes)
}

func TestParseCronListAndRange(t *testing.T) {
	c, err := parseCron("0 9,17 1-5 * *")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 17}, c.hours)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, c.daysOfMonth)
}

func TestParseCronNormalizesSundaySeven(t *testing.T) {
	c, err := parseCron("0 0 * * 0,7")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, c.daysOfWeek)
}

func TestNextRunDailyAtMidnight(t *testing.T) {
	c, err := parseCron("0 0 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 1, 13, 30, 0, 0, time.UTC)
	next := c.nextRun(after, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestNextRunHourly(t *testing.T) {
	c, err := parseCron("0 * * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 1, 13, 30, 0, 0, time.UTC)
	next := c.nextRun(after, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC), next)
}

func TestCalculateNextRunInvalidExpression(t *testing.T) {
	_, err := calculateNextRun("not a cron", time.Now(), "")
	assert.Error(t, err)
}

func TestCalculateNextRunInvalidTimezone(t *testing.T) {
	_, err := calculateNextRun("0 0 * * *", time.Now(), "Not/A_Zone")
	assert.Error(t, err)
}
