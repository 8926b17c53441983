package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestISOWeekLabel(t *testing.T) {
	// 2021-01-03 is a Sunday that still belongs to ISO week 53 of 2020.
	assert.Equal(t, "2020-W53", ISOWeekLabel(day("2021-01-03")))
	assert.Equal(t, "2021-W1", ISOWeekLabel(day("2021-01-04")))
	assert.Equal(t, "2024-W23", ISOWeekLabel(day("2024-06-03")))
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)

	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.CompletionRate)
	assert.NotNil(t, stats.ByWeek)
}

func TestComputeStats(t *testing.T) {
	completions := []WorkoutCompletion{
		{Date: day("2024-06-03"), Completed: true},
		{Date: day("2024-06-04"), Completed: false},
		{Date: day("2024-06-05"), Completed: true},
		{Date: day("2024-06-10"), Completed: true},
		{Date: day("2024-06-11"), Completed: false},
		{Date: day("2024-06-12"), Completed: false},
	}

	stats := ComputeStats(completions)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 3, stats.Missed)
	assert.Equal(t, 50.0, stats.CompletionRate)
	assert.Equal(t, WeekStats{Completed: 2, Total: 3}, stats.ByWeek["2024-W23"])
	assert.Equal(t, WeekStats{Completed: 1, Total: 3}, stats.ByWeek["2024-W24"])
}

func TestComputeStats_RoundsToOneDecimal(t *testing.T) {
	stats := ComputeStats([]WorkoutCompletion{
		{Date: day("2024-06-03"), Completed: true},
		{Date: day("2024-06-04"), Completed: false},
		{Date: day("2024-06-05"), Completed: false},
	})
	assert.Equal(t, 33.3, stats.CompletionRate)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-03")
	require.NoError(t, err)
	assert.Equal(t, day("2024-06-03"), d)

	d, err = ParseDate("2024-06-03T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, day("2024-06-03"), d)

	_, err = ParseDate("03/06/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestStatsPeriod_WindowStart(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	p, err := ParseStatsPeriod("")
	require.NoError(t, err)
	// Seven calendar days, Mar 25 through Mar 31.
	assert.Equal(t, day("2024-03-25"), p.WindowStart(now))

	p, err = ParseStatsPeriod("month")
	require.NoError(t, err)
	// Feb has no 31st; the window starts after Feb 29 noon.
	assert.Equal(t, day("2024-03-01"), p.WindowStart(now))

	_, err = ParseStatsPeriod("year")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestStatsPeriod_WindowStartAtMidnight(t *testing.T) {
	midnight := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day("2024-06-07"), PeriodWeek.WindowStart(midnight))

	jan := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, day("2024-12-16"), PeriodMonth.WindowStart(jan))
}
