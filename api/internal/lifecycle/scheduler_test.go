package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateNextDueDate(t *testing.T) {
	last := day(2024, 1, 15)
	cases := []struct {
		frequency string
		want      time.Time
	}{
		{"quarterly", day(2024, 4, 15)},
		{"annual", day(2025, 1, 15)},
		{"semiannual", day(2024, 7, 15)},
		{"monthly", day(2024, 2, 15)},
		{"biennial", day(2026, 1, 15)},
		{" Quarterly ", day(2024, 4, 15)},
		{"semi-annual", day(2024, 7, 15)},
		{"yearly", day(2025, 1, 15)},
		{"fortnightly", day(2025, 1, 15)},
		{"", day(2025, 1, 15)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CalculateNextDueDate(tc.frequency, last), "frequency %q", tc.frequency)
	}
}

func TestNextDueDateReportsUnknownLabels(t *testing.T) {
	_, known := NextDueDate("annual", day(2024, 1, 15))
	assert.True(t, known)
	_, known = NextDueDate("every other tuesday", day(2024, 1, 15))
	assert.False(t, known)
}

func TestAddIntervalClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, day(2024, 2, 29), AddInterval(day(2024, 1, 31), 0, 1))
	assert.Equal(t, day(2023, 2, 28), AddInterval(day(2023, 1, 31), 0, 1))
	assert.Equal(t, day(2025, 2, 28), AddInterval(day(2024, 2, 29), 1, 0))
	assert.Equal(t, day(2025, 3, 31), AddInterval(day(2024, 12, 31), 0, 3))
	assert.Equal(t, day(2023, 11, 29), AddInterval(day(2024, 2, 29), 0, -3))
}

func TestCalculateCompletionRate(t *testing.T) {
	assert.Equal(t, 0, CalculateCompletionRate(0, 0))
	assert.Equal(t, 50, CalculateCompletionRate(5, 10))
	assert.Equal(t, 100, CalculateCompletionRate(10, 10))
	assert.Equal(t, 67, CalculateCompletionRate(2, 3))
	assert.Equal(t, 0, CalculateCompletionRate(3, -1))
}

func TestAggregateTrainingBucketsSumToTotal(t *testing.T) {
	now := day(2024, 6, 1)
	done := day(2024, 5, 1)
	reqs := []TrainingRequirement{
		{ID: "1", RequiredByDate: day(2024, 5, 1)},
		{ID: "2", RequiredByDate: day(2024, 6, 10)},
		{ID: "3", RequiredByDate: day(2024, 12, 1)},
		{ID: "4", RequiredByDate: day(2024, 1, 1), CompletionDate: &done},
		{ID: "5", RequiredByDate: day(2025, 1, 1), CompletionDate: &done},
		{ID: "6", RequiredByDate: now},
	}
	counts := AggregateTraining(reqs, now, DefaultApproachingWindow)
	require.Equal(t, len(reqs), counts.Total())
	assert.Equal(t, StatusCounts{NotStarted: 1, InProgress: 2, Overdue: 1, Completed: 2}, counts)
}

func TestPeriods(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 5, 15, 14, 30, 0, 0, time.UTC)

	week := WeekRange(now)
	assert.Equal(t, day(2024, 5, 13), week.Start)
	assert.Equal(t, day(2024, 5, 20), week.End)

	month := MonthRange(now)
	assert.Equal(t, day(2024, 5, 1), month.Start)
	assert.Equal(t, day(2024, 6, 1), month.End)

	quarter := QuarterRange(now)
	assert.Equal(t, day(2024, 4, 1), quarter.Start)
	assert.Equal(t, day(2024, 7, 1), quarter.End)

	assert.True(t, month.Contains(month.Start))
	assert.False(t, month.Contains(month.End))

	sunday := time.Date(2024, 5, 19, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, day(2024, 5, 13), WeekRange(sunday).Start)
	assert.Equal(t, day(2024, 10, 1), QuarterRange(day(2024, 12, 31)).Start)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 29, DaysBetween(day(2024, 2, 1), day(2024, 3, 1)))
	assert.Equal(t, -1, DaysBetween(day(2024, 3, 1), time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC)))
}
