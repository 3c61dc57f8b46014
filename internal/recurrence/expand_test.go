package recurrence

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func dates(occ []model.CalendarEvent) string {
	var b strings.Builder
	for _, o := range occ {
		b.WriteString(o.Date.Format("2006-01-02"))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestExpand_None(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Title: "visit", Date: day(2024, 3, 10), Frequency: model.FrequencyNone}

	out, err := Expand(ev, day(2024, 3, 10), day(2024, 3, 10))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, ev, out[0])

	out, err = Expand(ev, day(2024, 3, 11), day(2024, 4, 1))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestExpand_Daily30Days(t *testing.T) {
	t.Parallel()
	start := day(2024, 1, 1)
	ev := model.CalendarEvent{Title: "pill", Date: start, Frequency: model.FrequencyDaily, Interval: 1}

	out, err := Expand(ev, start, start.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, out, 31, "inclusive range covers both ends")
	for i := 1; i < len(out); i++ {
		require.Equal(t, out[i-1].Date.AddDate(0, 0, 1), out[i].Date)
		require.Equal(t, "pill", out[i].Title)
	}

	out, err = Expand(ev, start, start.AddDate(0, 0, 29))
	require.NoError(t, err)
	require.Len(t, out, 30)
}

func TestExpand_FiftyYearsHitsCap(t *testing.T) {
	t.Parallel()
	start := day(2024, 1, 1)
	ev := model.CalendarEvent{Date: start, Frequency: model.FrequencyDaily, Interval: 1}

	out, err := Expand(ev, start, start.AddDate(50, 0, 0))
	require.NoError(t, err)
	require.Len(t, out, MaxOccurrences)
}

func TestExpand_SkipsAheadToRange(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Date: day(2000, 1, 1), Frequency: model.FrequencyWeekly, Interval: 2}

	out, err := Expand(ev, day(2024, 6, 1), day(2024, 6, 30))
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, o := range out {
		require.False(t, o.Date.Before(day(2024, 6, 1)))
		require.Equal(t, 0, civilDays(ev.Date, o.Date)%14)
	}
	require.LessOrEqual(t, len(out), 3)
}

func TestExpand_WeeklyInterval(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Date: day(2024, 1, 1), Frequency: model.FrequencyWeekly, Interval: 1}

	out, err := Expand(ev, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Equal(t, "2024-01-01\n2024-01-08\n2024-01-15\n2024-01-22\n2024-01-29\n", dates(out))
}

func TestExpand_MonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Title: "refill", Date: day(2024, 1, 31), Frequency: model.FrequencyMonthly, Interval: 1}

	out, err := Expand(ev, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	goldie.New(t).Assert(t, "monthly_31st_leap_year", []byte(dates(out)))
}

func TestExpand_MonthlyNonLeapFebruary(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Date: day(2023, 1, 31), Frequency: model.FrequencyMonthly, Interval: 1}

	out, err := Expand(ev, day(2023, 1, 1), day(2023, 4, 30))
	require.NoError(t, err)
	require.Equal(t, "2023-01-31\n2023-02-28\n2023-03-31\n2023-04-30\n", dates(out))
}

func TestExpand_MonthlyEveryThird(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Date: day(2024, 1, 15), Frequency: model.FrequencyMonthly, Interval: 3}

	out, err := Expand(ev, day(2024, 5, 1), day(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, "2024-07-15\n2024-10-15\n2025-01-15\n", dates(out))
}

func TestExpand_DSTKeepsWallClock(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ev := model.CalendarEvent{Date: time.Date(2024, 3, 9, 8, 0, 0, 0, loc), Frequency: model.FrequencyDaily, Interval: 1}

	out, err := Expand(ev, ev.Date, ev.Date.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, o := range out {
		require.Equal(t, 8, o.Date.Hour())
	}
}

func TestExpand_InvalidInterval(t *testing.T) {
	t.Parallel()
	for _, iv := range []int{0, -1} {
		ev := model.CalendarEvent{Date: day(2024, 1, 1), Frequency: model.FrequencyDaily, Interval: iv}
		_, err := Expand(ev, day(2024, 1, 1), day(2024, 2, 1))
		require.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestExpand_UnknownFrequencyAndReversedRange(t *testing.T) {
	t.Parallel()
	_, err := Expand(model.CalendarEvent{Date: day(2024, 1, 1), Frequency: "YEARLY", Interval: 1}, day(2024, 1, 1), day(2025, 1, 1))
	require.ErrorIs(t, err, errs.ErrValidation)

	out, err := Expand(model.CalendarEvent{Date: day(2024, 1, 1), Frequency: model.FrequencyDaily, Interval: 1}, day(2024, 2, 1), day(2024, 1, 1))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestExpand_Deterministic(t *testing.T) {
	t.Parallel()
	ev := model.CalendarEvent{Date: day(2024, 2, 29), Frequency: model.FrequencyMonthly, Interval: 12}
	a, err := Expand(ev, day(2024, 1, 1), day(2030, 1, 1))
	require.NoError(t, err)
	b, err := Expand(ev, day(2024, 1, 1), day(2030, 1, 1))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "2024-02-29\n2025-02-28\n2026-02-28\n2027-02-28\n2028-02-29\n2029-02-28\n", dates(a))
}
