// Package recurrence expands recurring calendar events into concrete occurrences.
//
// Occurrence k of a recurring event is computed from the event's own date
// (anchor + k*interval units), never from the previous occurrence, so
// month-end clamping does not drift: a monthly event on Jan 31 yields
// Feb 28 (Feb 29 in leap years), Mar 31, Apr 30 and so on. Daily and weekly
// steps use calendar-day addition, which keeps the wall-clock time across
// DST changes.
package recurrence

import (
	"time"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

// MaxOccurrences bounds a single expansion.
const MaxOccurrences = 1000

// Expand returns the occurrences of ev inside [rangeStart, rangeEnd], inclusive,
// capped at MaxOccurrences.
func Expand(ev model.CalendarEvent, rangeStart, rangeEnd time.Time) ([]model.CalendarEvent, error) {
	return ExpandLimit(ev, rangeStart, rangeEnd, MaxOccurrences)
}

// ExpandLimit is Expand with an explicit occurrence cap.
// A non-positive interval on a recurring event is rejected rather than clamped.
func ExpandLimit(ev model.CalendarEvent, rangeStart, rangeEnd time.Time, limit int) ([]model.CalendarEvent, error) {
	if limit <= 0 {
		return nil, errs.Validationf("occurrence limit must be positive, got %d", limit)
	}
	switch ev.Frequency {
	case model.FrequencyNone, "":
		if inRange(ev.Date, rangeStart, rangeEnd) {
			return []model.CalendarEvent{ev}, nil
		}
		return nil, nil
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return nil, errs.Validationf("unknown recurrence frequency %q", ev.Frequency)
	}
	if ev.Interval <= 0 {
		return nil, errs.Validationf("recurrence interval must be positive, got %d", ev.Interval)
	}
	if rangeEnd.Before(rangeStart) {
		return nil, nil
	}

	k := firstIndex(ev, rangeStart)
	var out []model.CalendarEvent
	for len(out) < limit {
		d := occurrence(ev, k)
		if d.After(rangeEnd) {
			break
		}
		if !d.Before(rangeStart) {
			occ := ev
			occ.Date = d
			out = append(out, occ)
		}
		k++
	}
	return out, nil
}

// occurrence returns the date of the k-th step from the anchor.
func occurrence(ev model.CalendarEvent, k int) time.Time {
	switch ev.Frequency {
	case model.FrequencyDaily:
		return ev.Date.AddDate(0, 0, k*ev.Interval)
	case model.FrequencyWeekly:
		return ev.Date.AddDate(0, 0, 7*k*ev.Interval)
	default:
		return addMonthsClamped(ev.Date, k*ev.Interval)
	}
}

// firstIndex skips steps that end before rangeStart without walking them.
// The estimate never overshoots; the caller's loop discards the few early ones.
func firstIndex(ev model.CalendarEvent, rangeStart time.Time) int {
	if !ev.Date.Before(rangeStart) {
		return 0
	}
	var units, step int
	switch ev.Frequency {
	case model.FrequencyDaily:
		units, step = civilDays(ev.Date, rangeStart), ev.Interval
	case model.FrequencyWeekly:
		units, step = civilDays(ev.Date, rangeStart), 7*ev.Interval
	default:
		units, step = monthsBetween(ev.Date, rangeStart), ev.Interval
	}
	k := units/step - 1
	if k < 0 {
		return 0
	}
	return k
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilDays counts calendar days from a to b in a's location.
func civilDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func monthsBetween(a, b time.Time) int {
	ay, am, _ := a.Date()
	by, bm, _ := b.In(a.Location()).Date()
	return (by-ay)*12 + int(bm-am)
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
