package recurrence

import (
	"time"

	"github.com/openmeet/scheduler/internal/interval"
	"github.com/pkg/errors"
)

// ErrInvalidDayOfWeek indicates a weekday outside the 0 (Monday) .. 6 (Sunday) range.
var ErrInvalidDayOfWeek = errors.New("recurrence: day of week must be in [0,6]")

// ErrInvalidTimeOfDay indicates a rule whose start does not precede its end.
var ErrInvalidTimeOfDay = errors.New("recurrence: start time of day must be before end time of day")

// ErrMissingEffectiveDate indicates a one-off rule without a concrete date.
var ErrMissingEffectiveDate = errors.New("recurrence: one-off rule requires an effective date")

// Rule is a weekly availability window owned by a single user. Times of day
// are wall-clock minutes from midnight, interpreted in the owner's timezone.
// Monday is day 0 to match the availability data model, unlike time.Weekday.
// EffectiveDate names a calendar date; its clock and zone are ignored.
type Rule struct {
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	Recurring     bool
	EffectiveDate *time.Time
}

func (r Rule) validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return ErrInvalidDayOfWeek
	}
	if r.StartMinute >= r.EndMinute {
		return ErrInvalidTimeOfDay
	}
	if !r.Recurring && r.EffectiveDate == nil {
		return ErrMissingEffectiveDate
	}
	return nil
}

// mondayIndexed converts time.Weekday (Sunday=0) to the rule encoding (Monday=0).
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Expand materializes the rule's occurrences inside window, interpreting
// wall-clock times in loc (UTC when nil). Occurrences are clipped to the
// window and returned sorted by start.
//
// An occurrence keeps its wall-clock bounds across DST transitions, so its
// UTC duration shrinks or grows on a transition day. That is the intended
// semantics for human-declared availability and must not be normalized away.
func Expand(rule Rule, window interval.Interval, loc *time.Location) ([]interval.Interval, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	if !rule.Recurring {
		// EffectiveDate is a calendar date: only its date components count,
		// so a UTC-midnight value never slides onto the previous local day.
		y, m, d := rule.EffectiveDate.Date()
		day := time.Date(y, m, d, 12, 0, 0, 0, loc)
		occ, ok := occurrenceOn(day, rule, loc, window)
		if !ok {
			return nil, nil
		}
		if !inWindow(day, window, loc) {
			return nil, nil
		}
		return []interval.Interval{occ}, nil
	}

	out := make([]interval.Interval, 0)
	startLocal := window.Start.In(loc)
	endLocal := window.End.In(loc)
	// The cursor is anchored at noon: local midnight can be erased by a DST
	// jump, which would skew both the weekday and the date arithmetic.
	day := time.Date(startLocal.Year(), startLocal.Month(), startLocal.Day(), 12, 0, 0, 0, loc)
	for dateCmp(day, endLocal) <= 0 {
		if mondayIndexed(day.Weekday()) == rule.DayOfWeek && inWindow(day, window, loc) {
			if occ, ok := occurrenceOn(day, rule, loc, window); ok {
				out = append(out, occ)
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 12, 0, 0, 0, loc)
	}
	return out, nil
}

// dateCmp compares the calendar dates of a and b, ignoring time of day.
func dateCmp(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay - by
	}
	if am != bm {
		return int(am) - int(bm)
	}
	return ad - bd
}

// wallBefore reports whether t's wall clock reads earlier than the given
// minute of day on the given calendar date.
func wallBefore(t, day time.Time, minute int) bool {
	if c := dateCmp(t, day); c != 0 {
		return c < 0
	}
	return t.Hour()*60+t.Minute() < minute
}

func wallEquals(t, day time.Time, minute int) bool {
	return dateCmp(t, day) == 0 && t.Hour()*60+t.Minute() == minute
}

// resolveWall returns the instant whose wall clock in loc reads the given
// minute of day on the calendar date of day. A spring-forward jump can erase
// that wall time entirely (zones like America/Santiago jump at midnight); the
// bound is then clamped forward to the transition instant, so it stays on the
// requested date instead of being normalized onto the previous one.
func resolveWall(day time.Time, minute int, loc *time.Location) time.Time {
	t := time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
	if wallEquals(t, day, minute) {
		return t
	}
	lo := t.Add(-26 * time.Hour).Unix()
	hi := t.Add(26 * time.Hour).Unix()
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if wallBefore(time.Unix(mid, 0).In(loc), day, minute) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return time.Unix(hi, 0).In(loc)
}

// inWindow reports whether the calendar date of day falls in [window.Start, window.End)
// when both bounds are evaluated in loc.
func inWindow(day time.Time, window interval.Interval, loc *time.Location) bool {
	if dateCmp(day, window.Start.In(loc)) < 0 {
		return false
	}
	end := window.End.In(loc)
	if c := dateCmp(day, end); c != 0 {
		return c < 0
	}
	// The end date itself counts only when the window extends past its
	// first existing instant.
	return window.End.After(resolveWall(end, 0, loc))
}

// occurrenceOn builds the rule's occurrence on the given calendar date,
// clipped to the query window. Bounds keep their wall-clock reading on that
// date, with nonexistent wall times clamped by resolveWall.
func occurrenceOn(day time.Time, rule Rule, loc *time.Location, window interval.Interval) (interval.Interval, bool) {
	start := resolveWall(day, rule.StartMinute, loc)
	end := resolveWall(day, rule.EndMinute, loc)
	if !start.Before(end) {
		// A DST jump can collapse a short window entirely.
		return interval.Interval{}, false
	}
	occ := interval.Interval{Start: start.UTC(), End: end.UTC()}
	return interval.Intersect(occ, window)
}
