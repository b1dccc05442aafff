package interval

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalid indicates an interval whose start is not strictly before its end.
var ErrInvalid = errors.New("interval: start must be before end")

// Interval is a half-open time range [Start, End). Instants are stored in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds a valid interval, normalizing both bounds to UTC.
// Zero-length and inverted ranges are rejected.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrInvalid
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether iv and other share any point. Touching endpoints
// do not overlap under half-open semantics.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Intersect returns the common part of a and b. The second result is false
// when the intervals are disjoint, including the touching-endpoint case.
func Intersect(a, b Interval) (Interval, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Union merges overlapping and adjacent intervals. The result is sorted by
// start and no two result intervals touch or overlap. The input is not mutated.
func Union(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, iv := range sorted[1:] {
		// Adjacent intervals merge too: [a,b) + [b,c) = [a,c).
		if !iv.Start.After(current.End) {
			if iv.End.After(current.End) {
				current.End = iv.End
			}
			continue
		}
		out = append(out, current)
		current = iv
	}
	return append(out, current)
}

// Subtract removes every overlapping portion of bs from a, possibly splitting
// a into several pieces. The result intervals are fully contained in a and
// overlap none of bs; it is empty when bs covers a entirely.
func Subtract(a Interval, bs []Interval) []Interval {
	remaining := []Interval{a}
	for _, b := range Union(bs) {
		next := remaining[:0:0]
		for _, r := range remaining {
			if !r.Overlaps(b) {
				next = append(next, r)
				continue
			}
			if r.Start.Before(b.Start) {
				next = append(next, Interval{Start: r.Start, End: b.Start})
			}
			if b.End.Before(r.End) {
				next = append(next, Interval{Start: b.End, End: r.End})
			}
		}
		remaining = next
		if len(remaining) == 0 {
			break
		}
	}
	return remaining
}

// TotalDuration sums the covered duration of a set of pairwise-disjoint
// intervals, such as the output of Union.
func TotalDuration(in []Interval) time.Duration {
	var total time.Duration
	for _, iv := range in {
		total += iv.Duration()
	}
	return total
}
