package service

import (
	"sort"
	"time"

	"github.com/openmeet/scheduler/internal/model"
)

// Midpoints of the preference bands, in minutes from local midnight.
var preferenceMidpoints = map[model.SlotPreference]int{
	model.PreferenceMorning:   10 * 60,
	model.PreferenceAfternoon: 15 * 60,
	model.PreferenceEvening:   19 * 60,
}

// GenerateSlots derives candidate meeting start times from team free slots.
// Candidates step through each slot at the given granularity; a start is
// valid while start+duration fits inside the slot, end-inclusive. Slots
// shorter than the requested duration contribute nothing.
//
// With a band preference, candidates are ranked by the distance between
// their local time of day (in loc) and the band midpoint, earliest first on
// ties. PreferenceAny keeps chronological order.
func GenerateSlots(slots []*model.FreeSlot, durationMinutes, granularityMinutes int, preference model.SlotPreference, loc *time.Location) []time.Time {
	if durationMinutes <= 0 || granularityMinutes <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	duration := time.Duration(durationMinutes) * time.Minute
	granularity := time.Duration(granularityMinutes) * time.Minute

	candidates := make([]time.Time, 0)
	for _, slot := range slots {
		for start := slot.Start; !start.Add(duration).After(slot.End); start = start.Add(granularity) {
			candidates = append(candidates, start)
		}
	}

	midpoint, ranked := preferenceMidpoints[preference]
	if !ranked {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := bandDistance(candidates[i], midpoint, loc)
		dj := bandDistance(candidates[j], midpoint, loc)
		if di != dj {
			return di < dj
		}
		return candidates[i].Before(candidates[j])
	})
	return candidates
}

// bandDistance is the absolute distance, in minutes, between t's local time
// of day and a band midpoint.
func bandDistance(t time.Time, midpoint int, loc *time.Location) int {
	local := t.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	d := minuteOfDay - midpoint
	if d < 0 {
		d = -d
	}
	return d
}
