package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openmeet/scheduler/internal/interval"
	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/recurrence"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/openmeet/scheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultGranularityMinutes = 15

// ScheduleService computes team availability: it aggregates each member's
// declared availability minus busy meetings, intersects the results across
// the team, and derives bookable meeting slots.
type ScheduleService struct {
	users    repository.UserRepository
	rules    repository.AvailabilityRepository
	meetings repository.MeetingRepository
	teams    repository.TeamRepository

	parallelism int
}

func NewScheduleService() *ScheduleService {
	return &ScheduleService{
		parallelism: 8,
	}
}

func (s *ScheduleService) WithUserRepo(r repository.UserRepository) *ScheduleService {
	s.users = r
	return s
}

func (s *ScheduleService) WithAvailabilityRepo(r repository.AvailabilityRepository) *ScheduleService {
	s.rules = r
	return s
}

func (s *ScheduleService) WithMeetingRepo(r repository.MeetingRepository) *ScheduleService {
	s.meetings = r
	return s
}

func (s *ScheduleService) WithTeamRepo(r repository.TeamRepository) *ScheduleService {
	s.teams = r
	return s
}

// WithParallelism bounds the per-member fan-out during team aggregation.
func (s *ScheduleService) WithParallelism(n int) *ScheduleService {
	if n > 0 {
		s.parallelism = n
	}
	return s
}

// TeamAvailability answers one availability query end to end: validation,
// per-member aggregation, team intersection and, when a meeting duration was
// requested, candidate slot generation.
func (s *ScheduleService) TeamAvailability(ctx context.Context, query *model.TeamAvailabilityQuery) (*model.TeamAvailability, *Error) {
	l := logger.FromContext(ctx)

	query = normalizeQuery(query)
	loc, serr := s.validateQuery(query)
	if serr != nil {
		return nil, serr
	}

	window, err := interval.New(query.WindowStart, query.WindowEnd)
	if err != nil {
		return nil, NewError(ErrorCodeInvalidArgument, "window: start must be before end")
	}

	l.Info("computing team availability",
		zap.String("team_id", query.TeamID),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End),
		zap.String("mode", string(query.Mode)))

	slots, serr := s.ComputeTeamFreeTime(ctx, query.TeamID, window, query.Mode, query.K)
	if serr != nil {
		return nil, serr
	}

	res := &model.TeamAvailability{
		TeamID: query.TeamID,
		Slots:  slots,
	}

	if query.DurationMinutes > 0 {
		res.Candidates = GenerateSlots(slots, query.DurationMinutes, query.GranularityMinutes, query.Preference, loc)
	}

	l.Debug("team availability computed",
		zap.String("team_id", query.TeamID),
		zap.Int("slots", len(slots)),
		zap.Int("candidates", len(res.Candidates)))

	return res, nil
}

func normalizeQuery(query *model.TeamAvailabilityQuery) *model.TeamAvailabilityQuery {
	q := *query
	if q.Mode == "" {
		q.Mode = model.ModeAll
	}
	if q.Preference == "" {
		q.Preference = model.PreferenceAny
	}
	if q.DurationMinutes > 0 && q.GranularityMinutes == 0 {
		q.GranularityMinutes = defaultGranularityMinutes
	}
	return &q
}

func (s *ScheduleService) validateQuery(query *model.TeamAvailabilityQuery) (*time.Location, *Error) {
	if !query.WindowStart.Before(query.WindowEnd) {
		return nil, NewError(ErrorCodeInvalidArgument, "window: start must be before end")
	}
	if query.DurationMinutes < 0 {
		return nil, NewError(ErrorCodeInvalidArgument, "duration: must be positive")
	}
	if query.DurationMinutes > 0 && query.GranularityMinutes <= 0 {
		return nil, NewError(ErrorCodeInvalidArgument, "granularity: must be positive")
	}
	switch query.Mode {
	case model.ModeAll:
	case model.ModeAnyK:
		if query.K < 1 {
			return nil, NewError(ErrorCodeInvalidArgument, "k: must be at least 1")
		}
	default:
		return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("mode: unknown mode %q", query.Mode))
	}
	switch query.Preference {
	case model.PreferenceAny, model.PreferenceMorning, model.PreferenceAfternoon, model.PreferenceEvening:
	default:
		return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("preference: unknown preference %q", query.Preference))
	}

	loc := time.UTC
	if query.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(query.Timezone); err != nil {
			return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("tz: unknown timezone %q", query.Timezone))
		}
	}
	return loc, nil
}

// ComputeFreeTime returns one user's free intervals inside the window:
// declared availability, expanded and merged, minus meeting busy time.
// A user with no availability rules is never free — absence of a declared
// window means unavailable, not unconstrained.
func (s *ScheduleService) ComputeFreeTime(ctx context.Context, userID string, window interval.Interval) ([]interval.Interval, *Error) {
	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return nil, s.upstreamError(ctx, "user store", userID, err)
	}

	loc := time.UTC
	if user.Timezone != "" {
		if parsed, err := time.LoadLocation(user.Timezone); err == nil {
			loc = parsed
		}
	}

	rules, err := s.rules.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.upstreamError(ctx, "availability store", userID, err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	available := make([]interval.Interval, 0, len(rules))
	for _, rule := range rules {
		expanded, err := recurrence.Expand(recurrence.Rule{
			DayOfWeek:     rule.DayOfWeek,
			StartMinute:   rule.StartMinute,
			EndMinute:     rule.EndMinute,
			Recurring:     rule.IsRecurring,
			EffectiveDate: rule.EffectiveDate,
		}, window, loc)
		if err != nil {
			return nil, NewError(ErrorCodeUnspecified, fmt.Sprintf("availability rule %s is malformed", rule.ID))
		}
		available = append(available, expanded...)
	}
	available = interval.Union(available)

	meetings, err := s.meetings.ListOverlapping(ctx, userID, window.Start, window.End)
	if err != nil {
		return nil, s.upstreamError(ctx, "meeting store", userID, err)
	}

	busy := make([]interval.Interval, 0, len(meetings))
	for _, m := range meetings {
		if m.StartTime.Before(m.EndTime) {
			busy = append(busy, interval.Interval{Start: m.StartTime.UTC(), End: m.EndTime.UTC()})
		}
	}

	free := make([]interval.Interval, 0, len(available))
	for _, a := range available {
		free = append(free, interval.Subtract(a, busy)...)
	}
	return free, nil
}

// ComputeTeamFreeTime intersects member free time across a team. ModeAll
// requires every member free; ModeAnyK requires at least k members free at
// once. Member aggregation fans out concurrently and joins before the
// intersection; on any member failure or cancellation no partial result is
// returned.
func (s *ScheduleService) ComputeTeamFreeTime(ctx context.Context, teamID string, window interval.Interval, mode model.IntersectionMode, k int) ([]*model.FreeSlot, *Error) {
	if _, err := s.teams.Get(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewError(ErrorCodeNotFound, fmt.Sprintf("team %s not found", teamID))
		}
		return nil, s.upstreamError(ctx, "team store", teamID, err)
	}

	members, err := s.teams.GetMemberIDs(ctx, teamID)
	if err != nil {
		return nil, s.upstreamError(ctx, "team store", teamID, err)
	}
	if len(members) == 0 {
		return []*model.FreeSlot{}, nil
	}
	if mode == model.ModeAnyK && k > len(members) {
		return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("k: %d exceeds team size %d", k, len(members)))
	}

	sort.Strings(members)

	free := make([][]interval.Interval, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, memberID := range members {
		g.Go(func() error {
			memberFree, serr := s.ComputeFreeTime(gctx, memberID, window)
			if serr != nil {
				return serr
			}
			free[i] = memberFree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cancelErr := cancellationError(ctx); cancelErr != nil {
			return nil, cancelErr
		}
		var serr *Error
		if errors.As(err, &serr) {
			return nil, serr
		}
		return nil, NewError(ErrorCodeUnspecified, "failed to compute member free time")
	}
	if cancelErr := cancellationError(ctx); cancelErr != nil {
		return nil, cancelErr
	}

	switch mode {
	case model.ModeAnyK:
		return sweepQuorum(members, free, k), nil
	default:
		return intersectAll(members, free), nil
	}
}

func (s *ScheduleService) upstreamError(ctx context.Context, store, id string, err error) *Error {
	if cancelErr := cancellationError(ctx); cancelErr != nil {
		return cancelErr
	}
	logger.FromContext(ctx).Error("collaborator fetch failed",
		zap.String("store", store),
		zap.String("id", id),
		zap.Error(err))
	return NewError(ErrorCodeUpstreamUnavailable, fmt.Sprintf("%s fetch failed for %s", store, id))
}

func cancellationError(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return NewError(ErrorCodeCancelled, "computation cancelled")
	}
	return nil
}

// intersectAll folds pairwise interval intersection across all members.
// Every resulting slot is tagged with the full member set.
func intersectAll(members []string, free [][]interval.Interval) []*model.FreeSlot {
	common := free[0]
	for _, memberFree := range free[1:] {
		common = intersectSets(common, memberFree)
		if len(common) == 0 {
			break
		}
	}

	slots := make([]*model.FreeSlot, 0, len(common))
	for _, iv := range common {
		slots = append(slots, &model.FreeSlot{
			Start:         iv.Start,
			End:           iv.End,
			FreeMemberIDs: append([]string(nil), members...),
		})
	}
	return slots
}

// intersectSets intersects two sorted, pairwise-disjoint interval sets with a
// two-pointer walk.
func intersectSets(a, b []interval.Interval) []interval.Interval {
	out := make([]interval.Interval, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if common, ok := interval.Intersect(a[i], b[j]); ok {
			out = append(out, common)
		}
		// Advance whichever set ends first; the other may still overlap
		// the next interval of the advanced set.
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

type boundaryEvent struct {
	at     time.Time
	member int
	open   bool
}

// sweepQuorum runs a boundary-event sweep over all members' free intervals,
// emitting a slot for every maximal span during which at least k members are
// free with an unchanged member set. Half-open intervals make touching
// boundaries unambiguous: a member whose window ends at t is not free at t.
func sweepQuorum(members []string, free [][]interval.Interval, k int) []*model.FreeSlot {
	events := make([]boundaryEvent, 0)
	for memberIdx, memberFree := range free {
		for _, iv := range memberFree {
			events = append(events, boundaryEvent{at: iv.Start, member: memberIdx, open: true})
			events = append(events, boundaryEvent{at: iv.End, member: memberIdx, open: false})
		}
	}
	if len(events) == 0 {
		return []*model.FreeSlot{}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].at.Before(events[j].at)
	})

	currentlyFree := make([]bool, len(members))
	count := 0
	slots := make([]*model.FreeSlot, 0)
	prev := events[0].at

	flush := func(until time.Time) {
		if count < k || !prev.Before(until) {
			return
		}
		ids := make([]string, 0, count)
		for idx, isFree := range currentlyFree {
			if isFree {
				ids = append(ids, members[idx])
			}
		}
		last := len(slots) - 1
		if last >= 0 && slots[last].End.Equal(prev) && equalMembers(slots[last].FreeMemberIDs, ids) {
			slots[last].End = until
			return
		}
		slots = append(slots, &model.FreeSlot{Start: prev, End: until, FreeMemberIDs: ids})
	}

	for i := 0; i < len(events); {
		at := events[i].at
		flush(at)
		// Apply every event at this instant before emitting the next span.
		for i < len(events) && events[i].at.Equal(at) {
			if events[i].open {
				currentlyFree[events[i].member] = true
				count++
			} else {
				currentlyFree[events[i].member] = false
				count--
			}
			i++
		}
		prev = at
	}
	return slots
}

func equalMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
