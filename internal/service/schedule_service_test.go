package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmeet/scheduler/internal/interval"
	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 2025-06-02.
func monday(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

type scheduleMocks struct {
	users    *MockUserRepository
	rules    *MockAvailabilityRepository
	meetings *MockMeetingRepository
	teams    *MockTeamRepository
}

func newScheduleService() (*ScheduleService, *scheduleMocks) {
	m := &scheduleMocks{
		users:    &MockUserRepository{},
		rules:    &MockAvailabilityRepository{},
		meetings: &MockMeetingRepository{},
		teams:    &MockTeamRepository{},
	}
	svc := NewScheduleService().
		WithUserRepo(m.users).
		WithAvailabilityRepo(m.rules).
		WithMeetingRepo(m.meetings).
		WithTeamRepo(m.teams)
	return svc, m
}

func (m *scheduleMocks) expectTeam(teamID string, memberIDs []string) {
	m.teams.On("Get", mock.Anything, teamID).Return(&repository.Team{ID: teamID, Name: "core", OwnerID: "user-a"}, nil)
	m.teams.On("GetMemberIDs", mock.Anything, teamID).Return(memberIDs, nil)
}

func (m *scheduleMocks) expectMember(userID, timezone string, rules []*repository.AvailabilityRule, meetings []*repository.Meeting) {
	m.users.On("Get", mock.Anything, userID).Return(&repository.User{
		ID:       userID,
		Email:    userID + "@example.com",
		Name:     userID,
		Timezone: timezone,
		IsActive: true,
	}, nil)
	m.rules.On("ListByUser", mock.Anything, userID).Return(rules, nil)
	m.meetings.On("ListOverlapping", mock.Anything, userID, mock.Anything, mock.Anything).Return(meetings, nil)
}

func mondayRule(startMinute, endMinute int) *repository.AvailabilityRule {
	return &repository.AvailabilityRule{
		ID:          "rule",
		DayOfWeek:   0,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		IsRecurring: true,
	}
}

func mondayWindow(t *testing.T) interval.Interval {
	t.Helper()
	w, err := interval.New(monday(0, 0), monday(0, 0).AddDate(0, 0, 1))
	require.NoError(t, err)
	return w
}

func TestComputeFreeTime(t *testing.T) {
	tests := []struct {
		name     string
		rules    []*repository.AvailabilityRule
		meetings []*repository.Meeting
		expected []interval.Interval
	}{
		{
			name:     "availability with no meetings is all free",
			rules:    []*repository.AvailabilityRule{mondayRule(9*60, 12*60)},
			meetings: nil,
			expected: []interval.Interval{{Start: monday(9, 0), End: monday(12, 0)}},
		},
		{
			name:  "meeting splits the availability window",
			rules: []*repository.AvailabilityRule{mondayRule(9*60, 17*60)},
			meetings: []*repository.Meeting{
				{ID: "m1", StartTime: monday(12, 0), EndTime: monday(13, 0)},
			},
			expected: []interval.Interval{
				{Start: monday(9, 0), End: monday(12, 0)},
				{Start: monday(13, 0), End: monday(17, 0)},
			},
		},
		{
			name:     "no rules means never free despite no meetings",
			rules:    []*repository.AvailabilityRule{},
			meetings: nil,
			expected: nil,
		},
		{
			name: "overlapping rules merge before busy subtraction",
			rules: []*repository.AvailabilityRule{
				mondayRule(9*60, 12*60),
				mondayRule(11*60, 15*60),
			},
			meetings: []*repository.Meeting{
				{ID: "m1", StartTime: monday(10, 0), EndTime: monday(11, 0)},
			},
			expected: []interval.Interval{
				{Start: monday(9, 0), End: monday(10, 0)},
				{Start: monday(11, 0), End: monday(15, 0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newScheduleService()
			m.expectMember("user-a", "", tt.rules, tt.meetings)

			got, serr := svc.ComputeFreeTime(context.Background(), "user-a", mondayWindow(t))
			require.Nil(t, serr)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeFreeTimeUserTimezone(t *testing.T) {
	svc, m := newScheduleService()
	// Monday 09:00-17:00 Berlin wall clock is 07:00-15:00 UTC in June.
	m.expectMember("user-a", "Europe/Berlin", []*repository.AvailabilityRule{mondayRule(9*60, 17*60)}, nil)

	got, serr := svc.ComputeFreeTime(context.Background(), "user-a", mondayWindow(t))
	require.Nil(t, serr)
	require.Len(t, got, 1)
	assert.Equal(t, monday(7, 0), got[0].Start)
	assert.Equal(t, monday(15, 0), got[0].End)
}

func TestComputeFreeTimeUpstreamFailure(t *testing.T) {
	svc, m := newScheduleService()
	m.users.On("Get", mock.Anything, "user-a").Return(&repository.User{ID: "user-a"}, nil)
	m.rules.On("ListByUser", mock.Anything, "user-a").Return(nil, errors.New("connection refused"))

	_, serr := svc.ComputeFreeTime(context.Background(), "user-a", mondayWindow(t))
	require.NotNil(t, serr)
	assert.Equal(t, ErrorCodeUpstreamUnavailable, serr.Code)
	assert.Contains(t, serr.Message, "availability store")
	assert.Contains(t, serr.Message, "user-a")
}

func TestComputeTeamFreeTimeAll(t *testing.T) {
	// Member A free Mon 09:00-12:00, member B free Mon 10:00-15:00,
	// no meetings: common free time is 10:00-12:00.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 15*60)}, nil)

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAll, 0)
	require.Nil(t, serr)

	require.Len(t, got, 1)
	assert.Equal(t, monday(10, 0), got[0].Start)
	assert.Equal(t, monday(12, 0), got[0].End)
	assert.Equal(t, []string{"user-a", "user-b"}, got[0].FreeMemberIDs)
}

func TestComputeTeamFreeTimeAllWithMeeting(t *testing.T) {
	// Same as above, but B sits in a meeting 10:00-11:00: only 11:00-12:00 remains.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 15*60)}, []*repository.Meeting{
		{ID: "m1", StartTime: monday(10, 0), EndTime: monday(11, 0)},
	})

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAll, 0)
	require.Nil(t, serr)

	require.Len(t, got, 1)
	assert.Equal(t, monday(11, 0), got[0].Start)
	assert.Equal(t, monday(12, 0), got[0].End)
	assert.Equal(t, []string{"user-a", "user-b"}, got[0].FreeMemberIDs)
}

func TestComputeTeamFreeTimeQuorum(t *testing.T) {
	// Disjoint members with k=1 yield two slots, each tagged with its member.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 10*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(11*60, 12*60)}, nil)

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAnyK, 1)
	require.Nil(t, serr)

	require.Len(t, got, 2)
	assert.Equal(t, monday(9, 0), got[0].Start)
	assert.Equal(t, monday(10, 0), got[0].End)
	assert.Equal(t, []string{"user-a"}, got[0].FreeMemberIDs)
	assert.Equal(t, monday(11, 0), got[1].Start)
	assert.Equal(t, monday(12, 0), got[1].End)
	assert.Equal(t, []string{"user-b"}, got[1].FreeMemberIDs)
}

func TestComputeTeamFreeTimeQuorumMemberSetChanges(t *testing.T) {
	// A free 09:00-12:00, B free 10:00-13:00, k=1: three spans with
	// distinct member sets, covering 09:00-13:00 without gaps.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 13*60)}, nil)

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAnyK, 1)
	require.Nil(t, serr)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"user-a"}, got[0].FreeMemberIDs)
	assert.Equal(t, monday(9, 0), got[0].Start)
	assert.Equal(t, []string{"user-a", "user-b"}, got[1].FreeMemberIDs)
	assert.Equal(t, monday(10, 0), got[1].Start)
	assert.Equal(t, []string{"user-b"}, got[2].FreeMemberIDs)
	assert.Equal(t, monday(12, 0), got[2].Start)
	assert.Equal(t, monday(13, 0), got[2].End)
}

func TestComputeTeamFreeTimeQuorumTwo(t *testing.T) {
	// k=2 keeps only the span where both members overlap.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 13*60)}, nil)

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAnyK, 2)
	require.Nil(t, serr)

	require.Len(t, got, 1)
	assert.Equal(t, monday(10, 0), got[0].Start)
	assert.Equal(t, monday(12, 0), got[0].End)
	assert.Equal(t, []string{"user-a", "user-b"}, got[0].FreeMemberIDs)
}

func TestComputeTeamFreeTimeClosedWorldMember(t *testing.T) {
	// A member who never declared availability blocks the whole team in ALL mode.
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 17*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{}, nil)

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAll, 0)
	require.Nil(t, serr)
	assert.Empty(t, got)
}

func TestComputeTeamFreeTimeEmptyTeam(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{})

	got, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAll, 0)
	require.Nil(t, serr)
	assert.Empty(t, got, "an empty team has no free time, but that is not an error")
}

func TestComputeTeamFreeTimeTeamNotFound(t *testing.T) {
	svc, m := newScheduleService()
	m.teams.On("Get", mock.Anything, "missing").Return(nil, repository.ErrNotFound)

	_, serr := svc.ComputeTeamFreeTime(context.Background(), "missing", mondayWindow(t), model.ModeAll, 0)
	require.NotNil(t, serr)
	assert.Equal(t, ErrorCodeNotFound, serr.Code)
}

func TestComputeTeamFreeTimeQuorumBounds(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})

	_, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAnyK, 3)
	require.NotNil(t, serr)
	assert.Equal(t, ErrorCodeInvalidArgument, serr.Code)
	assert.Contains(t, serr.Message, "k")
}

func TestComputeTeamFreeTimeUpstreamFailurePropagates(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.users.On("Get", mock.Anything, "user-b").Return(&repository.User{ID: "user-b"}, nil)
	m.rules.On("ListByUser", mock.Anything, "user-b").Return(nil, errors.New("timeout"))

	_, serr := svc.ComputeTeamFreeTime(context.Background(), "t1", mondayWindow(t), model.ModeAll, 0)
	require.NotNil(t, serr)
	assert.Equal(t, ErrorCodeUpstreamUnavailable, serr.Code)
	assert.Contains(t, serr.Message, "user-b")
}

func TestComputeTeamFreeTimeCancelled(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, serr := svc.ComputeTeamFreeTime(ctx, "t1", mondayWindow(t), model.ModeAll, 0)
	require.NotNil(t, serr)
	assert.Equal(t, ErrorCodeCancelled, serr.Code)
	assert.Nil(t, got, "no partial results on cancellation")
}

func TestTeamAvailabilityValidation(t *testing.T) {
	tests := []struct {
		name    string
		query   *model.TeamAvailabilityQuery
		message string
	}{
		{
			name: "inverted window",
			query: &model.TeamAvailabilityQuery{
				TeamID:      "t1",
				WindowStart: monday(12, 0),
				WindowEnd:   monday(9, 0),
			},
			message: "window",
		},
		{
			name: "negative duration",
			query: &model.TeamAvailabilityQuery{
				TeamID:          "t1",
				WindowStart:     monday(0, 0),
				WindowEnd:       monday(23, 0),
				DurationMinutes: -30,
			},
			message: "duration",
		},
		{
			name: "non-positive granularity",
			query: &model.TeamAvailabilityQuery{
				TeamID:             "t1",
				WindowStart:        monday(0, 0),
				WindowEnd:          monday(23, 0),
				DurationMinutes:    30,
				GranularityMinutes: -15,
			},
			message: "granularity",
		},
		{
			name: "quorum below one",
			query: &model.TeamAvailabilityQuery{
				TeamID:      "t1",
				WindowStart: monday(0, 0),
				WindowEnd:   monday(23, 0),
				Mode:        model.ModeAnyK,
				K:           0,
			},
			message: "k",
		},
		{
			name: "unknown mode",
			query: &model.TeamAvailabilityQuery{
				TeamID:      "t1",
				WindowStart: monday(0, 0),
				WindowEnd:   monday(23, 0),
				Mode:        "SOME",
			},
			message: "mode",
		},
		{
			name: "unknown preference",
			query: &model.TeamAvailabilityQuery{
				TeamID:      "t1",
				WindowStart: monday(0, 0),
				WindowEnd:   monday(23, 0),
				Preference:  "midnight",
			},
			message: "preference",
		},
		{
			name: "unknown timezone",
			query: &model.TeamAvailabilityQuery{
				TeamID:      "t1",
				WindowStart: monday(0, 0),
				WindowEnd:   monday(23, 0),
				Timezone:    "Mars/Olympus",
			},
			message: "tz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newScheduleService()

			_, serr := svc.TeamAvailability(context.Background(), tt.query)
			require.NotNil(t, serr)
			assert.Equal(t, ErrorCodeInvalidArgument, serr.Code)
			assert.Contains(t, serr.Message, tt.message)
		})
	}
}

func TestTeamAvailabilityWithCandidates(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 15*60)}, nil)

	got, serr := svc.TeamAvailability(context.Background(), &model.TeamAvailabilityQuery{
		TeamID:             "t1",
		WindowStart:        monday(0, 0),
		WindowEnd:          monday(0, 0).AddDate(0, 0, 1),
		DurationMinutes:    30,
		GranularityMinutes: 30,
	})
	require.Nil(t, serr)

	require.Len(t, got.Slots, 1)
	assert.Equal(t, []time.Time{
		monday(10, 0),
		monday(10, 30),
		monday(11, 0),
		monday(11, 30),
	}, got.Candidates, "a meeting starting at 11:30 ends exactly at 12:00 and is still valid")
}

func TestTeamAvailabilityIdempotent(t *testing.T) {
	svc, m := newScheduleService()
	m.expectTeam("t1", []string{"user-a", "user-b"})
	m.expectMember("user-a", "", []*repository.AvailabilityRule{mondayRule(9*60, 12*60)}, nil)
	m.expectMember("user-b", "", []*repository.AvailabilityRule{mondayRule(10*60, 15*60)}, nil)

	query := &model.TeamAvailabilityQuery{
		TeamID:      "t1",
		WindowStart: monday(0, 0),
		WindowEnd:   monday(0, 0).AddDate(0, 0, 1),
		Mode:        model.ModeAll,
	}

	first, serr := svc.TeamAvailability(context.Background(), query)
	require.Nil(t, serr)
	second, serr := svc.TeamAvailability(context.Background(), query)
	require.Nil(t, serr)

	assert.Equal(t, first, second, "identical inputs over an unchanged snapshot yield identical output")
}
