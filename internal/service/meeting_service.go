package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/openmeet/scheduler/internal/db"
	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/openmeet/scheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MeetingService manages meetings and their attendee sets. A meeting occupies
// busy time for every attendee; deleting one frees that time immediately.
type MeetingService struct {
	tx db.Transactor

	meetings repository.MeetingRepository
}

func NewMeetingService(tx db.Transactor) *MeetingService {
	return &MeetingService{tx: tx}
}

func (m *MeetingService) WithMeetingRepo(r repository.MeetingRepository) *MeetingService {
	m.meetings = r
	return m
}

func (m *MeetingService) GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, *Error) {
	meeting, err := m.meetings.Get(ctx, meetingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "meeting not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get meeting", zap.String("meeting_id", meetingID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get meeting")
	}

	attendees, err := m.meetings.GetAttendees(ctx, meetingID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get attendees", zap.String("meeting_id", meetingID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get meeting attendees")
	}

	return meetingToModel(meeting, attendees), nil
}

func (m *MeetingService) CreateMeeting(ctx context.Context, meeting *model.Meeting) (*model.Meeting, *Error) {
	l := logger.FromContext(ctx)

	if !meeting.StartTime.Before(meeting.EndTime) {
		return nil, NewError(ErrorCodeInvalidArgument, "start_time: must be before end_time")
	}

	stored := &repository.Meeting{
		ID:         uuid.NewString(),
		Title:      meeting.Title,
		StartTime:  meeting.StartTime.UTC(),
		EndTime:    meeting.EndTime.UTC(),
		CalendarID: meeting.CalendarID,
		TeamID:     meeting.TeamID,
	}

	l.Info("creating meeting",
		zap.String("meeting_id", stored.ID),
		zap.String("title", stored.Title),
		zap.Int("attendees", len(meeting.AttendeeIDs)))

	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := m.meetings.Create(txCtx, stored); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "calendar or team not found")
			}
			l.Error("failed to create meeting", zap.String("meeting_id", stored.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create meeting")
		}
		if err := m.meetings.SetAttendees(txCtx, stored.ID, meeting.AttendeeIDs); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "attendee not found")
			}
			l.Error("failed to set attendees", zap.String("meeting_id", stored.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to set meeting attendees")
		}
		return nil
	})

	var serr *Error
	if errors.As(err, &serr) {
		return nil, serr
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to create meeting")
	}

	return meetingToModel(stored, meeting.AttendeeIDs), nil
}

func (m *MeetingService) UpdateMeeting(ctx context.Context, meeting *model.Meeting) (*model.Meeting, *Error) {
	l := logger.FromContext(ctx)

	if !meeting.StartTime.Before(meeting.EndTime) {
		return nil, NewError(ErrorCodeInvalidArgument, "start_time: must be before end_time")
	}

	l.Info("updating meeting", zap.String("meeting_id", meeting.ID))

	var updated *repository.Meeting
	start := meeting.StartTime.UTC()
	end := meeting.EndTime.UTC()

	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = m.meetings.Patch(txCtx, &repository.MeetingPatch{
			ID:        meeting.ID,
			Title:     &meeting.Title,
			StartTime: &start,
			EndTime:   &end,
		})
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "meeting not found")
		}
		if err != nil {
			l.Error("failed to update meeting", zap.String("meeting_id", meeting.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update meeting")
		}

		if meeting.AttendeeIDs != nil {
			if err = m.meetings.SetAttendees(txCtx, meeting.ID, meeting.AttendeeIDs); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return NewError(ErrorCodeNotFound, "attendee not found")
				}
				l.Error("failed to set attendees", zap.String("meeting_id", meeting.ID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to set meeting attendees")
			}
		}
		return nil
	})

	var serr *Error
	if errors.As(err, &serr) {
		return nil, serr
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to update meeting")
	}

	attendees := meeting.AttendeeIDs
	if attendees == nil {
		if attendees, err = m.meetings.GetAttendees(ctx, meeting.ID); err != nil {
			l.Error("failed to get attendees", zap.String("meeting_id", meeting.ID), zap.Error(err))
			return nil, NewError(ErrorCodeUnspecified, "failed to get meeting attendees")
		}
	}

	return meetingToModel(updated, attendees), nil
}

func (m *MeetingService) DeleteMeeting(ctx context.Context, meetingID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("deleting meeting", zap.String("meeting_id", meetingID))

	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := m.meetings.Delete(txCtx, meetingID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "meeting not found")
			}
			l.Error("failed to delete meeting", zap.String("meeting_id", meetingID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete meeting")
		}
		return nil
	})

	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to delete meeting")
	}
	return nil
}

func meetingToModel(meeting *repository.Meeting, attendees []string) *model.Meeting {
	return &model.Meeting{
		ID:          meeting.ID,
		Title:       meeting.Title,
		StartTime:   meeting.StartTime,
		EndTime:     meeting.EndTime,
		CalendarID:  meeting.CalendarID,
		TeamID:      meeting.TeamID,
		AttendeeIDs: attendees,
	}
}
