package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityServiceListRules(t *testing.T) {
	rules := &MockAvailabilityRepository{}
	svc := NewAvailabilityService().WithAvailabilityRepo(rules)

	rules.On("ListByUser", mock.Anything, "user-a").Return([]*repository.AvailabilityRule{
		{ID: "r1", UserID: "user-a", DayOfWeek: 0, StartMinute: 9 * 60, EndMinute: 17 * 60, IsRecurring: true},
	}, nil)

	got, serr := svc.ListRules(context.Background(), "user-a")
	require.Nil(t, serr)

	require.Len(t, got, 1)
	assert.Equal(t, "09:00", got[0].StartTime)
	assert.Equal(t, "17:00", got[0].EndTime)
	assert.True(t, got[0].IsRecurring)
}

func TestAvailabilityServiceCreateRule(t *testing.T) {
	effective := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		rule          *model.AvailabilityRule
		setupMocks    func(*MockAvailabilityRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success",
			rule: &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00", IsRecurring: true},
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name: "one-off with effective date",
			rule: &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 2, StartTime: "14:00", EndTime: "16:00", EffectiveDate: &effective},
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:          "day of week out of range",
			rule:          &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 9, StartTime: "09:00", EndTime: "17:00", IsRecurring: true},
			setupMocks:    func(r *MockAvailabilityRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidArgument,
		},
		{
			name:          "inverted times",
			rule:          &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 0, StartTime: "17:00", EndTime: "09:00", IsRecurring: true},
			setupMocks:    func(r *MockAvailabilityRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidArgument,
		},
		{
			name:          "unparseable time of day",
			rule:          &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 0, StartTime: "morning", EndTime: "17:00", IsRecurring: true},
			setupMocks:    func(r *MockAvailabilityRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidArgument,
		},
		{
			name:          "one-off without effective date",
			rule:          &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00"},
			setupMocks:    func(r *MockAvailabilityRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidArgument,
		},
		{
			name: "owning user missing",
			rule: &model.AvailabilityRule{UserID: "ghost", DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00", IsRecurring: true},
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Create", mock.Anything, mock.Anything).Return(repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name: "repository failure",
			rule: &model.AvailabilityRule{UserID: "user-a", DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00", IsRecurring: true},
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Create", mock.Anything, mock.Anything).Return(errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := &MockAvailabilityRepository{}
			tt.setupMocks(rules)
			svc := NewAvailabilityService().WithAvailabilityRepo(rules)

			got, serr := svc.CreateRule(context.Background(), tt.rule)

			if tt.expectedError {
				require.NotNil(t, serr)
				assert.Equal(t, tt.errorCode, serr.Code)
				return
			}
			require.Nil(t, serr)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.rule.StartTime, got.StartTime)
			rules.AssertExpectations(t)
		})
	}
}

func TestAvailabilityServiceCreateRuleNormalizesEffectiveDate(t *testing.T) {
	rules := &MockAvailabilityRepository{}
	svc := NewAvailabilityService().WithAvailabilityRepo(rules)

	var stored *repository.AvailabilityRule
	rules.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*repository.AvailabilityRule)
	}).Return(nil)

	// A client naming June 4 at local midnight in a UTC-4 zone still gets a
	// June 4 rule, not June 3.
	effective := time.Date(2025, 6, 4, 0, 0, 0, 0, time.FixedZone("CLT", -4*3600))
	_, serr := svc.CreateRule(context.Background(), &model.AvailabilityRule{
		UserID: "user-a", DayOfWeek: 2, StartTime: "14:00", EndTime: "16:00", EffectiveDate: &effective,
	})
	require.Nil(t, serr)

	require.NotNil(t, stored)
	require.NotNil(t, stored.EffectiveDate)
	assert.Equal(t, time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), *stored.EffectiveDate)
}

func TestAvailabilityServiceUpdateRule(t *testing.T) {
	rules := &MockAvailabilityRepository{}
	svc := NewAvailabilityService().WithAvailabilityRepo(rules)

	rules.On("Patch", mock.Anything, mock.Anything).Return(&repository.AvailabilityRule{
		ID: "r1", UserID: "user-a", DayOfWeek: 1, StartMinute: 10 * 60, EndMinute: 12 * 60, IsRecurring: true,
	}, nil)

	got, serr := svc.UpdateRule(context.Background(), &model.AvailabilityRule{
		ID: "r1", UserID: "user-a", DayOfWeek: 1, StartTime: "10:00", EndTime: "12:00", IsRecurring: true,
	})
	require.Nil(t, serr)
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "12:00", got.EndTime)
}

func TestAvailabilityServiceDeleteRule(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockAvailabilityRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success",
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Delete", mock.Anything, "r1", "user-a").Return(nil)
			},
		},
		{
			name: "not found",
			setupMocks: func(r *MockAvailabilityRepository) {
				r.On("Delete", mock.Anything, "r1", "user-a").Return(repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := &MockAvailabilityRepository{}
			tt.setupMocks(rules)
			svc := NewAvailabilityService().WithAvailabilityRepo(rules)

			serr := svc.DeleteRule(context.Background(), "r1", "user-a")

			if tt.expectedError {
				require.NotNil(t, serr)
				assert.Equal(t, tt.errorCode, serr.Code)
				return
			}
			assert.Nil(t, serr)
		})
	}
}
