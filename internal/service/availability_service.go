package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/openmeet/scheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AvailabilityService manages a user's weekly availability windows.
type AvailabilityService struct {
	rules repository.AvailabilityRepository
}

func NewAvailabilityService() *AvailabilityService {
	return &AvailabilityService{}
}

func (a *AvailabilityService) WithAvailabilityRepo(r repository.AvailabilityRepository) *AvailabilityService {
	a.rules = r
	return a
}

func (a *AvailabilityService) ListRules(ctx context.Context, userID string) ([]*model.AvailabilityRule, *Error) {
	rules, err := a.rules.ListByUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list availability rules",
			zap.String("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list availability rules")
	}

	out := make([]*model.AvailabilityRule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToModel(rule))
	}
	return out, nil
}

func (a *AvailabilityService) CreateRule(ctx context.Context, rule *model.AvailabilityRule) (*model.AvailabilityRule, *Error) {
	l := logger.FromContext(ctx)

	stored, serr := ruleFromModel(rule)
	if serr != nil {
		return nil, serr
	}
	stored.ID = uuid.NewString()

	l.Info("creating availability rule",
		zap.String("user_id", rule.UserID),
		zap.Int("day_of_week", rule.DayOfWeek))

	err := a.rules.Create(ctx, stored)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		l.Error("failed to create availability rule", zap.String("user_id", rule.UserID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create availability rule")
	}

	return ruleToModel(stored), nil
}

func (a *AvailabilityService) UpdateRule(ctx context.Context, rule *model.AvailabilityRule) (*model.AvailabilityRule, *Error) {
	l := logger.FromContext(ctx)

	stored, serr := ruleFromModel(rule)
	if serr != nil {
		return nil, serr
	}

	l.Info("updating availability rule",
		zap.String("rule_id", rule.ID),
		zap.String("user_id", rule.UserID))

	updated, err := a.rules.Patch(ctx, &repository.AvailabilityRulePatch{
		ID:          rule.ID,
		UserID:      rule.UserID,
		DayOfWeek:   &stored.DayOfWeek,
		StartMinute: &stored.StartMinute,
		EndMinute:   &stored.EndMinute,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "availability rule not found")
	}
	if err != nil {
		l.Error("failed to update availability rule", zap.String("rule_id", rule.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to update availability rule")
	}

	return ruleToModel(updated), nil
}

func (a *AvailabilityService) DeleteRule(ctx context.Context, id, userID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("deleting availability rule", zap.String("rule_id", id), zap.String("user_id", userID))

	err := a.rules.Delete(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "availability rule not found")
	}
	if err != nil {
		l.Error("failed to delete availability rule", zap.String("rule_id", id), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to delete availability rule")
	}
	return nil
}

func ruleFromModel(rule *model.AvailabilityRule) (*repository.AvailabilityRule, *Error) {
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return nil, NewError(ErrorCodeInvalidArgument, "day_of_week: must be in [0,6]")
	}
	start, err := model.ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("start_time: %v", err))
	}
	end, err := model.ParseTimeOfDay(rule.EndTime)
	if err != nil {
		return nil, NewError(ErrorCodeInvalidArgument, fmt.Sprintf("end_time: %v", err))
	}
	if start >= end {
		return nil, NewError(ErrorCodeInvalidArgument, "start_time: must be before end_time")
	}
	if !rule.IsRecurring && rule.EffectiveDate == nil {
		return nil, NewError(ErrorCodeInvalidArgument, "effective_date: required for one-off rules")
	}

	stored := &repository.AvailabilityRule{
		ID:          rule.ID,
		UserID:      rule.UserID,
		DayOfWeek:   rule.DayOfWeek,
		StartMinute: start,
		EndMinute:   end,
		IsRecurring: rule.IsRecurring,
	}
	if rule.EffectiveDate != nil {
		// Stored as a DATE: keep the calendar date the client named and
		// drop whatever clock or zone came with it.
		y, m, d := rule.EffectiveDate.Date()
		ed := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		stored.EffectiveDate = &ed
	}
	return stored, nil
}

func ruleToModel(rule *repository.AvailabilityRule) *model.AvailabilityRule {
	return &model.AvailabilityRule{
		ID:            rule.ID,
		UserID:        rule.UserID,
		DayOfWeek:     rule.DayOfWeek,
		StartTime:     model.FormatTimeOfDay(rule.StartMinute),
		EndTime:       model.FormatTimeOfDay(rule.EndMinute),
		IsRecurring:   rule.IsRecurring,
		EffectiveDate: rule.EffectiveDate,
	}
}
