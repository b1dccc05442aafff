package model

import (
	"fmt"
	"time"
)

// AvailabilityRule is a weekly availability window declared by a user.
// Times of day are wall-clock "HH:MM" strings in the owner's stored timezone.
// A non-recurring rule applies to the calendar date of EffectiveDate only;
// the clock and zone of the submitted timestamp are ignored.
type AvailabilityRule struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	DayOfWeek     int        `json:"day_of_week"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	IsRecurring   bool       `json:"is_recurring"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// ParseTimeOfDay converts an "HH:MM" wall-clock string to minutes from midnight.
func ParseTimeOfDay(s string) (int, error) {
	var hour, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &min); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return hour*60 + min, nil
}

// FormatTimeOfDay converts minutes from midnight to an "HH:MM" string.
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
