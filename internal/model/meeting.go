package model

import "time"

type Meeting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	CalendarID  string    `json:"calendar_id" validate:"required"`
	TeamID      *string   `json:"team_id,omitempty"`
	AttendeeIDs []string  `json:"attendee_user_ids"`
}
