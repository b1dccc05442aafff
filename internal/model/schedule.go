package model

import "time"

// IntersectionMode selects how member free time combines into team free time.
type IntersectionMode string

const (
	// ModeAll requires every team member to be free.
	ModeAll IntersectionMode = "ALL"
	// ModeAnyK requires at least K members to be free simultaneously.
	ModeAnyK IntersectionMode = "ANY_K"
)

// SlotPreference ranks candidate start times by time of day.
type SlotPreference string

const (
	PreferenceAny       SlotPreference = "any"
	PreferenceMorning   SlotPreference = "morning"
	PreferenceAfternoon SlotPreference = "afternoon"
	PreferenceEvening   SlotPreference = "evening"
)

// FreeSlot is a span in which the listed members are all free. Computed per
// query, never persisted.
type FreeSlot struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	FreeMemberIDs []string  `json:"free_member_ids"`
}

// TeamAvailabilityQuery is the engine's request contract.
type TeamAvailabilityQuery struct {
	TeamID             string
	WindowStart        time.Time
	WindowEnd          time.Time
	DurationMinutes    int
	GranularityMinutes int
	Mode               IntersectionMode
	K                  int
	Preference         SlotPreference
	Timezone           string
}

// TeamAvailability is the engine's response: common free slots, plus ranked
// candidate start times when a meeting duration was requested.
type TeamAvailability struct {
	TeamID     string      `json:"team_id"`
	Slots      []*FreeSlot `json:"slots"`
	Candidates []time.Time `json:"candidates,omitempty"`
}
