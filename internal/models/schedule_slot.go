package models

import (
	"fmt"
	"time"
)

// DayOfWeek is the weekday a slot recurs on.
type DayOfWeek string

// Weekdays recognised by the scheduler. Values match the database enum.
const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// LocationType describes how a slot is delivered.
type LocationType string

const (
	LocationInPerson LocationType = "IN_PERSON"
	LocationOnline   LocationType = "ONLINE"
	LocationHybrid   LocationType = "HYBRID"
)

// ScheduleSlot is one recurring weekly meeting of a section. Times are
// campus-local minutes of day forming the half-open interval
// [StartMinute, EndMinute).
type ScheduleSlot struct {
	ID           string       `db:"id" json:"id"`
	SectionID    string       `db:"section_id" json:"section_id"`
	RoomID       *string      `db:"room_id" json:"room_id,omitempty"`
	DayOfWeek    DayOfWeek    `db:"day_of_week" json:"day_of_week"`
	StartMinute  int          `db:"start_minute" json:"start_minute"`
	EndMinute    int          `db:"end_minute" json:"end_minute"`
	LocationType LocationType `db:"location_type" json:"location_type"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// RegisteredSlot is a slot joined with the section and course it belongs
// to, as loaded for a student's active registrations.
type RegisteredSlot struct {
	SlotID      string    `db:"slot_id" json:"slot_id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	CourseCode  string    `db:"course_code" json:"course_code"`
	CourseTitle string    `db:"course_title" json:"course_title"`
	DayOfWeek   DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartMinute int       `db:"start_minute" json:"start_minute"`
	EndMinute   int       `db:"end_minute" json:"end_minute"`
}

// SlotConflict identifies the first pair of overlapping slots found
// between a candidate section and a student's existing registrations.
type SlotConflict struct {
	SectionID   string    `json:"section_id"`
	CourseCode  string    `json:"course_code"`
	CourseTitle string    `json:"course_title"`
	DayOfWeek   DayOfWeek `json:"day_of_week"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
}

// TimeRange renders the conflicting interval as HH:MM-HH:MM for messaging.
func (c SlotConflict) TimeRange() string {
	return fmt.Sprintf("%s-%s", FormatMinute(c.StartMinute), FormatMinute(c.EndMinute))
}

// FormatMinute renders a minute-of-day value as HH:MM.
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
