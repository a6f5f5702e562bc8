package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Faculty enumerates the faculties a slot or user can belong to.
type Faculty string

const (
	FacultyComputerScience Faculty = "ComputerScience"
	FacultyEngineering     Faculty = "Engineering"
	FacultyArts            Faculty = "Arts"
	FacultyScience         Faculty = "Science"
	FacultyLaw             Faculty = "Law"
)

// Valid reports whether the faculty is one of the known values.
func (f Faculty) Valid() bool {
	switch f {
	case FacultyComputerScience, FacultyEngineering, FacultyArts, FacultyScience, FacultyLaw:
		return true
	}
	return false
}

// SlotType enumerates the kinds of teaching sessions.
type SlotType string

const (
	SlotTypeLecture   SlotType = "Lecture"
	SlotTypeTutorial  SlotType = "Tutorial"
	SlotTypePractical SlotType = "Practical"
)

// Valid reports whether the slot type is one of the known values.
func (t SlotType) Valid() bool {
	switch t {
	case SlotTypeLecture, SlotTypeTutorial, SlotTypePractical:
		return true
	}
	return false
}

// TimetableSlot books one classroom for one course on one date and time range.
// The interval is half-open: [StartTime, EndTime). Day is derived from Date on
// every write and never trusted from caller input.
type TimetableSlot struct {
	ID          string         `db:"id" json:"id"`
	Faculty     Faculty        `db:"faculty" json:"faculty"`
	Year        int            `db:"year" json:"year"`
	Semester    int            `db:"semester" json:"semester"`
	Type        SlotType       `db:"type" json:"type"`
	CourseID    string         `db:"course_id" json:"course_id"`
	ClassroomID string         `db:"classroom_id" json:"classroom_id"`
	ResourceIDs pq.StringArray `db:"resource_ids" json:"resource_ids"`
	Date        time.Time      `db:"date" json:"date"`
	Day         string         `db:"day" json:"day"`
	StartTime   string         `db:"start_time" json:"start_time"`
	EndTime     string         `db:"end_time" json:"end_time"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// DateKey returns the calendar date in ISO form, the unit the conflict scan
// and the room lock are scoped by.
func (s *TimetableSlot) DateKey() string {
	return s.Date.Format("2006-01-02")
}

// SameBooking reports whether the proposed slot carries the same fields as
// the stored one. Used to short-circuit no-op updates.
func (s *TimetableSlot) SameBooking(other *TimetableSlot) bool {
	if s == nil || other == nil {
		return false
	}
	if s.Faculty != other.Faculty || s.Year != other.Year || s.Semester != other.Semester {
		return false
	}
	if s.Type != other.Type || s.CourseID != other.CourseID || s.ClassroomID != other.ClassroomID {
		return false
	}
	if s.DateKey() != other.DateKey() || s.StartTime != other.StartTime || s.EndTime != other.EndTime {
		return false
	}
	return sameIDSet(s.ResourceIDs, other.ResourceIDs)
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		set[id]--
		if set[id] < 0 {
			return false
		}
	}
	return true
}

// SlotFilter describes query params for listing timetable slots.
type SlotFilter struct {
	Faculty     Faculty
	Year        int
	Semester    int
	Day         string
	ClassroomID string
	Page        int
	PageSize    int
}

// MinuteOfDay parses a zero-padded "HH:MM" wall-clock string into its minute
// offset from midnight.
func MinuteOfDay(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

// Overlap is the canonical half-open interval test shared by the create and
// update paths: [aStart, aEnd) and [bStart, bEnd) overlap iff
// aStart < bEnd && bStart < aEnd. Back-to-back intervals do not overlap.
// Malformed time strings never overlap; they are rejected upstream.
func Overlap(aStart, aEnd, bStart, bEnd string) bool {
	as, err := MinuteOfDay(aStart)
	if err != nil {
		return false
	}
	ae, err := MinuteOfDay(aEnd)
	if err != nil {
		return false
	}
	bs, err := MinuteOfDay(bStart)
	if err != nil {
		return false
	}
	be, err := MinuteOfDay(bEnd)
	if err != nil {
		return false
	}
	return as < be && bs < ae
}

// OverlapsInterval applies the Overlap predicate against the slot's own range.
func (s *TimetableSlot) OverlapsInterval(start, end string) bool {
	return Overlap(s.StartTime, s.EndTime, start, end)
}

// DeriveDay maps a calendar date to its English weekday name. It is the only
// source of truth for TimetableSlot.Day.
func DeriveDay(date time.Time) string {
	return date.Weekday().String()
}

// SlotConflict describes the existing booking that collided with a proposal.
type SlotConflict struct {
	SlotID      string  `json:"slot_id"`
	ClassroomID string  `json:"classroom_id"`
	Date        string  `json:"date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	CourseID    string  `json:"course_id"`
	Faculty     Faculty `json:"faculty"`
	Year        int     `json:"year"`
	Semester    int     `json:"semester"`
}

// SlotConflictError is returned when a proposed booking overlaps an existing
// slot in the same classroom on the same date.
type SlotConflictError struct {
	Message  string       `json:"message"`
	Conflict SlotConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NewSlotConflictError builds a conflict error from the colliding slot.
func NewSlotConflictError(existing *TimetableSlot) *SlotConflictError {
	return &SlotConflictError{
		Message: fmt.Sprintf("classroom %s already booked on %s from %s to %s",
			existing.ClassroomID, existing.DateKey(), existing.StartTime, existing.EndTime),
		Conflict: SlotConflict{
			SlotID:      existing.ID,
			ClassroomID: existing.ClassroomID,
			Date:        existing.DateKey(),
			StartTime:   existing.StartTime,
			EndTime:     existing.EndTime,
			CourseID:    existing.CourseID,
			Faculty:     existing.Faculty,
			Year:        existing.Year,
			Semester:    existing.Semester,
		},
	}
}
