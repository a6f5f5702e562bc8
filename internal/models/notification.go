package models

import "time"

// Notification is a cohort-scoped announcement of a slot event. One record
// addresses every user sharing the faculty/year/semester triple; delivery to
// individuals is a read-time join, not a per-user copy.
type Notification struct {
	ID              string    `db:"id" json:"id"`
	Message         string    `db:"message" json:"message"`
	TimetableSlotID string    `db:"timetable_slot_id" json:"timetable_slot_id"`
	Faculty         Faculty   `db:"faculty" json:"faculty"`
	Year            int       `db:"year" json:"year"`
	Semester        int       `db:"semester" json:"semester"`
	Read            bool      `db:"read" json:"read"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes notification listings to a cohort.
type NotificationFilter struct {
	Faculty  Faculty
	Year     int
	Semester int
}
