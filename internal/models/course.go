package models

import "time"

// Course is owned by the catalog collaborator; the timetable core reads its
// name when composing notification text.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Faculty    Faculty   `db:"faculty" json:"faculty"`
	Year       int       `db:"year" json:"year"`
	Semester   int       `db:"semester" json:"semester"`
	CourseName string    `db:"course_name" json:"course_name"`
	CourseCode string    `db:"course_code" json:"course_code"`
	Credits    int       `db:"credits" json:"credits"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
