package models

// Classroom is owned by the facilities collaborator; the timetable core reads
// its name when composing notification text.
type Classroom struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Location string `db:"location" json:"location"`
	Capacity int    `db:"capacity" json:"capacity"`
}
