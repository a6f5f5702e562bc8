package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "Admin"
	RoleLecturer   UserRole = "Lecturer"
	RoleInstructor UserRole = "Instructor"
	RoleStudent    UserRole = "Student"
)

// User is owned by the identity collaborator; the timetable core only reads
// its classifying fields (faculty, year, semester, role).
type User struct {
	ID           string    `db:"id" json:"id"`
	UniversityID string    `db:"university_id" json:"university_id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	Faculty      Faculty   `db:"faculty" json:"faculty"`
	Year         *int      `db:"year" json:"year,omitempty"`
	Semester     *int      `db:"semester" json:"semester,omitempty"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
