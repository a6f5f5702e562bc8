package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/timetable-api/internal/models"
)

// UserRepository reads identity data owned by the accounts collaborator. The
// timetable core needs a user's cohort fields to filter slots and
// notifications; it never writes users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, university_id, username, email, faculty, year, semester, role, created_at, updated_at FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByCohort returns the users sharing a faculty/year/semester triple.
func (r *UserRepository) ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.User, error) {
	const query = `SELECT id, university_id, username, email, faculty, year, semester, role, created_at, updated_at FROM users WHERE faculty = $1 AND year = $2 AND semester = $3`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, faculty, year, semester); err != nil {
		return nil, fmt.Errorf("list users by cohort: %w", err)
	}
	return users, nil
}
