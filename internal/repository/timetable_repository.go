package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/timetable-api/internal/models"
)

const slotColumns = "id, faculty, year, semester, type, course_id, classroom_id, resource_ids, date, day, start_time, end_time, created_at, updated_at"

// SlotStore is the slice of slot persistence available inside a room/date
// critical section. Conflict scans and the subsequent write must go through
// the same store so they share one transaction.
type SlotStore interface {
	ListByRoomDate(ctx context.Context, classroomID string, date time.Time) ([]models.TimetableSlot, error)
	Insert(ctx context.Context, slot *models.TimetableSlot) error
	Update(ctx context.Context, slot *models.TimetableSlot) error
}

// TimetableRepository provides persistence for timetable slots.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// WithRoomLock runs fn holding a per-(classroom, date) advisory lock inside a
// transaction. Two requests targeting the same classroom and date serialize
// here, so a conflict check and its write can never interleave with another
// request's check-then-write for the same room.
func (r *TimetableRepository) WithRoomLock(ctx context.Context, classroomID string, date time.Time, fn func(ctx context.Context, store SlotStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot transaction: %w", err)
	}

	lockKey := classroomID + ":" + date.Format("2006-01-02")
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("acquire room lock %s: %w", lockKey, err)
	}

	if err := fn(ctx, &txSlotStore{tx: tx}); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("rollback slot transaction: %w", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot transaction: %w", err)
	}
	return nil
}

// txSlotStore scopes slot persistence to one open transaction.
type txSlotStore struct {
	tx *sqlx.Tx
}

// ListByRoomDate returns every slot booked for the classroom on the date.
// Other rooms and dates are irrelevant to conflict detection and excluded
// from the scan.
func (s *txSlotStore) ListByRoomDate(ctx context.Context, classroomID string, date time.Time) ([]models.TimetableSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM timetable_slots WHERE classroom_id = $1 AND date = $2 ORDER BY start_time ASC`, slotColumns)
	var slots []models.TimetableSlot
	if err := s.tx.SelectContext(ctx, &slots, query, classroomID, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list slots by room and date: %w", err)
	}
	return slots, nil
}

// Insert stores a new slot record.
func (s *txSlotStore) Insert(ctx context.Context, slot *models.TimetableSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO timetable_slots (id, faculty, year, semester, type, course_id, classroom_id, resource_ids, date, day, start_time, end_time, created_at, updated_at)
VALUES (:id, :faculty, :year, :semester, :type, :course_id, :classroom_id, :resource_ids, :date, :day, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("insert timetable slot: %w", err)
	}
	return nil
}

// Update replaces every mutable field of a slot record.
func (s *txSlotStore) Update(ctx context.Context, slot *models.TimetableSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_slots SET faculty = :faculty, year = :year, semester = :semester, type = :type, course_id = :course_id, classroom_id = :classroom_id, resource_ids = :resource_ids, date = :date, day = :day, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	if _, err := s.tx.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update timetable slot: %w", err)
	}
	return nil
}

// List returns slots with optional filtering and pagination.
func (r *TimetableRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.TimetableSlot, int, error) {
	base := "FROM timetable_slots WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("faculty = $%d", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Day != "" {
		conditions = append(conditions, fmt.Sprintf("day = $%d", len(args)+1))
		args = append(args, filter.Day)
	}
	if filter.ClassroomID != "" {
		conditions = append(conditions, fmt.Sprintf("classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, start_time ASC LIMIT %d OFFSET %d", slotColumns, base, size, offset)
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetable slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetable slots: %w", err)
	}

	return slots, total, nil
}

// FindByID loads a slot by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM timetable_slots WHERE id = $1`, slotColumns)
	var slot models.TimetableSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListByCohort returns a cohort's slots ordered by date and start time.
func (r *TimetableRepository) ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.TimetableSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM timetable_slots WHERE faculty = $1 AND year = $2 AND semester = $3 ORDER BY date ASC, start_time ASC`, slotColumns)
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, faculty, year, semester); err != nil {
		return nil, fmt.Errorf("list slots by cohort: %w", err)
	}
	return slots, nil
}

// Delete removes a slot by id.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable slot: %w", err)
	}
	return nil
}
