package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/campuskit/timetable-api/internal/models"
	"github.com/campuskit/timetable-api/internal/repository"
	appErrors "github.com/campuskit/timetable-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type timetableRepository interface {
	List(ctx context.Context, filter models.SlotFilter) ([]models.TimetableSlot, int, error)
	FindByID(ctx context.Context, id string) (*models.TimetableSlot, error)
	ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.TimetableSlot, error)
	Delete(ctx context.Context, id string) error
	WithRoomLock(ctx context.Context, classroomID string, date time.Time, fn func(ctx context.Context, store repository.SlotStore) error) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type classroomReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type slotChangeNotifier interface {
	NotifySlotChange(ctx context.Context, slot *models.TimetableSlot, message string) error
}

// CreateSlotRequest describes the payload for booking a classroom.
type CreateSlotRequest struct {
	Faculty     string   `json:"faculty" validate:"required,faculty"`
	Year        int      `json:"year" validate:"required,min=1,max=4"`
	Semester    int      `json:"semester" validate:"required,min=1,max=2"`
	Type        string   `json:"type" validate:"required,slottype"`
	CourseID    string   `json:"course_id" validate:"required"`
	ClassroomID string   `json:"classroom_id" validate:"required"`
	ResourceIDs []string `json:"resource_ids"`
	Date        string   `json:"date" validate:"required,dateonly"`
	StartTime   string   `json:"start_time" validate:"required,hhmm"`
	EndTime     string   `json:"end_time" validate:"required,hhmm"`
}

// UpdateSlotRequest replaces every mutable field of an existing booking.
// Updates are whole-slot: the proposal either fully validates or is rejected.
type UpdateSlotRequest struct {
	Faculty     string   `json:"faculty" validate:"required,faculty"`
	Year        int      `json:"year" validate:"required,min=1,max=4"`
	Semester    int      `json:"semester" validate:"required,min=1,max=2"`
	Type        string   `json:"type" validate:"required,slottype"`
	CourseID    string   `json:"course_id" validate:"required"`
	ClassroomID string   `json:"classroom_id" validate:"required"`
	ResourceIDs []string `json:"resource_ids"`
	Date        string   `json:"date" validate:"required,dateonly"`
	StartTime   string   `json:"start_time" validate:"required,hhmm"`
	EndTime     string   `json:"end_time" validate:"required,hhmm"`
}

// TimetableService orchestrates slot booking: conflict detection, day
// derivation, persistence, and change notifications.
type TimetableService struct {
	repo       timetableRepository
	courses    courseReader
	classrooms classroomReader
	users      userReader
	notifier   slotChangeNotifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(repo timetableRepository, courses courseReader, classrooms classroomReader, users userReader, notifier slotChangeNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerTimetableValidations(validate)
	return &TimetableService{
		repo:       repo,
		courses:    courses,
		classrooms: classrooms,
		users:      users,
		notifier:   notifier,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

func registerTimetableValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("faculty", func(fl validator.FieldLevel) bool {
		return models.Faculty(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("slottype", func(fl validator.FieldLevel) bool {
		return models.SlotType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := models.MinuteOfDay(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("dateonly", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
}

// Create books a classroom after conflict detection. The conflict scan and
// the insert share one room/date critical section, so two racing requests
// for overlapping intervals cannot both pass the check.
func (s *TimetableService) Create(ctx context.Context, req CreateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable slot payload")
	}

	slot, err := buildSlot(req.Faculty, req.Year, req.Semester, req.Type, req.CourseID, req.ClassroomID, req.ResourceIDs, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithRoomLock(ctx, slot.ClassroomID, slot.Date, func(ctx context.Context, store repository.SlotStore) error {
		existing, err := store.ListByRoomDate(ctx, slot.ClassroomID, slot.Date)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot conflicts")
		}
		if hit := firstOverlap(existing, slot.StartTime, slot.EndTime, ""); hit != nil {
			return s.slotConflict(hit)
		}
		if err := store.Insert(ctx, slot); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCohortCache(ctx)
	return slot, nil
}

// Update replaces an existing booking. Identical proposals short-circuit as a
// no-op without emitting a notification; otherwise the change is persisted
// and the slot's cohort is notified best-effort.
func (s *TimetableService) Update(ctx context.Context, id string, req UpdateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable slot payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slot")
	}

	proposed, err := buildSlot(req.Faculty, req.Year, req.Semester, req.Type, req.CourseID, req.ClassroomID, req.ResourceIDs, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	proposed.ID = existing.ID
	proposed.CreatedAt = existing.CreatedAt

	noop := false
	err = s.repo.WithRoomLock(ctx, proposed.ClassroomID, proposed.Date, func(ctx context.Context, store repository.SlotStore) error {
		others, err := store.ListByRoomDate(ctx, proposed.ClassroomID, proposed.Date)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot conflicts")
		}
		// The slot's own stored state never conflicts with its proposal.
		if hit := firstOverlap(others, proposed.StartTime, proposed.EndTime, existing.ID); hit != nil {
			return s.slotConflict(hit)
		}
		if existing.SameBooking(proposed) {
			noop = true
			return nil
		}
		if err := store.Update(ctx, proposed); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return existing, nil
	}

	s.invalidateCohortCache(ctx)
	s.notifySlotUpdated(ctx, proposed)
	return proposed, nil
}

// Delete removes a booking.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slot")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable slot")
	}
	s.invalidateCohortCache(ctx)
	return nil
}

// Get returns a slot by id.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.TimetableSlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slot")
	}
	return slot, nil
}

// List returns slots with pagination metadata.
func (s *TimetableService) List(ctx context.Context, filter models.SlotFilter) ([]models.TimetableSlot, *models.Pagination, error) {
	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return slots, pagination, nil
}

// ListByCohort returns a cohort's timetable, served from cache when warm.
func (s *TimetableService) ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.TimetableSlot, error) {
	key := cohortCacheKey(faculty, year, semester)
	var cached []models.TimetableSlot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	slots, err := s.repo.ListByCohort(ctx, faculty, year, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohort timetable")
	}
	_ = s.cache.Set(ctx, key, slots, 0)
	return slots, nil
}

// ListForUser returns the timetable for the requesting user's own cohort.
func (s *TimetableService) ListForUser(ctx context.Context, userID string) ([]models.TimetableSlot, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Year == nil || user.Semester == nil {
		return []models.TimetableSlot{}, nil
	}
	return s.ListByCohort(ctx, user.Faculty, *user.Year, *user.Semester)
}

// firstOverlap is the conflict checker: it scans slots already booked for a
// classroom and date and returns the first one whose half-open interval
// overlaps the proposal, skipping excludeID so an update never collides with
// the slot's own prior state.
func firstOverlap(existing []models.TimetableSlot, start, end, excludeID string) *models.TimetableSlot {
	for i := range existing {
		if excludeID != "" && existing[i].ID == excludeID {
			continue
		}
		if existing[i].OverlapsInterval(start, end) {
			return &existing[i]
		}
	}
	return nil
}

func (s *TimetableService) slotConflict(existing *models.TimetableSlot) error {
	if s.metrics != nil {
		s.metrics.RecordSlotConflict()
	}
	domainErr := models.NewSlotConflictError(existing)
	return appErrors.Wrap(domainErr, appErrors.ErrSlotConflict.Code, appErrors.ErrSlotConflict.Status, domainErr.Message)
}

// buildSlot validates cross-field rules and assembles a slot with its derived
// day. The stored day is always recomputed from the date, never caller input.
func buildSlot(faculty string, year, semester int, slotType, courseID, classroomID string, resourceIDs []string, date, start, end string) (*models.TimetableSlot, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}

	startMin, err := models.MinuteOfDay(start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start_time")
	}
	endMin, err := models.MinuteOfDay(end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end_time")
	}
	if startMin >= endMin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	return &models.TimetableSlot{
		Faculty:     models.Faculty(faculty),
		Year:        year,
		Semester:    semester,
		Type:        models.SlotType(slotType),
		CourseID:    courseID,
		ClassroomID: classroomID,
		ResourceIDs: pq.StringArray(resourceIDs),
		Date:        day,
		Day:         models.DeriveDay(day),
		StartTime:   start,
		EndTime:     end,
	}, nil
}

func cohortCacheKey(faculty models.Faculty, year, semester int) string {
	return fmt.Sprintf("timetable:cohort:%s:%d:%d", faculty, year, semester)
}

func (s *TimetableService) invalidateCohortCache(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, "timetable:cohort:*")
}

// notifySlotUpdated fans out the change to the slot's cohort. The update is
// already committed; failures here are logged and counted, never surfaced.
func (s *TimetableService) notifySlotUpdated(ctx context.Context, slot *models.TimetableSlot) {
	if s.notifier == nil {
		return
	}

	courseName := slot.CourseID
	if course, err := s.courses.FindByID(ctx, slot.CourseID); err == nil {
		courseName = course.CourseName
	} else {
		s.logger.Warn("course lookup failed for notification", zap.String("course_id", slot.CourseID), zap.Error(err))
	}

	classroomName := slot.ClassroomID
	if classroom, err := s.classrooms.FindByID(ctx, slot.ClassroomID); err == nil {
		classroomName = classroom.Name
	} else {
		s.logger.Warn("classroom lookup failed for notification", zap.String("classroom_id", slot.ClassroomID), zap.Error(err))
	}

	message := fmt.Sprintf("Timetable slot updated for %s, %s - %s in %s for %s.",
		slot.DateKey(), slot.StartTime, slot.EndTime, classroomName, courseName)

	if err := s.notifier.NotifySlotChange(ctx, slot, message); err != nil {
		if s.metrics != nil {
			s.metrics.RecordNotificationFailure()
		}
		s.logger.Warn("notification fan-out failed",
			zap.String("slot_id", slot.ID),
			zap.Error(err),
		)
	}
}
