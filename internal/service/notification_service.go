package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/timetable-api/internal/models"
	appErrors "github.com/campuskit/timetable-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByCohort(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	ListAll(ctx context.Context) ([]models.Notification, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateNotificationRequest describes the payload for a custom notification.
type CreateNotificationRequest struct {
	Message         string `json:"message" validate:"required"`
	TimetableSlotID string `json:"timetable_slot_id" validate:"required"`
	Faculty         string `json:"faculty" validate:"required,faculty"`
	Year            int    `json:"year" validate:"required,min=1,max=4"`
	Semester        int    `json:"semester" validate:"required,min=1,max=2"`
}

// NotificationService handles cohort-scoped notification workflows. A single
// record addresses a faculty/year/semester cohort; per-user delivery is a
// read-time join against the requesting user's own cohort fields.
type NotificationService struct {
	repo      notificationRepository
	users     notificationUserReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationRepository, users notificationUserReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerTimetableValidations(validate)
	return &NotificationService{repo: repo, users: users, metrics: metrics, validator: validate, logger: logger}
}

// NotifySlotChange records one broadcast notification for the slot's cohort.
// Called after a slot update commits; the caller treats failure as
// best-effort and never rolls back the update.
func (s *NotificationService) NotifySlotChange(ctx context.Context, slot *models.TimetableSlot, message string) error {
	notification := &models.Notification{
		Message:         message,
		TimetableSlotID: slot.ID,
		Faculty:         slot.Faculty,
		Year:            slot.Year,
		Semester:        slot.Semester,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record notification")
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationEmitted()
	}
	s.logger.Info("notification emitted",
		zap.String("slot_id", slot.ID),
		zap.String("faculty", string(slot.Faculty)),
		zap.Int("year", slot.Year),
		zap.Int("semester", slot.Semester),
	)
	return nil
}

// ListForUser returns the notifications addressed to the user's own cohort.
// Users without a cohort assignment (staff accounts) see none.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Year == nil || user.Semester == nil {
		return []models.Notification{}, nil
	}

	filter := models.NotificationFilter{Faculty: user.Faculty, Year: *user.Year, Semester: *user.Semester}
	notifications, err := s.repo.ListByCohort(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// ListAll returns every notification for administrative review.
func (s *NotificationService) ListAll(ctx context.Context) ([]models.Notification, error) {
	notifications, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// Create records a custom administrative notification.
func (s *NotificationService) Create(ctx context.Context, req CreateNotificationRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	notification := &models.Notification{
		Message:         req.Message,
		TimetableSlotID: req.TimetableSlotID,
		Faculty:         models.Faculty(req.Faculty),
		Year:            req.Year,
		Semester:        req.Semester,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return notification, nil
}

// MarkRead flips the read flag and returns the acknowledged notification.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}

	if !notification.Read {
		if err := s.repo.MarkRead(ctx, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
		}
		notification.Read = true
	}
	return notification, nil
}

// Delete removes a notification.
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}
