package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/timetable-api/internal/models"
	appErrors "github.com/campuskit/timetable-api/pkg/errors"
)

type notificationRepoStub struct {
	notifications map[string]*models.Notification
	filter        models.NotificationFilter
	createErr     error
}

func newNotificationRepoStub() *notificationRepoStub {
	return &notificationRepoStub{notifications: make(map[string]*models.Notification)}
}

func (r *notificationRepoStub) Create(ctx context.Context, notification *models.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	copy := *notification
	r.notifications[notification.ID] = &copy
	return nil
}

func (r *notificationRepoStub) ListByCohort(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	r.filter = filter
	var result []models.Notification
	for _, n := range r.notifications {
		if n.Faculty == filter.Faculty && n.Year == filter.Year && n.Semester == filter.Semester {
			result = append(result, *n)
		}
	}
	return result, nil
}

func (r *notificationRepoStub) ListAll(ctx context.Context) ([]models.Notification, error) {
	result := make([]models.Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		result = append(result, *n)
	}
	return result, nil
}

func (r *notificationRepoStub) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	if n, ok := r.notifications[id]; ok {
		copy := *n
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *notificationRepoStub) MarkRead(ctx context.Context, id string) error {
	n, ok := r.notifications[id]
	if !ok {
		return sql.ErrNoRows
	}
	n.Read = true
	return nil
}

func (r *notificationRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.notifications, id)
	return nil
}

func TestNotificationServiceNotifySlotChange(t *testing.T) {
	repo := newNotificationRepoStub()
	svc := NewNotificationService(repo, &userLookupStub{}, nil, nil, nil)

	slot := &models.TimetableSlot{
		ID:       "slot-1",
		Faculty:  models.FacultyLaw,
		Year:     3,
		Semester: 2,
	}
	err := svc.NotifySlotChange(context.Background(), slot, "Timetable slot updated for 2024-05-01, 09:00 - 10:00 in Lab A for Algorithms.")
	require.NoError(t, err)

	require.Len(t, repo.notifications, 1)
	for _, n := range repo.notifications {
		assert.Equal(t, "slot-1", n.TimetableSlotID)
		assert.Equal(t, models.FacultyLaw, n.Faculty)
		assert.Equal(t, 3, n.Year)
		assert.Equal(t, 2, n.Semester)
		assert.False(t, n.Read)
	}
}

func TestNotificationServiceListForUser(t *testing.T) {
	repo := newNotificationRepoStub()
	year, semester := 3, 2
	users := &userLookupStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", Faculty: models.FacultyLaw, Year: &year, Semester: &semester},
		"admin-1":   {ID: "admin-1", Faculty: models.FacultyLaw, Role: models.RoleAdmin},
	}}
	svc := NewNotificationService(repo, users, nil, nil, nil)

	require.NoError(t, repo.Create(context.Background(), &models.Notification{
		Message: "for the law cohort", TimetableSlotID: "slot-1",
		Faculty: models.FacultyLaw, Year: 3, Semester: 2, CreatedAt: time.Now(),
	}))
	require.NoError(t, repo.Create(context.Background(), &models.Notification{
		Message: "for another cohort", TimetableSlotID: "slot-2",
		Faculty: models.FacultyArts, Year: 1, Semester: 1, CreatedAt: time.Now(),
	}))

	notifications, err := svc.ListForUser(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "for the law cohort", notifications[0].Message)
	assert.Equal(t, models.FacultyLaw, repo.filter.Faculty)

	notifications, err = svc.ListForUser(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Empty(t, notifications, "users without a cohort see no notifications")

	_, err = svc.ListForUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceCreateValidation(t *testing.T) {
	repo := newNotificationRepoStub()
	svc := NewNotificationService(repo, &userLookupStub{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateNotificationRequest{
		Message: "room changed", TimetableSlotID: "slot-1",
		Faculty: "Medicine", Year: 1, Semester: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.notifications)

	created, err := svc.Create(context.Background(), CreateNotificationRequest{
		Message: "room changed", TimetableSlotID: "slot-1",
		Faculty: "Science", Year: 1, Semester: 1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, repo.notifications, 1)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := newNotificationRepoStub()
	svc := NewNotificationService(repo, &userLookupStub{}, nil, nil, nil)

	notification := &models.Notification{
		ID: "notif-1", Message: "msg", TimetableSlotID: "slot-1",
		Faculty: models.FacultyScience, Year: 1, Semester: 1,
	}
	require.NoError(t, repo.Create(context.Background(), notification))

	acked, err := svc.MarkRead(context.Background(), "notif-1")
	require.NoError(t, err)
	assert.True(t, acked.Read)
	assert.True(t, repo.notifications["notif-1"].Read)

	// Second acknowledgement is a no-op, not an error.
	acked, err = svc.MarkRead(context.Background(), "notif-1")
	require.NoError(t, err)
	assert.True(t, acked.Read)

	_, err = svc.MarkRead(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceDelete(t *testing.T) {
	repo := newNotificationRepoStub()
	svc := NewNotificationService(repo, &userLookupStub{}, nil, nil, nil)

	require.NoError(t, repo.Create(context.Background(), &models.Notification{
		ID: "notif-1", Message: "msg", TimetableSlotID: "slot-1",
		Faculty: models.FacultyScience, Year: 1, Semester: 1,
	}))

	require.NoError(t, svc.Delete(context.Background(), "notif-1"))
	assert.Empty(t, repo.notifications)

	err := svc.Delete(context.Background(), "notif-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
