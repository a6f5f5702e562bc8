package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/timetable-api/internal/models"
	"github.com/campuskit/timetable-api/internal/repository"
	appErrors "github.com/campuskit/timetable-api/pkg/errors"
)

// slotRepoStub keeps slots in memory. WithRoomLock serializes callers on a
// mutex so concurrent check-then-write sequences cannot interleave, mirroring
// the advisory-lock behavior of the real repository.
type slotRepoStub struct {
	mu    sync.Mutex
	slots map[string]models.TimetableSlot
}

func newSlotRepoStub() *slotRepoStub {
	return &slotRepoStub{slots: make(map[string]models.TimetableSlot)}
}

func (r *slotRepoStub) WithRoomLock(ctx context.Context, classroomID string, date time.Time, fn func(ctx context.Context, store repository.SlotStore) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*stubSlotStore)(r))
}

func (r *slotRepoStub) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[id]; ok {
		copy := slot
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *slotRepoStub) List(ctx context.Context, filter models.SlotFilter) ([]models.TimetableSlot, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.TimetableSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		result = append(result, slot)
	}
	return result, len(result), nil
}

func (r *slotRepoStub) ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.TimetableSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.TimetableSlot
	for _, slot := range r.slots {
		if slot.Faculty == faculty && slot.Year == year && slot.Semester == semester {
			result = append(result, slot)
		}
	}
	return result, nil
}

func (r *slotRepoStub) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
	return nil
}

// stubSlotStore is the critical-section view over slotRepoStub. The caller
// already holds the mutex when these methods run.
type stubSlotStore slotRepoStub

func (s *stubSlotStore) ListByRoomDate(ctx context.Context, classroomID string, date time.Time) ([]models.TimetableSlot, error) {
	key := date.Format("2006-01-02")
	var result []models.TimetableSlot
	for _, slot := range s.slots {
		if slot.ClassroomID == classroomID && slot.DateKey() == key {
			result = append(result, slot)
		}
	}
	return result, nil
}

func (s *stubSlotStore) Insert(ctx context.Context, slot *models.TimetableSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	s.slots[slot.ID] = *slot
	return nil
}

func (s *stubSlotStore) Update(ctx context.Context, slot *models.TimetableSlot) error {
	if _, ok := s.slots[slot.ID]; !ok {
		return sql.ErrNoRows
	}
	s.slots[slot.ID] = *slot
	return nil
}

type lookupStub struct {
	courses map[string]*models.Course
}

func (l *lookupStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := l.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type classroomLookupStub struct{ classrooms map[string]*models.Classroom }

func (l *classroomLookupStub) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	if c, ok := l.classrooms[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type userLookupStub struct{ users map[string]*models.User }

func (l *userLookupStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := l.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type notifierStub struct {
	mu       sync.Mutex
	messages []string
	slots    []*models.TimetableSlot
	err      error
}

func (n *notifierStub) NotifySlotChange(ctx context.Context, slot *models.TimetableSlot, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	n.slots = append(n.slots, slot)
	return nil
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTimetableServiceForTest() (*TimetableService, *slotRepoStub, *notifierStub) {
	repo := newSlotRepoStub()
	notifier := &notifierStub{}
	courses := &lookupStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", CourseName: "Algorithms", CourseCode: "CS201"},
	}}
	classrooms := &classroomLookupStub{classrooms: map[string]*models.Classroom{
		"room-1": {ID: "room-1", Name: "Lab A", Location: "Building 3", Capacity: 40},
	}}
	users := &userLookupStub{users: map[string]*models.User{}}
	svc := NewTimetableService(repo, courses, classrooms, users, notifier, nil, nil, nil, nil)
	return svc, repo, notifier
}

func validCreateRequest() CreateSlotRequest {
	return CreateSlotRequest{
		Faculty:     "ComputerScience",
		Year:        2,
		Semester:    1,
		Type:        "Lecture",
		CourseID:    "course-1",
		ClassroomID: "room-1",
		Date:        "2024-05-01",
		StartTime:   "09:00",
		EndTime:     "10:00",
	}
}

func TestTimetableServiceCreateDerivesDay(t *testing.T) {
	svc, _, _ := newTimetableServiceForTest()

	slot, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.Equal(t, "Wednesday", slot.Day)
	assert.Equal(t, "2024-05-01", slot.DateKey())
}

func TestTimetableServiceCreateRejectsOverlap(t *testing.T) {
	svc, _, _ := newTimetableServiceForTest()

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	overlapping := validCreateRequest()
	overlapping.StartTime = "09:30"
	overlapping.EndTime = "10:30"
	_, err = svc.Create(context.Background(), overlapping)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)

	var conflict *models.SlotConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "room-1", conflict.Conflict.ClassroomID)
	assert.Equal(t, "09:00", conflict.Conflict.StartTime)
}

func TestTimetableServiceCreateAllowsBackToBack(t *testing.T) {
	svc, repo, _ := newTimetableServiceForTest()

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	adjacent := validCreateRequest()
	adjacent.StartTime = "10:00"
	adjacent.EndTime = "11:00"
	_, err = svc.Create(context.Background(), adjacent)
	require.NoError(t, err)
	assert.Len(t, repo.slots, 2)
}

func TestTimetableServiceCreateAllowsOtherRoomAndDate(t *testing.T) {
	svc, repo, _ := newTimetableServiceForTest()

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	otherDate := validCreateRequest()
	otherDate.Date = "2024-05-02"
	_, err = svc.Create(context.Background(), otherDate)
	require.NoError(t, err)

	otherRoom := validCreateRequest()
	otherRoom.ClassroomID = "room-2"
	_, err = svc.Create(context.Background(), otherRoom)
	require.NoError(t, err)

	assert.Len(t, repo.slots, 3)
}

func TestTimetableServiceCreateValidation(t *testing.T) {
	svc, repo, _ := newTimetableServiceForTest()

	backwards := validCreateRequest()
	backwards.StartTime = "11:00"
	backwards.EndTime = "10:00"
	_, err := svc.Create(context.Background(), backwards)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	zeroLength := validCreateRequest()
	zeroLength.EndTime = zeroLength.StartTime
	_, err = svc.Create(context.Background(), zeroLength)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	badFaculty := validCreateRequest()
	badFaculty.Faculty = "Medicine"
	_, err = svc.Create(context.Background(), badFaculty)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	badTime := validCreateRequest()
	badTime.StartTime = "9:00"
	_, err = svc.Create(context.Background(), badTime)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	assert.Empty(t, repo.slots, "invalid payloads must not reach the store")
}

func TestTimetableServiceConcurrentConflictingCreates(t *testing.T) {
	svc, repo, _ := newTimetableServiceForTest()

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), validCreateRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
		conflicted++
	}
	assert.Equal(t, 1, succeeded, "exactly one of the racing creates may win")
	assert.Equal(t, workers-1, conflicted)
	assert.Len(t, repo.slots, 1)
}

func TestTimetableServiceUpdateMovesSlotAndNotifies(t *testing.T) {
	svc, _, notifier := newTimetableServiceForTest()

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	req := UpdateSlotRequest(validCreateRequest())
	req.Date = "2024-05-03"
	req.StartTime = "14:00"
	req.EndTime = "15:30"
	updated, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Friday", updated.Day)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Timetable slot updated for 2024-05-03, 14:00 - 15:30 in Lab A for Algorithms.", notifier.messages[0])
}

func TestTimetableServiceUpdateFallsBackToIDsInMessage(t *testing.T) {
	repo := newSlotRepoStub()
	notifier := &notifierStub{}
	courses := &lookupStub{courses: map[string]*models.Course{}}
	classrooms := &classroomLookupStub{classrooms: map[string]*models.Classroom{}}
	svc := NewTimetableService(repo, courses, classrooms, &userLookupStub{}, notifier, nil, nil, nil, nil)

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	req := UpdateSlotRequest(validCreateRequest())
	req.StartTime = "11:00"
	req.EndTime = "12:00"
	_, err = svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Timetable slot updated for 2024-05-01, 11:00 - 12:00 in room-1 for course-1.", notifier.messages[0])
}

func TestTimetableServiceUpdateNoopSkipsNotification(t *testing.T) {
	svc, repo, notifier := newTimetableServiceForTest()

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	before := repo.slots[created.ID]

	updated, err := svc.Update(context.Background(), created.ID, UpdateSlotRequest(validCreateRequest()))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 0, notifier.count(), "identical proposal must not notify")
	assert.Equal(t, before, repo.slots[created.ID], "identical proposal must not rewrite the record")
}

func TestTimetableServiceUpdateRejectsOverlapWithOtherSlot(t *testing.T) {
	svc, _, notifier := newTimetableServiceForTest()

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	second := validCreateRequest()
	second.StartTime = "10:00"
	second.EndTime = "11:00"
	createdSecond, err := svc.Create(context.Background(), second)
	require.NoError(t, err)

	req := UpdateSlotRequest(second)
	req.StartTime = "09:30"
	req.EndTime = "10:30"
	_, err = svc.Update(context.Background(), createdSecond.ID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, notifier.count())
}

func TestTimetableServiceUpdateExcludesOwnInterval(t *testing.T) {
	svc, _, _ := newTimetableServiceForTest()

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	// Overlaps only the slot's own prior interval, which must be excluded
	// from the conflict scan.
	req := UpdateSlotRequest(validCreateRequest())
	req.StartTime = "09:30"
	req.EndTime = "10:30"
	updated, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "09:30", updated.StartTime)
}

func TestTimetableServiceUpdateNotFound(t *testing.T) {
	svc, repo, notifier := newTimetableServiceForTest()

	_, err := svc.Update(context.Background(), "missing", UpdateSlotRequest(validCreateRequest()))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.slots)
	assert.Equal(t, 0, notifier.count())
}

func TestTimetableServiceUpdateSurvivesNotifierFailure(t *testing.T) {
	svc, repo, notifier := newTimetableServiceForTest()

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	notifier.err = errors.New("broker down")
	req := UpdateSlotRequest(validCreateRequest())
	req.StartTime = "13:00"
	req.EndTime = "14:00"
	updated, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err, "notification failure must not fail the update")
	assert.Equal(t, "13:00", updated.StartTime)
	assert.Equal(t, "13:00", repo.slots[created.ID].StartTime, "the new state must be persisted")
}

func TestTimetableServiceDelete(t *testing.T) {
	svc, repo, _ := newTimetableServiceForTest()

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Empty(t, repo.slots)

	err = svc.Delete(context.Background(), created.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceListForUser(t *testing.T) {
	repo := newSlotRepoStub()
	year, semester := 2, 1
	users := &userLookupStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", Faculty: models.FacultyComputerScience, Year: &year, Semester: &semester},
		"admin-1":   {ID: "admin-1", Faculty: models.FacultyComputerScience, Role: models.RoleAdmin},
	}}
	svc := NewTimetableService(repo, &lookupStub{}, &classroomLookupStub{}, users, &notifierStub{}, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	slots, err := svc.ListForUser(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	slots, err = svc.ListForUser(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Empty(t, slots, "users without a cohort see an empty timetable")

	_, err = svc.ListForUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
