package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapHalfOpen(t *testing.T) {
	cases := []struct {
		name    string
		aStart  string
		aEnd    string
		bStart  string
		bEnd    string
		overlap bool
	}{
		{"partial overlap", "09:00", "10:00", "09:30", "10:30", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"back to back after", "09:00", "10:00", "10:00", "11:00", false},
		{"back to back before", "10:00", "11:00", "09:00", "10:00", false},
		{"disjoint", "09:00", "10:00", "14:00", "15:00", false},
		{"one minute shared", "09:00", "10:01", "10:00", "11:00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlap, Overlap(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			// Overlap is symmetric in its two intervals.
			assert.Equal(t, tc.overlap, Overlap(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestOverlapMalformedTimes(t *testing.T) {
	assert.False(t, Overlap("9:00", "10:00", "09:30", "10:30"))
	assert.False(t, Overlap("09:00", "10:00", "25:00", "26:00"))
	assert.False(t, Overlap("", "", "09:00", "10:00"))
}

func TestMinuteOfDay(t *testing.T) {
	min, err := MinuteOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, min)

	min, err = MinuteOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, min)

	min, err = MinuteOfDay("23:59")
	require.NoError(t, err)
	assert.Equal(t, 1439, min)

	for _, bad := range []string{"9:30", "09:5", "24:00", "12:60", "0930", "ab:cd", ""} {
		_, err := MinuteOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestDeriveDay(t *testing.T) {
	date, err := time.Parse("2006-01-02", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "Wednesday", DeriveDay(date))

	date, err = time.Parse("2006-01-02", "2024-05-05")
	require.NoError(t, err)
	assert.Equal(t, "Sunday", DeriveDay(date))
}

func TestSameBooking(t *testing.T) {
	date, _ := time.Parse("2006-01-02", "2024-05-01")
	base := &TimetableSlot{
		ID:          "slot-1",
		Faculty:     FacultyScience,
		Year:        2,
		Semester:    1,
		Type:        SlotTypeLecture,
		CourseID:    "course-1",
		ClassroomID: "room-1",
		ResourceIDs: []string{"proj-1", "mic-2"},
		Date:        date,
		Day:         "Wednesday",
		StartTime:   "09:00",
		EndTime:     "10:00",
	}

	same := *base
	same.ID = "slot-other"
	same.ResourceIDs = []string{"mic-2", "proj-1"}
	assert.True(t, base.SameBooking(&same), "resource order and identity must not matter")

	moved := *base
	moved.StartTime = "09:30"
	assert.False(t, base.SameBooking(&moved))

	rerooomed := *base
	rerooomed.ClassroomID = "room-2"
	assert.False(t, base.SameBooking(&rerooomed))

	extra := *base
	extra.ResourceIDs = []string{"proj-1", "mic-2", "mic-2"}
	assert.False(t, base.SameBooking(&extra))

	assert.False(t, base.SameBooking(nil))
}

func TestNewSlotConflictError(t *testing.T) {
	date, _ := time.Parse("2006-01-02", "2024-05-01")
	existing := &TimetableSlot{
		ID:          "slot-1",
		ClassroomID: "room-1",
		Date:        date,
		StartTime:   "09:00",
		EndTime:     "10:00",
	}
	err := NewSlotConflictError(existing)
	assert.Equal(t, "classroom room-1 already booked on 2024-05-01 from 09:00 to 10:00", err.Error())
	assert.Equal(t, "slot-1", err.Conflict.SlotID)
}

func TestFacultyAndSlotTypeValid(t *testing.T) {
	for _, f := range []Faculty{FacultyComputerScience, FacultyEngineering, FacultyArts, FacultyScience, FacultyLaw} {
		assert.True(t, f.Valid())
	}
	assert.False(t, Faculty("Medicine").Valid())

	for _, st := range []SlotType{SlotTypeLecture, SlotTypeTutorial, SlotTypePractical} {
		assert.True(t, st.Valid())
	}
	assert.False(t, SlotType("Seminar").Valid())
}
