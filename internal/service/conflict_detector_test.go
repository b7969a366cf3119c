package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func TestSlotsOverlapDifferentDays(t *testing.T) {
	assert.False(t, SlotsOverlap(models.Monday, 540, 615, models.Tuesday, 540, 615))
}

func TestSlotsOverlapTouchingEndpoints(t *testing.T) {
	// 09:00-10:15 against 10:15-11:30 share only the boundary minute.
	assert.False(t, SlotsOverlap(models.Monday, 540, 615, models.Monday, 615, 690))
	assert.False(t, SlotsOverlap(models.Monday, 615, 690, models.Monday, 540, 615))
}

func TestSlotsOverlapPartial(t *testing.T) {
	// 09:00-10:15 against 10:00-10:30.
	assert.True(t, SlotsOverlap(models.Monday, 540, 615, models.Monday, 600, 630))
	assert.True(t, SlotsOverlap(models.Monday, 600, 630, models.Monday, 540, 615))
}

func TestSlotsOverlapContainment(t *testing.T) {
	assert.True(t, SlotsOverlap(models.Friday, 540, 720, models.Friday, 600, 660))
	assert.True(t, SlotsOverlap(models.Friday, 600, 660, models.Friday, 540, 720))
}

func TestFindSlotConflictNone(t *testing.T) {
	candidate := []models.ScheduleSlot{
		{DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615},
		{DayOfWeek: models.Wednesday, StartMinute: 540, EndMinute: 615},
	}
	registered := []models.RegisteredSlot{
		{SectionID: "sec-1", CourseCode: "MATH101", DayOfWeek: models.Monday, StartMinute: 615, EndMinute: 690},
		{SectionID: "sec-2", CourseCode: "PHYS110", DayOfWeek: models.Tuesday, StartMinute: 540, EndMinute: 615},
	}
	assert.Nil(t, FindSlotConflict(candidate, registered))
}

func TestFindSlotConflictReturnsFirstHit(t *testing.T) {
	candidate := []models.ScheduleSlot{
		{DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615},
	}
	registered := []models.RegisteredSlot{
		{SectionID: "sec-1", CourseCode: "CHEM120", CourseTitle: "General Chemistry", DayOfWeek: models.Monday, StartMinute: 600, EndMinute: 660},
		{SectionID: "sec-2", CourseCode: "BIO130", DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615},
	}

	conflict := FindSlotConflict(candidate, registered)
	require.NotNil(t, conflict)
	assert.Equal(t, "sec-1", conflict.SectionID)
	assert.Equal(t, "CHEM120", conflict.CourseCode)
	assert.Equal(t, models.Monday, conflict.DayOfWeek)
	assert.Equal(t, "10:00-11:00", conflict.TimeRange())
}

func TestFindSlotConflictSelfOverlap(t *testing.T) {
	// Registering the same weekly pattern twice conflicts with itself.
	candidate := []models.ScheduleSlot{
		{DayOfWeek: models.Thursday, StartMinute: 780, EndMinute: 855},
	}
	registered := []models.RegisteredSlot{
		{SectionID: "sec-9", CourseCode: "CS200", DayOfWeek: models.Thursday, StartMinute: 780, EndMinute: 855},
	}
	assert.NotNil(t, FindSlotConflict(candidate, registered))
}
