package service

import "github.com/noah-isme/uni-registrar-api/internal/models"

// SlotsOverlap reports whether two weekly slots collide. Slots on
// different days never collide; on a shared day the intervals are
// half-open [start, end), so slots touching at an endpoint do not
// conflict.
func SlotsOverlap(dayA models.DayOfWeek, startA, endA int, dayB models.DayOfWeek, startB, endB int) bool {
	if dayA != dayB {
		return false
	}
	return startA < endB && startB < endA
}

// FindSlotConflict tests every candidate slot against every slot the
// student is already registered for and returns the first conflicting
// existing slot, or nil when the weekly patterns are compatible. Only
// the first hit is reported; it carries enough section and course info
// for a user-facing diagnostic.
func FindSlotConflict(candidate []models.ScheduleSlot, registered []models.RegisteredSlot) *models.SlotConflict {
	for _, cand := range candidate {
		for _, reg := range registered {
			if SlotsOverlap(cand.DayOfWeek, cand.StartMinute, cand.EndMinute, reg.DayOfWeek, reg.StartMinute, reg.EndMinute) {
				return &models.SlotConflict{
					SectionID:   reg.SectionID,
					CourseCode:  reg.CourseCode,
					CourseTitle: reg.CourseTitle,
					DayOfWeek:   reg.DayOfWeek,
					StartMinute: reg.StartMinute,
					EndMinute:   reg.EndMinute,
				}
			}
		}
	}
	return nil
}
