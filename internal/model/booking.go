package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено (строка может быть переиспользована)
	BookingStatusCompleted BookingStatus = "completed" // Занятие проведено
	BookingStatusAbsent    BookingStatus = "absent"    // Студент не пришёл
)

// StudentCancellationWindowHours is how close to the slot start a student may
// no longer cancel on their own.
const StudentCancellationWindowHours = 4

const StudentCancellationWindowMessage = "Cancellation is not allowed within 4 hours of the scheduled slot."

// KeepsHistory reports whether a booking in this status blocks slot deletion.
func (s BookingStatus) KeepsHistory() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCompleted || s == BookingStatusAbsent
}

// IsActive reports whether the status counts for same-subject conflicts.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusConfirmed || s == BookingStatusAbsent
}

type Booking struct {
	ID                 uuid.UUID     `json:"id"`
	SlotID             uuid.UUID     `json:"slot_id"`
	StudentID          uuid.UUID     `json:"student_id"`
	Status             BookingStatus `json:"status"`
	CancelledAt        *time.Time    `json:"cancelled_at"`
	CancellationReason string        `json:"cancellation_reason"`
	AbsentAt           *time.Time    `json:"absent_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Slot    *Slot `json:"slot,omitempty"`
	Student *User `json:"student,omitempty"`
}

// CanCancel reports whether a student may still cancel the booking at now.
// Faculty cancellations are not bound by the window.
func (b *Booking) CanCancel(slotStart, now time.Time) bool {
	if b.Status != BookingStatusConfirmed {
		return false
	}
	deadline := slotStart.Add(-StudentCancellationWindowHours * time.Hour)
	return now.Before(deadline)
}

// AbsenceTime returns when the student was marked absent, falling back to
// the last update for rows written before absent_at existed.
func (b *Booking) AbsenceTime() time.Time {
	if b.AbsentAt != nil {
		return *b.AbsentAt
	}
	return b.UpdatedAt
}
