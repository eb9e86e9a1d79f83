package model

import (
	"time"

	"github.com/google/uuid"
)

type Slot struct {
	ID          uuid.UUID `json:"id"`
	FacultyID   uuid.UUID `json:"faculty_id"`
	Subject     string    `json:"subject"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Дополнительные поля для удобства (не из таблицы slots)
	Faculty *User    `json:"faculty,omitempty"`
	Booking *Booking `json:"booking,omitempty"`
}

// Overlaps reports whether [start, end) intersects the slot's interval.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return start.Before(s.EndTime) && end.After(s.StartTime)
}

// HasBookingHistory reports whether the attached booking must be preserved.
func (s *Slot) HasBookingHistory() bool {
	return s.Booking != nil && s.Booking.Status.KeepsHistory()
}

// DurationMinutes returns the slot length in minutes.
func (s *Slot) DurationMinutes() int {
	return int(s.EndTime.Sub(s.StartTime) / time.Minute)
}
