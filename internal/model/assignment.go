package model

import (
	"time"

	"github.com/google/uuid"
)

// StudentTeacherAssignment maps a student's subject to the teacher's external id.
// Unique per (student, subject).
type StudentTeacherAssignment struct {
	ID                uuid.UUID `json:"id"`
	StudentID         uuid.UUID `json:"student_id"`
	Subject           string    `json:"subject"`
	TeacherExternalID string    `json:"teacher_external_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
