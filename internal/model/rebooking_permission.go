package model

import (
	"time"

	"github.com/google/uuid"
)

// RebookingPermission lets a student book a subject again after being marked
// absent. Unique per (student, subject).
type RebookingPermission struct {
	ID                uuid.UUID `json:"id"`
	StudentID         uuid.UUID `json:"student_id"`
	Subject           string    `json:"subject"`
	TeacherExternalID string    `json:"teacher_external_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Unlocks reports whether the permission was granted at or after absentAt.
func (p *RebookingPermission) Unlocks(absentAt time.Time) bool {
	return !p.UpdatedAt.Before(absentAt)
}
