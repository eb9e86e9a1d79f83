package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

type User struct {
	ID                    uuid.UUID `json:"id"`
	ExternalID            string    `json:"external_id"` // идентификатор во внешней PBL системе
	Email                 string    `json:"email"`
	Name                  string    `json:"name"`
	Role                  Role      `json:"role"`
	UniversityRollNumber  string    `json:"university_roll_number,omitempty"`
	FacultySubject        string    `json:"faculty_subject,omitempty"` // закреплённый предмет преподавателя
	IsAvailableForBooking bool      `json:"is_available_for_booking"`  // переключатель "занят/свободен"
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsFaculty reports whether the user is a faculty member.
func (u *User) IsFaculty() bool {
	return u.Role == RoleFaculty
}

// IsStudent reports whether the user is a student.
func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}
