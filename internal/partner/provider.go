// Package partner talks to the external PBL identity and profile service.
package partner

import (
	"context"
	"errors"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
)

var (
	// ErrUnavailable is returned when the partner could not be reached or
	// answered with something unusable. Callers treat it as "no data".
	ErrUnavailable = errors.New("partner service unavailable")
	// ErrInvalidToken is returned when a login token is rejected.
	ErrInvalidToken = errors.New("invalid sso token")
)

const (
	ModeMock = "mock"
	ModeReal = "real"
)

// Identity is a verified partner user.
type Identity struct {
	ExternalID           string
	Email                string
	Name                 string
	Role                 model.Role
	UniversityRollNumber string
	// Raw is the full verify payload, kept for assignment sync.
	Raw map[string]any
}

// StudentProfile carries the mentor information the partner knows about
// a student.
type StudentProfile struct {
	Email                 string              `json:"email"`
	MentorEmails          []string            `json:"mentor_emails"`
	MentorEmailsBySubject map[string][]string `json:"mentor_emails_by_subject,omitempty"`
	Source                string              `json:"source"`
}

// FacultyRecord is one entry of the partner faculty roster.
type FacultyRecord struct {
	ExternalID string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// ExternalProfileProvider is the capability set the scheduler needs from
// the partner. Implementations are selected once at startup.
type ExternalProfileProvider interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	// StudentProfile returns an empty profile when the student is unknown.
	StudentProfile(ctx context.Context, email string) (*StudentProfile, error)
	ListFaculty(ctx context.Context) ([]FacultyRecord, error)
}
