package partner

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
)

// MockProvider serves identities and profiles from local data so the
// scheduler can run without the partner service.
type MockProvider struct {
	repos repository.Repositories
}

func NewMockProvider(repos repository.Repositories) *MockProvider {
	return &MockProvider{repos: repos}
}

// VerifyToken accepts "mock_<role>" or "mock_<role>_<id>_<email>_<name>".
func (p *MockProvider) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	if !strings.HasPrefix(token, "mock_") {
		return nil, ErrInvalidToken
	}

	parts := strings.SplitN(token, "_", 5)
	role := model.Role(parts[1])
	if role != model.RoleStudent && role != model.RoleFaculty {
		return nil, ErrInvalidToken
	}

	var identity Identity
	switch len(parts) {
	case 2:
		identity = Identity{
			ExternalID: fmt.Sprintf("mock_%s_001", role),
			Email:      fmt.Sprintf("mock.%s@example.com", role),
			Name:       "Mock " + strings.ToUpper(string(role[:1])) + string(role[1:]),
			Role:       role,
		}
		if role == model.RoleStudent {
			identity.UniversityRollNumber = "mock_student_roll_001"
		}
	case 5:
		identity = Identity{
			ExternalID: parts[2],
			Email:      parts[3],
			Name:       parts[4],
			Role:       role,
		}
		if role == model.RoleStudent {
			identity.UniversityRollNumber = "mock_student_roll_" + parts[2]
		}
	default:
		return nil, ErrInvalidToken
	}

	if identity.ExternalID == "" || identity.Email == "" {
		return nil, ErrInvalidToken
	}
	return &identity, nil
}

// StudentProfile derives mentor emails from the student's local assignments.
// A student without assignments sees every faculty member.
func (p *MockProvider) StudentProfile(ctx context.Context, email string) (*StudentProfile, error) {
	profile := &StudentProfile{Email: email, MentorEmails: []string{}, Source: ModeMock}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return profile, nil
	}

	student, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get mock student: %w", err)
	}
	if student == nil || !student.IsStudent() {
		return profile, nil
	}

	assignments, err := p.repos.Assignments().ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get mock assignments: %w", err)
	}

	var mentors []*model.User
	if len(assignments) == 0 {
		mentors, err = p.repos.Users().ListFaculty(ctx)
	} else {
		ids := make([]string, 0, len(assignments))
		for _, a := range assignments {
			ids = append(ids, a.TeacherExternalID)
		}
		mentors, err = p.repos.Users().GetFacultyByExternalIDs(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("get mock mentors: %w", err)
	}

	for _, m := range mentors {
		if m.Email != "" {
			profile.MentorEmails = append(profile.MentorEmails, m.Email)
		}
	}
	return profile, nil
}

// ListFaculty returns the local faculty as the roster.
func (p *MockProvider) ListFaculty(ctx context.Context) ([]FacultyRecord, error) {
	faculty, err := p.repos.Users().ListFaculty(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mock faculty: %w", err)
	}

	records := make([]FacultyRecord, 0, len(faculty))
	for _, f := range faculty {
		records = append(records, FacultyRecord{ExternalID: f.ExternalID, Email: f.Email, Name: f.Name})
	}
	return records, nil
}
