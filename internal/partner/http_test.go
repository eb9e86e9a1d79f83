package partner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPartnerServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token") {
		case "good":
			_, _ = w.Write([]byte(`{"valid": true, "user": {"id": 17, "email": "s@example.com", "role": "learner"}, "rollNumber": "R-17"}`))
		case "flat":
			_, _ = w.Write([]byte(`{"valid": true, "id": "f1", "email": "f@example.com", "name": "Prof", "is_faculty": true}`))
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"valid": false}`))
		}
	})
	mux.HandleFunc("/students", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"students": [
			{"email": "other@example.com", "mentorEmails": ["x@example.com"]},
			{"email": "S@example.com", "mentor_emails": ["m1@example.com"], "mentorEmailsBySubject": {"DAA": ["m1@example.com"]}}
		]}`))
	})
	mux.HandleFunc("/faculty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"faculty": [{"id": "f1", "email": "f@example.com", "name": "Prof"}]}`))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProviderVerifyToken(t *testing.T) {
	srv := newPartnerServer(t)
	p := NewHTTPProvider(srv.URL+"/", "secret", 0, DefaultAliases(), zap.NewNop())
	ctx := context.Background()

	identity, err := p.VerifyToken(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "17", identity.ExternalID)
	assert.Equal(t, model.RoleStudent, identity.Role)
	assert.Equal(t, "s", identity.Name)
	assert.Equal(t, "R-17", identity.UniversityRollNumber)
	assert.NotNil(t, identity.Raw)

	identity, err = p.VerifyToken(ctx, "flat")
	require.NoError(t, err)
	assert.Equal(t, model.RoleFaculty, identity.Role)
	assert.Equal(t, "Prof", identity.Name)

	_, err = p.VerifyToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.VerifyToken(ctx, "boom")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPProviderProfilesAndFaculty(t *testing.T) {
	srv := newPartnerServer(t)
	p := NewHTTPProvider(srv.URL, "secret", 100, DefaultAliases(), zap.NewNop())
	ctx := context.Background()

	profile, err := p.StudentProfile(ctx, "s@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1@example.com"}, profile.MentorEmails)
	assert.Equal(t, map[string][]string{"DAA": {"m1@example.com"}}, profile.MentorEmailsBySubject)

	profile, err = p.StudentProfile(ctx, "unknown@example.com")
	require.NoError(t, err)
	assert.Empty(t, profile.MentorEmails)

	faculty, err := p.ListFaculty(ctx)
	require.NoError(t, err)
	assert.Equal(t, []FacultyRecord{{ExternalID: "f1", Email: "f@example.com", Name: "Prof"}}, faculty)
}

func TestHTTPProviderRequiresCredentials(t *testing.T) {
	srv := newPartnerServer(t)
	ctx := context.Background()

	_, err := NewHTTPProvider(srv.URL, "wrong", 0, DefaultAliases(), zap.NewNop()).ListFaculty(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewHTTPProvider("", "secret", 0, DefaultAliases(), zap.NewNop()).ListFaculty(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}
