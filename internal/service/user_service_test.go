package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateLocalUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.users.GetOrCreateLocalUser(ctx, LocalUserInput{
		ExternalID: "x-1",
		Email:      "Someone@Example.com",
		Name:       "Someone",
		Role:       "",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, created.Role)
	assert.True(t, created.IsActive)

	updated, err := env.users.GetOrCreateLocalUser(ctx, LocalUserInput{
		ExternalID: "x-2",
		Email:      "someone@example.com",
		Role:       model.RoleFaculty,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "x-2", updated.ExternalID)
	assert.Equal(t, "Someone", updated.Name)
	assert.Equal(t, model.RoleFaculty, updated.Role)

	_, err = env.users.GetOrCreateLocalUser(ctx, LocalUserInput{Email: " "})
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestLoginWithMockToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.users.Login(ctx, "mock_faculty")
	require.NoError(t, err)
	assert.Equal(t, "bearer", result.TokenType)
	assert.Equal(t, testNow.Add(time.Hour), result.ExpiresAt)
	assert.Equal(t, "mock.faculty@example.com", result.User.Email)
	assert.Equal(t, model.RoleFaculty, result.User.Role)
	assert.Nil(t, result.Assignments)

	user, err := env.users.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	env.clock.Advance(2 * time.Hour)
	_, err = env.users.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = env.users.Login(ctx, "not-a-mock-token")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestLoginSyncsStudentAssignments(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{identity: &partner.Identity{
		ExternalID: "s-1",
		Email:      "student@example.com",
		Name:       "Student",
		Role:       model.RoleStudent,
		Raw: map[string]any{
			"user": map[string]any{
				"assignments": []any{
					map[string]any{"subject": "DAA", "teacherId": "t-1"},
					map[string]any{"subject": "java", "evaluator": map[string]any{"id": "t-2"}},
				},
			},
		},
	}}
	env := newTestEnvWithProvider(t, memory.NewStore(), provider)

	result, err := env.users.Login(ctx, "good")
	require.NoError(t, err)
	require.NotNil(t, result.Assignments)
	assert.Equal(t, []string{subject.DAA, subject.Java}, result.Assignments.Subjects)

	ids, err := env.assignments.GetAssignedTeacherIDs(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1", "t-2"}, ids)
}

func TestLoginRejectsInactiveAndUnavailable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	provider := &stubProvider{identity: &partner.Identity{ExternalID: "s-1", Email: "student@example.com", Role: model.RoleStudent}}
	env := newTestEnvWithProvider(t, store, provider)

	result, err := env.users.Login(ctx, "good")
	require.NoError(t, err)

	result.User.IsActive = false
	require.NoError(t, store.Users().Update(ctx, result.User))

	_, err = env.users.Login(ctx, "good")
	assert.ErrorIs(t, err, ErrInactiveUser)

	provider.err = errors.New("timeout")
	_, err = env.users.Login(ctx, "good")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	env := newTestEnv(t)
	user := env.addStudent(t, "student@example.com")

	token, _, err := NewTokenIssuer("other-secret", time.Hour, env.clock).Issue(user)
	require.NoError(t, err)

	_, err = NewTokenIssuer("test-secret", time.Hour, env.clock).Parse(token)
	assert.Error(t, err)

	claims, err := NewTokenIssuer("other-secret", time.Hour, env.clock).Parse(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, model.RoleStudent, claims.Role)
}

func TestFacultySync(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{faculty: []partner.FacultyRecord{
		{ExternalID: "t-1", Email: "one@example.com", Name: "One"},
		{ExternalID: "t-2", Email: "two@example.com"},
		{ExternalID: "t-9", Email: "ONE@example.com"},
		{ExternalID: "", Email: "noid@example.com"},
		{ExternalID: "t-3", Email: ""},
	}}
	env := newTestEnvWithProvider(t, memory.NewStore(), provider)
	stale := env.addFaculty(t, "t-old", "old@example.com")

	dry, err := env.faculty.Sync(ctx, FacultySyncOptions{DryRun: true, DeactivateMissing: true})
	require.NoError(t, err)
	assert.Equal(t, &FacultySyncResult{Fetched: 5, Created: 2, Skipped: 3, Deactivated: 1}, dry)

	all, err := env.store.Users().ListFaculty(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	result, err := env.faculty.Sync(ctx, FacultySyncOptions{DeactivateMissing: true})
	require.NoError(t, err)
	assert.Equal(t, dry, result)

	two, err := env.store.Users().GetByEmail(ctx, "two@example.com")
	require.NoError(t, err)
	require.NotNil(t, two)
	assert.Equal(t, "two", two.Name)
	assert.Equal(t, model.RoleFaculty, two.Role)

	old, err := env.store.Users().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	// повторный запуск ничего не меняет
	again, err := env.faculty.Sync(ctx, FacultySyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, &FacultySyncResult{Fetched: 5, Skipped: 3}, again)
}

func TestGetOrCreateLocalUserConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := env.users.GetOrCreateLocalUser(ctx, LocalUserInput{
				ExternalID: "s-1",
				Email:      fmt.Sprintf("%s@example.com", []string{"New.Student", "new.student"}[i%2]),
				Role:       model.RoleStudent,
			})
			errs[i] = err
			if u != nil {
				ids[i] = u.ID.String()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestFacultyUpsertKeepsSubjectAndAvailability(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")

	_, err := env.slots.SetFacultySubject(ctx, faculty.ID, "DAA")
	require.NoError(t, err)
	_, err = env.slots.SetAvailability(ctx, faculty.ID, false)
	require.NoError(t, err)

	updated, err := env.users.GetOrCreateLocalUser(ctx, LocalUserInput{
		ExternalID: "t-1",
		Email:      "teacher@example.com",
		Name:       "Renamed",
		Role:       model.RoleFaculty,
	})
	require.NoError(t, err)
	assert.Equal(t, faculty.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "DAA", updated.FacultySubject)
	assert.False(t, updated.IsAvailableForBooking)
}
