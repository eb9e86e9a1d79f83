package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// monday 09:00 UTC
var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, 2+day, hour, minute, 0, 0, time.UTC)
}

type testEnv struct {
	store        *memory.Store
	clock        *clock.FakeClock
	provider     partner.ExternalProfileProvider
	slots        *SlotService
	bookings     *BookingService
	availability *AvailabilityService
	assignments  *AssignmentService
	users        *UserService
	faculty      *FacultySyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	return newTestEnvWithProvider(t, store, partner.NewMockProvider(store))
}

func newTestEnvWithProvider(t *testing.T, store *memory.Store, provider partner.ExternalProfileProvider) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	clk := clock.Fake(testNow)
	assignments := NewAssignmentService(store, partner.DefaultAliases(), DefaultPruneConfig(), clk, logger)
	availability := NewAvailabilityService(store, provider, assignments, clk, time.UTC, logger)

	return &testEnv{
		store:        store,
		clock:        clk,
		provider:     provider,
		slots:        NewSlotService(store, clk, time.UTC, logger),
		bookings:     NewBookingService(store, availability, clk, time.UTC, logger),
		availability: availability,
		assignments:  assignments,
		users:        NewUserService(store, provider, assignments, NewTokenIssuer("test-secret", time.Hour, clk), clk, logger),
		faculty:      NewFacultySyncService(store, provider, clk, logger),
	}
}

func (e *testEnv) addFaculty(t *testing.T, externalID, email string) *model.User {
	t.Helper()
	u := &model.User{
		ExternalID:            externalID,
		Email:                 email,
		Name:                  "Faculty " + externalID,
		Role:                  model.RoleFaculty,
		IsActive:              true,
		IsAvailableForBooking: true,
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) addStudent(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{
		ExternalID: "ext-" + email,
		Email:      email,
		Name:       "Student",
		Role:       model.RoleStudent,
		IsActive:   true,
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

// addSlot создаёт 15-минутный слот через сервис
func (e *testEnv) addSlot(t *testing.T, faculty *model.User, subj string, start time.Time) *model.Slot {
	t.Helper()
	slot, err := e.slots.CreateSlot(context.Background(), faculty.ID, SlotInput{
		Subject: subj,
		Start:   start,
		End:     start.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	return slot
}

func (e *testEnv) assign(t *testing.T, student *model.User, subj string, faculty *model.User) {
	t.Helper()
	_, err := e.assignments.Upsert(context.Background(), student.ID, subj, faculty.ExternalID)
	require.NoError(t, err)
}

// stubProvider отдаёт заранее заданный профиль
type stubProvider struct {
	identity *partner.Identity
	profile  *partner.StudentProfile
	faculty  []partner.FacultyRecord
	err      error
}

func (p *stubProvider) VerifyToken(ctx context.Context, token string) (*partner.Identity, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.identity == nil || token != "good" {
		return nil, partner.ErrInvalidToken
	}
	return p.identity, nil
}

func (p *stubProvider) StudentProfile(ctx context.Context, email string) (*partner.StudentProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.profile == nil {
		return &partner.StudentProfile{Email: email, MentorEmails: []string{}}, nil
	}
	return p.profile, nil
}

func (p *stubProvider) ListFaculty(ctx context.Context) ([]partner.FacultyRecord, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.faculty, nil
}
