package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore подключается к TEST_DB_DSN и накатывает миграции.
// Без переменной тест пропускается.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	db := stdlib.OpenDBFromPool(pool)
	require.NoError(t, goose.Up(db, "."))
	require.NoError(t, db.Close())

	_, err = pool.Exec(ctx, `TRUNCATE users, slots, bookings, rebooking_permissions, student_teacher_assignments CASCADE`)
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestStoreBookingFlow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	faculty := &model.User{ExternalID: "t-1", Email: "teacher@example.com", Role: model.RoleFaculty, IsActive: true}
	student := &model.User{ExternalID: "s-1", Email: "student@example.com", Role: model.RoleStudent, IsActive: true}
	require.NoError(t, s.Users().Create(ctx, faculty))
	require.NoError(t, s.Users().Create(ctx, student))

	err := s.Users().Create(ctx, &model.User{Email: "TEACHER@example.com", Role: model.RoleStudent})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	slot := &model.Slot{FacultyID: faculty.ID, Subject: "DAA", StartTime: start, EndTime: start.Add(time.Hour), IsAvailable: true}
	require.NoError(t, s.Slots().Create(ctx, slot))

	overlap, err := s.Slots().HasOverlap(ctx, faculty.ID, start.Add(30*time.Minute), start.Add(90*time.Minute), uuid.Nil)
	require.NoError(t, err)
	assert.True(t, overlap)

	err = s.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.SlotLockKey(slot.ID), repository.StudentLockKey(student.ID)); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, &model.Booking{SlotID: slot.ID, StudentID: student.ID, Status: model.BookingStatusConfirmed}); err != nil {
			return err
		}
		return tx.Slots().SetAvailable(ctx, slot.ID, false, time.Now())
	})
	require.NoError(t, err)

	got, err := s.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Booking)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, student.ID, got.Booking.StudentID)

	conflict, err := s.Bookings().HasConflict(ctx, repository.ConflictFilter{
		StudentID: student.ID,
		Subject:   "DAA",
		Scope:     repository.ConflictScopeFuture,
		Now:       time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, conflict)

	available, err := s.Slots().ListAvailable(ctx, repository.AvailableSlotFilter{FacultyIDs: []uuid.UUID{faculty.ID}, After: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestUserFlagSetters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	faculty := &model.User{ExternalID: "t-1", Email: "teacher@example.com", Role: model.RoleFaculty,
		FacultySubject: "DAA", IsActive: true, IsAvailableForBooking: true}
	require.NoError(t, s.Users().Create(ctx, faculty))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Users().SetAvailableForBooking(ctx, faculty.ID, false, now))
	require.NoError(t, s.Users().SetActive(ctx, faculty.ID, false, now))

	got, err := s.Users().GetByID(ctx, faculty.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "DAA", got.FacultySubject)
	assert.False(t, got.IsAvailableForBooking)
	assert.False(t, got.IsActive)
	assert.True(t, now.Equal(got.UpdatedAt))

	err = s.Users().SetAvailableForBooking(ctx, uuid.New(), true, now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
