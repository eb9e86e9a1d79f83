package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBookingHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	slot := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))

	const attempts = 8
	students := make([]*model.User, attempts)
	for i := range students {
		students[i] = env.addStudent(t, fmt.Sprintf("student%d@example.com", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.bookings.CreateBooking(ctx, students[i].ID, slot.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, ErrSlotNoLongerAvailable) || errors.Is(err, ErrSlotAlreadyBooked), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)

	got, err := env.store.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
	require.NotNil(t, got.Booking)
	assert.Equal(t, model.BookingStatusConfirmed, got.Booking.Status)
}

func TestCancelThenRebookReusesBooking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	first := env.addStudent(t, "first@example.com")
	second := env.addStudent(t, "second@example.com")
	slot := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))

	booking, err := env.bookings.Book(ctx, first.ID, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, booking.Status)

	cancelled, err := env.bookings.CancelBooking(ctx, first.ID, booking.ID, "sick", false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	got, err := env.store.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)

	rebooked, err := env.bookings.Book(ctx, second.ID, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, rebooked.ID)
	assert.Equal(t, second.ID, rebooked.StudentID)
	assert.Equal(t, model.BookingStatusConfirmed, rebooked.Status)
	assert.Nil(t, rebooked.CancelledAt)
	assert.Empty(t, rebooked.CancellationReason)
}

func TestSubjectConflictScopes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")

	first := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))
	sameDay := env.addSlot(t, faculty, subject.DAA, at(1, 11, 0))
	nextDay := env.addSlot(t, faculty, subject.DAA, at(2, 10, 0))

	booking, err := env.bookings.Book(ctx, student.ID, first.ID)
	require.NoError(t, err)

	// предварительная проверка смотрит только на день слота
	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, sameDay.ID), ErrSameDayConflict)
	assert.NoError(t, env.bookings.ValidateBooking(ctx, student.ID, nextDay.ID))

	// атомарное создание смотрит на все будущие бронирования
	_, err = env.bookings.Book(ctx, student.ID, nextDay.ID)
	assert.ErrorIs(t, err, ErrSubjectConflict)

	_, err = env.bookings.CancelBooking(ctx, student.ID, booking.ID, "", false)
	require.NoError(t, err)

	_, err = env.bookings.Book(ctx, student.ID, nextDay.ID)
	assert.NoError(t, err)
}

func TestAbsenceLocksUntilRebookingAllowed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	teammate := env.addStudent(t, "teammate@example.com")

	first := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))
	second := env.addSlot(t, faculty, subject.DAA, at(3, 10, 0))
	third := env.addSlot(t, faculty, subject.DAA, at(5, 10, 0))
	teammateSlot := env.addSlot(t, faculty, subject.DAA, at(3, 11, 0))

	_, err := env.bookings.AllowRebooking(ctx, faculty.ID, student.ID, subject.DAA)
	assert.ErrorIs(t, err, ErrRebookingNotNeeded)

	booking, err := env.bookings.Book(ctx, student.ID, first.ID)
	require.NoError(t, err)

	env.clock.Set(at(1, 10, 30))
	absent, err := env.bookings.MarkAbsent(ctx, faculty.ID, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAbsent, absent.Status)
	require.NotNil(t, absent.AbsentAt)

	_, err = env.bookings.Book(ctx, student.ID, second.ID)
	require.ErrorIs(t, err, ErrAbsenceLocked)
	assert.Contains(t, err.Error(), "Booking for DAA is blocked")

	// неявка одного студента не блокирует других
	_, err = env.bookings.Book(ctx, teammate.ID, teammateSlot.ID)
	require.NoError(t, err)

	env.clock.Set(at(1, 11, 0))
	permission, err := env.bookings.AllowRebooking(ctx, faculty.ID, student.ID, "daa")
	require.NoError(t, err)
	assert.Equal(t, faculty.ExternalID, permission.TeacherExternalID)

	booking, err = env.bookings.Book(ctx, student.ID, second.ID)
	require.NoError(t, err)

	// новое отсутствие после выданного разрешения снова блокирует
	env.clock.Set(at(3, 10, 30))
	_, err = env.bookings.MarkAbsent(ctx, faculty.ID, booking.ID)
	require.NoError(t, err)

	_, err = env.bookings.Book(ctx, student.ID, third.ID)
	assert.ErrorIs(t, err, ErrAbsenceLocked)
}

func TestStudentCancellationWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	start := at(1, 10, 0)
	slot := env.addSlot(t, faculty, subject.DAA, start)

	booking, err := env.bookings.Book(ctx, student.ID, slot.ID)
	require.NoError(t, err)

	env.clock.Set(start.Add(-(3*time.Hour + 59*time.Minute)))
	_, err = env.bookings.CancelBooking(ctx, student.ID, booking.ID, "", false)
	require.ErrorIs(t, err, ErrCancellationWindow)
	assert.Equal(t, model.StudentCancellationWindowMessage, err.Error())

	// студент не может обойти окно флагом force
	_, err = env.bookings.CancelBooking(ctx, student.ID, booking.ID, "", true)
	assert.ErrorIs(t, err, ErrCancellationWindow)

	env.clock.Set(start.Add(-(4*time.Hour + time.Minute)))
	_, err = env.bookings.CancelBooking(ctx, student.ID, booking.ID, "", false)
	require.NoError(t, err)

	_, err = env.bookings.CancelBooking(ctx, student.ID, booking.ID, "", false)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestFacultyForcedCancellation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	other := env.addFaculty(t, "t-2", "other@example.com")
	student := env.addStudent(t, "student@example.com")
	start := at(1, 10, 0)
	slot := env.addSlot(t, faculty, subject.DAA, start)

	booking, err := env.bookings.Book(ctx, student.ID, slot.ID)
	require.NoError(t, err)

	env.clock.Set(start.Add(-10 * time.Minute))

	_, err = env.bookings.CancelBooking(ctx, other.ID, booking.ID, "", true)
	assert.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := env.bookings.CancelBooking(ctx, faculty.ID, booking.ID, "faculty unavailable", true)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Slot.IsAvailable)
}

func TestValidateBookingRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	other := env.addStudent(t, "other@example.com")
	slot := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))

	_, err := env.bookings.Book(ctx, other.ID, slot.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, slot.ID), ErrSlotUnavailable)
	_, err = env.bookings.CreateBooking(ctx, student.ID, slot.ID)
	assert.ErrorIs(t, err, ErrSlotNoLongerAvailable)

	_, err = env.bookings.Book(ctx, faculty.ID, slot.ID)
	assert.ErrorIs(t, err, ErrStudentOnly)

	past := env.addSlot(t, faculty, subject.DAA, at(0, 9, 30))
	env.clock.Set(at(0, 9, 45))
	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, past.ID), ErrSlotInPast)
	_, err = env.bookings.CreateBooking(ctx, student.ID, past.ID)
	assert.ErrorIs(t, err, ErrSlotInPast)
}

func TestAfterHoursRule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	tonight := env.addSlot(t, faculty, subject.DAA, at(0, 20, 0))
	tomorrow := env.addSlot(t, faculty, subject.DAA, at(1, 9, 0))

	env.clock.Set(at(0, 19, 0))
	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, tonight.ID), ErrAfterHours)
	_, err := env.bookings.CreateBooking(ctx, student.ID, tonight.ID)
	assert.ErrorIs(t, err, ErrAfterHours)

	_, err = env.bookings.Book(ctx, student.ID, tomorrow.ID)
	assert.NoError(t, err)
}

func TestMentorAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mentor := env.addFaculty(t, "t-1", "mentor@example.com")
	stranger := env.addFaculty(t, "t-2", "stranger@example.com")
	student := env.addStudent(t, "student@example.com")
	env.assign(t, student, subject.DAA, mentor)

	own := env.addSlot(t, mentor, subject.DAA, at(1, 10, 0))
	foreign := env.addSlot(t, stranger, subject.DAA, at(1, 11, 0))

	assert.NoError(t, env.bookings.ValidateBooking(ctx, student.ID, own.ID))
	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, foreign.ID), ErrNotAuthorized)
}

func TestMentorsUnknownWhenProfileUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithProvider(t, memory.NewStore(), &stubProvider{err: errors.New("boom")})
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	slot := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))

	assert.ErrorIs(t, env.bookings.ValidateBooking(ctx, student.ID, slot.ID), ErrMentorsUnknown)
}

func TestMarkCompletedAndLists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.addFaculty(t, "t-1", "teacher@example.com")
	student := env.addStudent(t, "student@example.com")
	slot := env.addSlot(t, faculty, subject.DAA, at(1, 10, 0))

	booking, err := env.bookings.Book(ctx, student.ID, slot.ID)
	require.NoError(t, err)

	_, err = env.bookings.MarkCompleted(ctx, student.ID, booking.ID)
	assert.ErrorIs(t, err, ErrFacultyOnly)

	completed, err := env.bookings.MarkCompleted(ctx, faculty.ID, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)

	_, err = env.bookings.MarkAbsent(ctx, faculty.ID, booking.ID)
	assert.ErrorIs(t, err, ErrNotMarkable)

	mine, err := env.bookings.ListStudentBookings(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, booking.ID, mine[0].ID)

	theirs, err := env.bookings.ListFacultyBookings(ctx, faculty.ID)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	require.NotNil(t, theirs[0].Student)
	assert.Equal(t, student.Email, theirs[0].Student.Email)
}
