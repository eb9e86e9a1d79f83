package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService struct {
	store        repository.Store
	availability *AvailabilityService
	clock        clock.Clock
	loc          *time.Location
	logger       *zap.Logger
}

func NewBookingService(
	store repository.Store,
	availability *AvailabilityService,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:        store,
		availability: availability,
		clock:        clk,
		loc:          loc,
		logger:       logger,
	}
}

// Book проверяет возможность записи и атомарно создаёт бронирование
func (s *BookingService) Book(ctx context.Context, studentID, slotID uuid.UUID) (*model.Booking, error) {
	if err := s.ValidateBooking(ctx, studentID, slotID); err != nil {
		return nil, err
	}
	return s.CreateBooking(ctx, studentID, slotID)
}

// ValidateBooking - предварительная проверка без блокировок.
// Конфликт по предмету ищется в пределах дня слота.
func (s *BookingService) ValidateBooking(ctx context.Context, studentID, slotID uuid.UUID) error {
	student, err := loadStudent(ctx, s.store, studentID)
	if err != nil {
		return err
	}

	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return ErrSlotNotFound
	}

	now := s.clock.Now()
	if !slot.IsAvailable {
		return ErrSlotUnavailable
	}
	if !slot.StartTime.After(now) {
		return ErrSlotInPast
	}
	if slot.Booking != nil && slot.Booking.Status == model.BookingStatusConfirmed {
		return ErrSlotAlreadyBooked
	}

	if err := s.availability.IsAuthorized(ctx, student, slot); err != nil {
		return err
	}

	if isAfterHours(now, slot.StartTime, s.loc) {
		return ErrAfterHours
	}

	dayStart, dayEnd := dayBounds(slot.StartTime, s.loc)
	conflict, err := s.store.Bookings().HasConflict(ctx, repository.ConflictFilter{
		StudentID: studentID,
		Subject:   slot.Subject,
		Scope:     repository.ConflictScopeSameDay,
		DayStart:  dayStart,
		DayEnd:    dayEnd,
		ExcludeID: ownBookingID(slot),
	})
	if err != nil {
		return fmt.Errorf("check booking conflict: %w", err)
	}
	if conflict {
		return ErrSameDayConflict
	}

	return s.checkAbsence(ctx, s.store, studentID, slot)
}

// CreateBooking создаёт бронирование в одной транзакции под блокировками
// слота и студента. Здесь конфликт по предмету ищется по всем будущим слотам.
func (s *BookingService) CreateBooking(ctx context.Context, studentID, slotID uuid.UUID) (*model.Booking, error) {
	var booking *model.Booking
	var recycled bool

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.SlotLockKey(slotID), repository.StudentLockKey(studentID)); err != nil {
			return err
		}

		if _, err := loadStudent(ctx, tx, studentID); err != nil {
			return err
		}

		slot, err := tx.Slots().GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return ErrSlotNotFound
		}
		if !slot.IsAvailable {
			return ErrSlotNoLongerAvailable
		}

		now := s.clock.Now()
		if !slot.StartTime.After(now) {
			return ErrSlotInPast
		}

		existing := slot.Booking
		if existing != nil && existing.Status != model.BookingStatusCancelled {
			return ErrSlotAlreadyBooked
		}

		conflict, err := tx.Bookings().HasConflict(ctx, repository.ConflictFilter{
			StudentID: studentID,
			Subject:   slot.Subject,
			Scope:     repository.ConflictScopeFuture,
			Now:       now,
			ExcludeID: ownBookingID(slot),
		})
		if err != nil {
			return fmt.Errorf("check booking conflict: %w", err)
		}
		if conflict {
			return ErrSubjectConflict
		}

		if err := s.checkAbsence(ctx, tx, studentID, slot); err != nil {
			return err
		}

		if isAfterHours(now, slot.StartTime, s.loc) {
			return ErrAfterHours
		}

		if existing != nil {
			// Отменённая строка переиспользуется новым владельцем
			booking = existing
			booking.StudentID = studentID
			booking.Status = model.BookingStatusConfirmed
			booking.CancelledAt = nil
			booking.CancellationReason = ""
			booking.AbsentAt = nil
			booking.UpdatedAt = now
			if err := tx.Bookings().Update(ctx, booking); err != nil {
				return fmt.Errorf("recycle booking: %w", err)
			}
			recycled = true
		} else {
			booking = &model.Booking{
				SlotID:    slotID,
				StudentID: studentID,
				Status:    model.BookingStatusConfirmed,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Bookings().Create(ctx, booking); err != nil {
				return fmt.Errorf("create booking: %w", err)
			}
		}

		if err := tx.Slots().SetAvailable(ctx, slotID, false, now); err != nil {
			return fmt.Errorf("book slot: %w", err)
		}

		slot.IsAvailable = false
		slot.Booking = nil
		booking.Slot = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot booked",
		zap.String("booking_id", booking.ID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("slot_id", slotID.String()),
		zap.String("subject", booking.Slot.Subject),
		zap.Bool("recycled", recycled),
	)

	return booking, nil
}

func ownBookingID(slot *model.Slot) uuid.UUID {
	if slot.Booking == nil {
		return uuid.Nil
	}
	return slot.Booking.ID
}

// checkAbsence блокирует запись после неявки, пока преподаватель не выдал
// разрешение не раньше момента неявки
func (s *BookingService) checkAbsence(ctx context.Context, repos repository.Repositories, studentID uuid.UUID, slot *model.Slot) error {
	faculty, err := repos.Users().GetByID(ctx, slot.FacultyID)
	if err != nil {
		return fmt.Errorf("get slot faculty: %w", err)
	}
	if faculty == nil {
		return ErrUserNotFound
	}

	absent, err := repos.Bookings().LatestAbsent(ctx, studentID, slot.Subject, faculty.ExternalID)
	if err != nil {
		return fmt.Errorf("get latest absence: %w", err)
	}
	if absent == nil {
		return nil
	}

	permission, err := repos.Permissions().Get(ctx, studentID, slot.Subject, faculty.ExternalID)
	if err != nil {
		return fmt.Errorf("get rebooking permission: %w", err)
	}
	if permission != nil && permission.Unlocks(absent.AbsenceTime()) {
		return nil
	}

	e := withMessage(ErrAbsenceLocked, fmt.Sprintf(
		"Booking for %s is blocked because you were marked absent. Your faculty must allow rebooking before you can book another slot.",
		slot.Subject,
	))
	e.Details = map[string]any{"subject": slot.Subject}
	return e
}

// lockBooking находит бронирование и блокирует его слот и студента
func lockBooking(ctx context.Context, tx repository.Tx, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	if err := tx.Lock(ctx, repository.SlotLockKey(booking.SlotID), repository.StudentLockKey(booking.StudentID)); err != nil {
		return nil, err
	}

	// Перечитываем под блокировкой
	booking, err = tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// CancelBooking отменяет бронирование. Студент отменяет только своё и не
// позже чем за 4 часа; преподаватель отменяет записи на свои слоты с force.
func (s *BookingService) CancelBooking(ctx context.Context, actorID, bookingID uuid.UUID, reason string, force bool) (*model.Booking, error) {
	var booking *model.Booking

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		actor, err := tx.Users().GetByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if actor == nil {
			return ErrUserNotFound
		}

		booking, err = lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		switch {
		case actor.IsStudent():
			if booking.StudentID != actorID {
				return ErrNotOwner
			}
			force = false
		case actor.IsFaculty():
			if booking.Slot == nil || booking.Slot.FacultyID != actorID {
				return ErrNotOwner
			}
		default:
			return ErrNotOwner
		}

		if booking.Status != model.BookingStatusConfirmed {
			return ErrNotCancellable
		}

		now := s.clock.Now()
		if !force && !booking.CanCancel(booking.Slot.StartTime, now) {
			return ErrCancellationWindow
		}

		booking.Status = model.BookingStatusCancelled
		booking.CancelledAt = &now
		booking.CancellationReason = reason
		booking.UpdatedAt = now
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}

		if err := tx.Slots().SetAvailable(ctx, booking.SlotID, true, now); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		booking.Slot.IsAvailable = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Bool("force", force),
	)

	return booking, nil
}

// MarkAbsent отмечает неявку студента. Слот остаётся занятым.
func (s *BookingService) MarkAbsent(ctx context.Context, facultyID, bookingID uuid.UUID) (*model.Booking, error) {
	return s.mark(ctx, facultyID, bookingID, model.BookingStatusAbsent)
}

// MarkCompleted отмечает проведённое занятие
func (s *BookingService) MarkCompleted(ctx context.Context, facultyID, bookingID uuid.UUID) (*model.Booking, error) {
	return s.mark(ctx, facultyID, bookingID, model.BookingStatusCompleted)
}

func (s *BookingService) mark(ctx context.Context, facultyID, bookingID uuid.UUID, status model.BookingStatus) (*model.Booking, error) {
	var booking *model.Booking

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := loadFaculty(ctx, tx, facultyID); err != nil {
			return err
		}

		var err error
		booking, err = lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Slot == nil || booking.Slot.FacultyID != facultyID {
			return ErrNotOwner
		}
		if booking.Status != model.BookingStatusConfirmed {
			return ErrNotMarkable
		}

		now := s.clock.Now()
		booking.Status = status
		booking.UpdatedAt = now
		if status == model.BookingStatusAbsent {
			booking.AbsentAt = &now
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return fmt.Errorf("mark booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking marked",
		zap.String("booking_id", bookingID.String()),
		zap.String("faculty_id", facultyID.String()),
		zap.String("status", string(status)),
	)

	return booking, nil
}

// AllowRebooking разрешает студенту снова записаться по предмету после неявки
func (s *BookingService) AllowRebooking(ctx context.Context, facultyID, studentID uuid.UUID, rawSubject string) (*model.RebookingPermission, error) {
	subj := subject.Normalize(rawSubject)
	if subj == "" {
		return nil, ErrSubjectRequired
	}
	if !subject.IsAllowed(subj) {
		return nil, ErrInvalidSubject
	}

	var permission *model.RebookingPermission
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.StudentLockKey(studentID)); err != nil {
			return err
		}

		faculty, err := loadFaculty(ctx, tx, facultyID)
		if err != nil {
			return err
		}
		if _, err := loadStudent(ctx, tx, studentID); err != nil {
			return err
		}

		absent, err := tx.Bookings().LatestAbsent(ctx, studentID, subj, faculty.ExternalID)
		if err != nil {
			return fmt.Errorf("get latest absence: %w", err)
		}
		if absent == nil {
			return ErrRebookingNotNeeded
		}

		now := s.clock.Now()
		permission = &model.RebookingPermission{
			StudentID:         studentID,
			Subject:           subj,
			TeacherExternalID: faculty.ExternalID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Permissions().Upsert(ctx, permission); err != nil {
			return fmt.Errorf("allow rebooking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rebooking allowed",
		zap.String("student_id", studentID.String()),
		zap.String("faculty_id", facultyID.String()),
		zap.String("subject", subj),
	)

	return permission, nil
}

// ListStudentBookings возвращает бронирования студента, новые слоты первыми
func (s *BookingService) ListStudentBookings(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	if _, err := loadStudent(ctx, s.store, studentID); err != nil {
		return nil, err
	}

	bookings, err := s.store.Bookings().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student bookings: %w", err)
	}
	return bookings, nil
}

// ListFacultyBookings возвращает бронирования на слоты преподавателя со студентами
func (s *BookingService) ListFacultyBookings(ctx context.Context, facultyID uuid.UUID) ([]*model.Booking, error) {
	if _, err := loadFaculty(ctx, s.store, facultyID); err != nil {
		return nil, err
	}

	bookings, err := s.store.Bookings().ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, fmt.Errorf("get faculty bookings: %w", err)
	}

	students := make(map[uuid.UUID]*model.User)
	for _, b := range bookings {
		student, ok := students[b.StudentID]
		if !ok {
			student, err = s.store.Users().GetByID(ctx, b.StudentID)
			if err != nil {
				return nil, fmt.Errorf("get booking student: %w", err)
			}
			students[b.StudentID] = student
		}
		b.Student = student
	}
	return bookings, nil
}
