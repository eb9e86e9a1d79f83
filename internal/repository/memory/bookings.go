package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
)

type BookingRepository struct {
	store *Store
	tx    *tx
}

// withSlot возвращает копию бронирования со слотом. Вызывается под store.mu.
func (s *Store) withSlot(b model.Booking) *model.Booking {
	b.Slot = nil
	b.Student = nil
	if slot, ok := s.slots[b.SlotID]; ok {
		slot.Booking = nil
		b.Slot = &slot
	}
	return &b
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.slots[booking.SlotID]; !ok {
		return fmt.Errorf("create booking: slot %s: %w", booking.SlotID, repository.ErrNotFound)
	}
	if r.store.bookingBySlot(booking.SlotID) != nil {
		return fmt.Errorf("create booking: %w", repository.ErrDuplicate)
	}

	r.store.stamp(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	stored := *booking
	stored.Slot = nil
	stored.Student = nil
	put(r.tx, r.store.bookings, booking.ID, stored)
	return nil
}

func (r *BookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.bookings[booking.ID]
	if !ok {
		return fmt.Errorf("update booking: %w", repository.ErrNotFound)
	}

	updated := existing
	updated.StudentID = booking.StudentID
	updated.Status = booking.Status
	updated.CancelledAt = booking.CancelledAt
	updated.CancellationReason = booking.CancellationReason
	updated.AbsentAt = booking.AbsentAt
	updated.UpdatedAt = booking.UpdatedAt
	put(r.tx, r.store.bookings, booking.ID, updated)
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.store.bookings[id]
	if !ok {
		return nil, nil
	}
	return r.store.withSlot(b), nil
}

func (r *BookingRepository) GetBySlotID(ctx context.Context, slotID uuid.UUID) (*model.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b := r.store.bookingBySlot(slotID)
	if b == nil {
		return nil, nil
	}
	return r.store.withSlot(*b), nil
}

func (r *BookingRepository) HasConflict(ctx context.Context, filter repository.ConflictFilter) (bool, error) {
	if filter.Scope != repository.ConflictScopeSameDay && filter.Scope != repository.ConflictScopeFuture {
		return false, fmt.Errorf("check booking conflict: unknown scope %q", filter.Scope)
	}

	bookings := r.list(func(b *model.Booking) bool {
		if b.StudentID != filter.StudentID || b.ID == filter.ExcludeID || !b.Status.IsActive() {
			return false
		}
		if b.Slot == nil || b.Slot.Subject != filter.Subject {
			return false
		}
		start := b.Slot.StartTime
		if filter.Scope == repository.ConflictScopeSameDay {
			return !start.Before(filter.DayStart) && start.Before(filter.DayEnd)
		}
		return start.After(filter.Now)
	})

	return len(bookings) > 0, nil
}

func (r *BookingRepository) LatestAbsent(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.Booking, error) {
	r.store.mu.RLock()
	faculty := make(map[uuid.UUID]struct{})
	for id, u := range r.store.users {
		if u.ExternalID == teacherExternalID {
			faculty[id] = struct{}{}
		}
	}
	r.store.mu.RUnlock()

	absent := r.list(func(b *model.Booking) bool {
		if b.StudentID != studentID || b.Status != model.BookingStatusAbsent || b.Slot == nil {
			return false
		}
		_, ok := faculty[b.Slot.FacultyID]
		return ok && b.Slot.Subject == subject
	})
	if len(absent) == 0 {
		return nil, nil
	}

	// absent_at DESC NULLS LAST, updated_at DESC
	sort.SliceStable(absent, func(i, j int) bool {
		a, b := absent[i], absent[j]
		switch {
		case a.AbsentAt != nil && b.AbsentAt == nil:
			return true
		case a.AbsentAt == nil && b.AbsentAt != nil:
			return false
		case a.AbsentAt != nil && !a.AbsentAt.Equal(*b.AbsentAt):
			return a.AbsentAt.After(*b.AbsentAt)
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})

	return absent[0], nil
}

func (r *BookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool { return b.StudentID == studentID }), nil
}

func (r *BookingRepository) ListByFaculty(ctx context.Context, facultyID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.Slot != nil && b.Slot.FacultyID == facultyID
	}), nil
}

// list возвращает подходящие бронирования со слотами, поздние слоты сверху
func (r *BookingRepository) list(match func(b *model.Booking) bool) []*model.Booking {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	bookings := []*model.Booking{}
	for _, b := range r.store.bookings {
		booking := r.store.withSlot(b)
		if match(booking) {
			bookings = append(bookings, booking)
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		return slotStart(bookings[i]).After(slotStart(bookings[j]))
	})
	return bookings
}

func slotStart(b *model.Booking) time.Time {
	if b.Slot != nil {
		return b.Slot.StartTime
	}
	return b.CreatedAt
}
