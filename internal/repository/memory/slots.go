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

type SlotRepository struct {
	store *Store
	tx    *tx
}

// withBooking возвращает копию слота с бронированием. Вызывается под store.mu.
func (s *Store) withBooking(slot model.Slot) *model.Slot {
	slot.Booking = s.bookingBySlot(slot.ID)
	return &slot
}

// bookingBySlot ищет бронирование слота. Вызывается под store.mu.
func (s *Store) bookingBySlot(slotID uuid.UUID) *model.Booking {
	for _, b := range s.bookings {
		if b.SlotID == slotID {
			b.Slot = nil
			b.Student = nil
			return &b
		}
	}
	return nil
}

func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	if !slot.StartTime.Before(slot.EndTime) {
		return fmt.Errorf("create slot: start_time must be before end_time")
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[slot.FacultyID]; !ok {
		return fmt.Errorf("create slot: faculty %s: %w", slot.FacultyID, repository.ErrNotFound)
	}

	r.store.stamp(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)
	stored := *slot
	stored.Faculty = nil
	stored.Booking = nil
	put(r.tx, r.store.slots, slot.ID, stored)
	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return nil, nil
	}
	return r.store.withBooking(slot), nil
}

// Delete удаляет слот вместе с его бронированием
func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if !remove(r.tx, r.store.slots, id) {
		return fmt.Errorf("delete slot: %w", repository.ErrNotFound)
	}

	if b := r.store.bookingBySlot(id); b != nil {
		remove(r.tx, r.store.bookings, b.ID)
	}
	return nil
}

func (r *SlotRepository) SetAvailable(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return fmt.Errorf("update slot availability: %w", repository.ErrNotFound)
	}

	slot.IsAvailable = available
	slot.UpdatedAt = updatedAt
	put(r.tx, r.store.slots, id, slot)
	return nil
}

func (r *SlotRepository) HasOverlap(ctx context.Context, facultyID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for id, slot := range r.store.slots {
		if id == excludeID || slot.FacultyID != facultyID {
			continue
		}
		if slot.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r *SlotRepository) DistinctSubjects(ctx context.Context, facultyID uuid.UUID) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := make(map[string]struct{})
	subjects := []string{}
	for _, slot := range r.store.slots {
		if slot.FacultyID != facultyID {
			continue
		}
		if _, ok := seen[slot.Subject]; ok {
			continue
		}
		seen[slot.Subject] = struct{}{}
		subjects = append(subjects, slot.Subject)
	}

	sort.Strings(subjects)
	return subjects, nil
}

func (r *SlotRepository) ListByFaculty(ctx context.Context, facultyID uuid.UUID, from, to time.Time) ([]*model.Slot, error) {
	return r.list(func(slot *model.Slot) bool {
		return slot.FacultyID == facultyID &&
			!slot.StartTime.Before(from) &&
			slot.StartTime.Before(to)
	}), nil
}

func (r *SlotRepository) ListAvailable(ctx context.Context, filter repository.AvailableSlotFilter) ([]*model.Slot, error) {
	faculty := make(map[uuid.UUID]struct{}, len(filter.FacultyIDs))
	for _, id := range filter.FacultyIDs {
		faculty[id] = struct{}{}
	}

	return r.list(func(slot *model.Slot) bool {
		if _, ok := faculty[slot.FacultyID]; !ok {
			return false
		}
		if !slot.IsAvailable || !slot.StartTime.After(filter.After) {
			return false
		}
		if slot.Booking != nil && slot.Booking.Status == model.BookingStatusConfirmed {
			return false
		}
		if filter.Subject != "" && slot.Subject != filter.Subject {
			return false
		}
		if filter.From != nil && slot.StartTime.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !slot.StartTime.Before(*filter.To) {
			return false
		}
		return true
	}), nil
}

// list возвращает подходящие слоты с бронированиями, упорядоченные по времени начала
func (r *SlotRepository) list(match func(slot *model.Slot) bool) []*model.Slot {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	slots := []*model.Slot{}
	for _, s := range r.store.slots {
		slot := r.store.withBooking(s)
		if match(slot) {
			slots = append(slots, slot)
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots
}
