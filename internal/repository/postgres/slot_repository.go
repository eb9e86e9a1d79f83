package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SlotRepository struct {
	db querier
}

// slotWithBookingSelect выбирает слот вместе с бронированием (LEFT JOIN 1:1)
const slotWithBookingSelect = `
	SELECT s.id, s.faculty_id, s.subject, s.start_time, s.end_time, s.is_available, s.created_at, s.updated_at,
	       b.id, b.student_id, b.status, b.cancelled_at, b.cancellation_reason, b.absent_at, b.created_at, b.updated_at
	FROM slots s
	LEFT JOIN bookings b ON b.slot_id = s.id
`

func scanSlotWithBooking(row pgx.Row) (*model.Slot, error) {
	var (
		slot               model.Slot
		bookingID          *uuid.UUID
		studentID          *uuid.UUID
		status             *string
		cancelledAt        *time.Time
		cancellationReason *string
		absentAt           *time.Time
		bookingCreatedAt   *time.Time
		bookingUpdatedAt   *time.Time
	)

	err := row.Scan(
		&slot.ID,
		&slot.FacultyID,
		&slot.Subject,
		&slot.StartTime,
		&slot.EndTime,
		&slot.IsAvailable,
		&slot.CreatedAt,
		&slot.UpdatedAt,
		&bookingID,
		&studentID,
		&status,
		&cancelledAt,
		&cancellationReason,
		&absentAt,
		&bookingCreatedAt,
		&bookingUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if bookingID != nil {
		slot.Booking = &model.Booking{
			ID:                 *bookingID,
			SlotID:             slot.ID,
			StudentID:          *studentID,
			Status:             model.BookingStatus(*status),
			CancelledAt:        cancelledAt,
			CancellationReason: *cancellationReason,
			AbsentAt:           absentAt,
			CreatedAt:          *bookingCreatedAt,
			UpdatedAt:          *bookingUpdatedAt,
		}
	}

	return &slot, nil
}

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	stamp(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	query := `
		INSERT INTO slots (id, faculty_id, subject, start_time, end_time, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		ctx, query,
		slot.ID,
		slot.FacultyID,
		slot.Subject,
		slot.StartTime,
		slot.EndTime,
		slot.IsAvailable,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create slot: %w", mapError(err))
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	slot, err := scanSlotWithBooking(r.db.QueryRow(ctx, slotWithBookingSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// Delete удаляет слот (бронирование удаляется каскадом)
func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := execAffected(ctx, r.db, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("delete slot: %w", repository.ErrNotFound)
	}

	return nil
}

// SetAvailable переключает доступность слота
func (r *SlotRepository) SetAvailable(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error {
	query := `
		UPDATE slots
		SET is_available = $1, updated_at = $2
		WHERE id = $3
	`

	affected, err := execAffected(ctx, r.db, query, available, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update slot availability: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("update slot availability: %w", repository.ErrNotFound)
	}

	return nil
}

// HasOverlap проверяет пересечение с существующими слотами преподавателя
func (r *SlotRepository) HasOverlap(ctx context.Context, facultyID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE faculty_id = $1
			  AND start_time < $3
			  AND end_time > $2
			  AND id <> $4
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, facultyID, start, end, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot overlap: %w", err)
	}

	return exists, nil
}

// DistinctSubjects возвращает различные предметы слотов преподавателя
func (r *SlotRepository) DistinctSubjects(ctx context.Context, facultyID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT subject FROM slots WHERE faculty_id = $1 ORDER BY subject`, facultyID)
	if err != nil {
		return nil, fmt.Errorf("get faculty subjects: %w", err)
	}
	defer rows.Close()

	subjects := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}

	return subjects, rows.Err()
}

// ListByFaculty получает слоты преподавателя за период
func (r *SlotRepository) ListByFaculty(ctx context.Context, facultyID uuid.UUID, from, to time.Time) ([]*model.Slot, error) {
	query := slotWithBookingSelect + `
		WHERE s.faculty_id = $1
		  AND s.start_time >= $2
		  AND s.start_time < $3
		ORDER BY s.start_time
	`

	return r.list(ctx, "get slots by faculty", query, facultyID, from, to)
}

// ListAvailable получает свободные будущие слоты указанных преподавателей
func (r *SlotRepository) ListAvailable(ctx context.Context, filter repository.AvailableSlotFilter) ([]*model.Slot, error) {
	if len(filter.FacultyIDs) == 0 {
		return []*model.Slot{}, nil
	}

	query := slotWithBookingSelect + `
		WHERE s.faculty_id = ANY($1::uuid[])
		  AND s.is_available
		  AND s.start_time > $2
		  AND (b.id IS NULL OR b.status <> 'confirmed')
		  AND ($3 = '' OR s.subject = $3)
		  AND ($4::timestamptz IS NULL OR s.start_time >= $4)
		  AND ($5::timestamptz IS NULL OR s.start_time < $5)
		ORDER BY s.start_time
	`

	return r.list(ctx, "get available slots", query,
		uuidStrings(filter.FacultyIDs), filter.After, filter.Subject, filter.From, filter.To)
}

func (r *SlotRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Slot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	slots := []*model.Slot{}
	for rows.Next() {
		slot, err := scanSlotWithBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slots, nil
}
