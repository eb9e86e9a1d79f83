package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type BookingRepository struct {
	db querier
}

const bookingColumns = `b.id, b.slot_id, b.student_id, b.status, b.cancelled_at, b.cancellation_reason, b.absent_at, b.created_at, b.updated_at`

// bookingWithSlotSelect выбирает бронирование вместе со слотом
const bookingWithSlotSelect = `
	SELECT ` + bookingColumns + `,
	       s.faculty_id, s.subject, s.start_time, s.end_time, s.is_available, s.created_at, s.updated_at
	FROM bookings b
	JOIN slots s ON s.id = b.slot_id
`

func scanBooking(row pgx.Row, extra ...any) (*model.Booking, error) {
	var booking model.Booking
	dest := append([]any{
		&booking.ID,
		&booking.SlotID,
		&booking.StudentID,
		&booking.Status,
		&booking.CancelledAt,
		&booking.CancellationReason,
		&booking.AbsentAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &booking, nil
}

func scanBookingWithSlot(row pgx.Row) (*model.Booking, error) {
	var slot model.Slot
	booking, err := scanBooking(row,
		&slot.FacultyID,
		&slot.Subject,
		&slot.StartTime,
		&slot.EndTime,
		&slot.IsAvailable,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.ID = booking.SlotID
	booking.Slot = &slot
	return booking, nil
}

// Create создаёт бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	stamp(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	query := `
		INSERT INTO bookings (id, slot_id, student_id, status, cancelled_at, cancellation_reason, absent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(
		ctx, query,
		booking.ID,
		booking.SlotID,
		booking.StudentID,
		booking.Status,
		booking.CancelledAt,
		booking.CancellationReason,
		booking.AbsentAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", mapError(err))
	}

	return nil
}

// Update сохраняет изменяемые поля бронирования
func (r *BookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	query := `
		UPDATE bookings
		SET student_id = $1, status = $2, cancelled_at = $3, cancellation_reason = $4, absent_at = $5, updated_at = $6
		WHERE id = $7
	`

	affected, err := execAffected(
		ctx, r.db, query,
		booking.StudentID,
		booking.Status,
		booking.CancelledAt,
		booking.CancellationReason,
		booking.AbsentAt,
		booking.UpdatedAt,
		booking.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", mapError(err))
	}

	if affected == 0 {
		return fmt.Errorf("update booking: %w", repository.ErrNotFound)
	}

	return nil
}

// GetByID получает бронирование по ID вместе со слотом
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	booking, err := scanBookingWithSlot(r.db.QueryRow(ctx, bookingWithSlotSelect+` WHERE b.id = $1`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// GetBySlotID получает бронирование слота в любом статусе
func (r *BookingRepository) GetBySlotID(ctx context.Context, slotID uuid.UUID) (*model.Booking, error) {
	booking, err := scanBookingWithSlot(r.db.QueryRow(ctx, bookingWithSlotSelect+` WHERE b.slot_id = $1`, slotID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by slot: %w", err)
	}

	return booking, nil
}

// HasConflict проверяет наличие активного бронирования студента по предмету
func (r *BookingRepository) HasConflict(ctx context.Context, filter repository.ConflictFilter) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM bookings b
			JOIN slots s ON s.id = b.slot_id
			WHERE b.student_id = $1
			  AND s.subject = $2
			  AND b.status IN ('confirmed', 'absent')
			  AND b.id <> $3
	`

	args := []any{filter.StudentID, filter.Subject, filter.ExcludeID}

	switch filter.Scope {
	case repository.ConflictScopeSameDay:
		query += ` AND s.start_time >= $4 AND s.start_time < $5)`
		args = append(args, filter.DayStart, filter.DayEnd)
	case repository.ConflictScopeFuture:
		query += ` AND s.start_time > $4)`
		args = append(args, filter.Now)
	default:
		return false, fmt.Errorf("check booking conflict: unknown scope %q", filter.Scope)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check booking conflict: %w", err)
	}

	return exists, nil
}

// LatestAbsent получает последнее бронирование со статусом absent
func (r *BookingRepository) LatestAbsent(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.Booking, error) {
	query := bookingWithSlotSelect + `
		JOIN users f ON f.id = s.faculty_id
		WHERE b.student_id = $1
		  AND s.subject = $2
		  AND f.external_id = $3
		  AND b.status = 'absent'
		ORDER BY b.absent_at DESC NULLS LAST, b.updated_at DESC
		LIMIT 1
	`

	booking, err := scanBookingWithSlot(r.db.QueryRow(ctx, query, studentID, subject, teacherExternalID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest absent booking: %w", err)
	}

	return booking, nil
}

// ListByStudent получает все бронирования студента (новые сверху)
func (r *BookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	query := bookingWithSlotSelect + `
		WHERE b.student_id = $1
		ORDER BY s.start_time DESC
	`

	return r.list(ctx, "get bookings by student", query, studentID)
}

// ListByFaculty получает все бронирования по слотам преподавателя
func (r *BookingRepository) ListByFaculty(ctx context.Context, facultyID uuid.UUID) ([]*model.Booking, error) {
	query := bookingWithSlotSelect + `
		WHERE s.faculty_id = $1
		ORDER BY s.start_time DESC
	`

	return r.list(ctx, "get bookings by faculty", query, facultyID)
}

func (r *BookingRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		booking, err := scanBookingWithSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}
