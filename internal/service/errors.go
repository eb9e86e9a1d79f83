package service

import (
	"errors"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
)

// Kind классифицирует ошибки сервисов для адаптеров
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error - ошибка бизнес-правила с сообщением для пользователя
type Error struct {
	Kind    Kind
	Message string
	// Details - дополнительные поля для ответа адаптера
	Details map[string]any
	// Err - сентинел, от которого построена ошибка с динамическим текстом
	Err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// withMessage возвращает ошибку того же вида с другим текстом,
// совместимую с errors.Is(err, sentinel)
func withMessage(sentinel *Error, message string) *Error {
	return &Error{Kind: sentinel.Kind, Message: message, Err: sentinel}
}

// KindOf возвращает вид ошибки или KindInternal для инфраструктурных ошибок
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Ошибки валидации
var (
	ErrInvalidTimeRange   = newError(KindValidation, "End time must be after start time")
	ErrStartInPast        = newError(KindValidation, "Start time must be in the future")
	ErrInvalidSubject     = newError(KindValidation, "Invalid subject")
	ErrSubjectRequired    = newError(KindValidation, "Subject is required")
	ErrInvalidDuration    = newError(KindValidation, "Slot duration must be 5, 10 or 15 minutes")
	ErrInvalidBreak       = newError(KindValidation, "Break duration must be 0, 5, 10 or 15 minutes")
	ErrWindowTooShort     = newError(KindValidation, "Time range is too short for a single slot")
	ErrNoSlotsGenerated   = newError(KindValidation, "No valid slots could be generated. Check for overlaps or invalid time range.")
	ErrSlotInPast         = newError(KindValidation, "Cannot book a slot in the past")
	ErrAfterHours         = newError(KindValidation, "You cannot book slots for today after 7pm. Please book for tomorrow.")
	ErrNotCancellable     = newError(KindValidation, "Only confirmed bookings can be cancelled")
	ErrCancellationWindow = newError(KindValidation, model.StudentCancellationWindowMessage)
	ErrNotMarkable        = newError(KindValidation, "Only confirmed bookings can be marked")
	ErrRebookingNotNeeded = newError(KindValidation, "Student has no absence for this subject")
	ErrTeacherRequired    = newError(KindValidation, "Teacher id is required")
)

// Конфликты состояния
var (
	ErrSlotUnavailable       = newError(KindConflict, "This slot is not available")
	ErrSlotNoLongerAvailable = newError(KindConflict, "This slot is no longer available")
	ErrSlotAlreadyBooked     = newError(KindConflict, "This slot is already booked")
	ErrSlotOverlap           = newError(KindConflict, "This time slot overlaps with an existing slot")
	ErrSlotHasHistory        = newError(KindConflict, "Cannot delete a slot that has booking history")
	ErrSameDayConflict       = newError(KindConflict, "You already have a booking for this subject on this day.")
	ErrSubjectConflict       = newError(KindConflict, "You already have a booking for this subject.")
	ErrAbsenceLocked         = newError(KindConflict, "Booking is blocked because you were marked absent. Your faculty must allow rebooking before you can book another slot.")
	ErrTodaysBookings        = newError(KindConflict, "Cannot delete today's slots because you have confirmed bookings. Cancel those bookings first.")
	ErrSubjectFixed          = newError(KindConflict, "Subject is fixed and cannot be changed.")
	ErrSubjectAlreadySet     = newError(KindConflict, "Subject is already configured and cannot be changed.")
	ErrSubjectLockedBySlots  = newError(KindConflict, "Subject cannot be changed once slots exist.")
	ErrSubjectNotConfigured  = newError(KindConflict, "Faculty subject not configured. Please set your subject first.")
	ErrAmbiguousSubject      = newError(KindConflict, "Invalid faculty subject mapping: faculty must be assigned to exactly one subject.")
)

// Ошибки авторизации
var (
	ErrMentorsUnknown = newError(KindAuthorization, "Unable to determine your mentors from the external student profile. Please contact support.")
	ErrNotAuthorized  = newError(KindAuthorization, "You are not authorized to book this slot.")
	ErrNotOwner       = newError(KindAuthorization, "You do not have permission to modify this resource")
	ErrFacultyOnly    = newError(KindAuthorization, "Only faculty can perform this action")
	ErrStudentOnly    = newError(KindAuthorization, "Only students can perform this action")
	ErrAuthentication = newError(KindAuthorization, "SSO authentication failed")
	ErrInactiveUser   = newError(KindAuthorization, "User account is disabled")
)

// Ненайденные сущности
var (
	ErrUserNotFound    = newError(KindNotFound, "User not found")
	ErrSlotNotFound    = newError(KindNotFound, "Slot not found")
	ErrBookingNotFound = newError(KindNotFound, "Booking not found")
)
