// Package repository описывает порты хранилища, которыми пользуются сервисы.
// Реализации: postgres (pgx) и memory (для тестов и STORAGE=memory).
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/google/uuid"
)

var (
	// ErrNotFound возвращается мутациями, когда строки нет
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate возвращается при нарушении уникальности
	ErrDuplicate = errors.New("duplicate record")
	// ErrLockOutsideTx возвращается при попытке взять блокировку вне транзакции
	ErrLockOutsideTx = errors.New("lock requested outside of transaction")
)

// SlotLockKey и StudentLockKey задают ключи эксклюзивных блокировок агрегатов.
// Порядок захвата фиксирован: сначала слот, потом студент.
// FacultyLockKey сериализует изменения расписания одного преподавателя и
// берётся раньше блокировок слотов.
func SlotLockKey(id uuid.UUID) string    { return "slot:" + id.String() }
func StudentLockKey(id uuid.UUID) string { return "student:" + id.String() }
func FacultyLockKey(id uuid.UUID) string { return "faculty:" + id.String() }

// UserEmailLockKey сериализует заведение пользователя по email; берётся
// раньше FacultyLockKey.
func UserEmailLockKey(email string) string {
	return "user-email:" + strings.ToLower(strings.TrimSpace(email))
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	// SetAvailableForBooking и SetActive меняют только свой флаг и updated_at
	SetAvailableForBooking(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error
	SetActive(ctx context.Context, id uuid.UUID, active bool, updatedAt time.Time) error
	// GetByID, GetByEmail и GetByExternalID возвращают nil, nil если пользователь не найден
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetFacultyByExternalIDs(ctx context.Context, externalIDs []string) ([]*model.User, error)
	GetFacultyByEmails(ctx context.Context, emails []string) ([]*model.User, error)
	ListFaculty(ctx context.Context) ([]*model.User, error)
}

// AvailableSlotFilter выбирает слоты, видимые студенту
type AvailableSlotFilter struct {
	FacultyIDs []uuid.UUID
	Subject    string // пусто - любой предмет
	After      time.Time
	From, To   *time.Time // необязательное окно по start_time
}

type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	// GetByID возвращает слот вместе с бронированием (если есть) или nil, nil
	GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetAvailable(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error
	// HasOverlap проверяет пересечение полуинтервалов [start, end)
	HasOverlap(ctx context.Context, facultyID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error)
	DistinctSubjects(ctx context.Context, facultyID uuid.UUID) ([]string, error)
	// ListByFaculty возвращает слоты с start_time в [from, to) вместе с бронированиями
	ListByFaculty(ctx context.Context, facultyID uuid.UUID, from, to time.Time) ([]*model.Slot, error)
	// ListAvailable возвращает свободные слоты без подтверждённого бронирования
	ListAvailable(ctx context.Context, filter AvailableSlotFilter) ([]*model.Slot, error)
}

type ConflictScope string

const (
	// ConflictScopeSameDay - конфликт в пределах календарного дня слота
	ConflictScopeSameDay ConflictScope = "same_day"
	// ConflictScopeFuture - любой конфликт со слотом в будущем
	ConflictScopeFuture ConflictScope = "future"
)

// ConflictFilter описывает поиск активных (confirmed/absent) бронирований
// студента по предмету
type ConflictFilter struct {
	StudentID uuid.UUID
	Subject   string
	Scope     ConflictScope
	DayStart  time.Time // для ConflictScopeSameDay
	DayEnd    time.Time
	Now       time.Time // для ConflictScopeFuture
	ExcludeID uuid.UUID
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	Update(ctx context.Context, booking *model.Booking) error
	// GetByID возвращает бронирование со слотом или nil, nil
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// GetBySlotID возвращает бронирование слота в любом статусе или nil, nil
	GetBySlotID(ctx context.Context, slotID uuid.UUID) (*model.Booking, error)
	HasConflict(ctx context.Context, filter ConflictFilter) (bool, error)
	// LatestAbsent возвращает последнее absent бронирование студента по предмету
	// у преподавателя с данным внешним id или nil, nil
	LatestAbsent(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.Booking, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error)
	ListByFaculty(ctx context.Context, facultyID uuid.UUID) ([]*model.Booking, error)
}

type RebookingPermissionRepository interface {
	// Upsert создаёт разрешение или обновляет преподавателя и updated_at
	Upsert(ctx context.Context, permission *model.RebookingPermission) error
	// Get возвращает разрешение для (студент, предмет, преподаватель) или nil, nil
	Get(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.RebookingPermission, error)
}

type AssignmentRepository interface {
	Upsert(ctx context.Context, assignment *model.StudentTeacherAssignment) error
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentTeacherAssignment, error)
	// DeleteExceptSubjects удаляет назначения студента по предметам вне keep
	DeleteExceptSubjects(ctx context.Context, studentID uuid.UUID, keep []string) (int64, error)
}

// Repositories - набор репозиториев, привязанных к соединению или транзакции
type Repositories interface {
	Users() UserRepository
	Slots() SlotRepository
	Bookings() BookingRepository
	Permissions() RebookingPermissionRepository
	Assignments() AssignmentRepository
}

// Tx - транзакция. Lock захватывает эксклюзивные блокировки по ключам в
// переданном порядке; они держатся до конца транзакции.
type Tx interface {
	Repositories
	Lock(ctx context.Context, keys ...string) error
}

// Store - корневое хранилище
type Store interface {
	Repositories
	// InTx выполняет fn в транзакции. Любая ошибка fn откатывает все изменения.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
