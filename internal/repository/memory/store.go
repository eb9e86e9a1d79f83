// Package memory реализует порты repository в памяти процесса.
// Используется в тестах и при STORAGE=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
)

// Store хранит данные в картах под общим RWMutex. Записи видны сразу,
// откат транзакции применяет журнал отмены в обратном порядке.
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]model.User
	slots       map[uuid.UUID]model.Slot
	bookings    map[uuid.UUID]model.Booking
	permissions map[uuid.UUID]model.RebookingPermission
	assignments map[uuid.UUID]model.StudentTeacherAssignment

	locks *keyedMutex
	now   func() time.Time
}

// NewStore создаёт пустое хранилище
func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]model.User),
		slots:       make(map[uuid.UUID]model.Slot),
		bookings:    make(map[uuid.UUID]model.Booking),
		permissions: make(map[uuid.UUID]model.RebookingPermission),
		assignments: make(map[uuid.UUID]model.StudentTeacherAssignment),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

func (s *Store) Users() repository.UserRepository { return &UserRepository{store: s} }
func (s *Store) Slots() repository.SlotRepository { return &SlotRepository{store: s} }
func (s *Store) Bookings() repository.BookingRepository {
	return &BookingRepository{store: s}
}
func (s *Store) Permissions() repository.RebookingPermissionRepository {
	return &RebookingPermissionRepository{store: s}
}
func (s *Store) Assignments() repository.AssignmentRepository {
	return &AssignmentRepository{store: s}
}

// InTx выполняет fn в транзакции. Ошибка fn или паника откатывает изменения,
// блокировки снимаются в любом случае.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	t := &tx{store: s, held: make(map[string]struct{})}
	defer t.release()

	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fn(t); err != nil {
		t.rollback()
		return err
	}

	return nil
}

// Close ничего не делает: ресурсов для освобождения нет
func (s *Store) Close() {}

// tx - транзакция поверх Store с журналом отмены и удерживаемыми блокировками
type tx struct {
	store *Store
	undo  []func()
	held  map[string]struct{}
	order []string
}

func (t *tx) Users() repository.UserRepository { return &UserRepository{store: t.store, tx: t} }
func (t *tx) Slots() repository.SlotRepository { return &SlotRepository{store: t.store, tx: t} }
func (t *tx) Bookings() repository.BookingRepository {
	return &BookingRepository{store: t.store, tx: t}
}
func (t *tx) Permissions() repository.RebookingPermissionRepository {
	return &RebookingPermissionRepository{store: t.store, tx: t}
}
func (t *tx) Assignments() repository.AssignmentRepository {
	return &AssignmentRepository{store: t.store, tx: t}
}

// Lock захватывает блокировки в переданном порядке. Повторный захват ключа
// внутри той же транзакции ничего не делает.
func (t *tx) Lock(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, ok := t.held[key]; ok {
			continue
		}
		if err := t.store.locks.Lock(ctx, key); err != nil {
			return err
		}
		t.held[key] = struct{}{}
		t.order = append(t.order, key)
	}
	return nil
}

// record добавляет шаг отмены. Вызывается под store.mu.
func (t *tx) record(undo func()) {
	if t != nil {
		t.undo = append(t.undo, undo)
	}
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.store.locks.Unlock(t.order[i])
	}
	t.order = nil
	t.held = nil
}

// stamp заполняет id и временные метки, если вызывающий их не задал
func (s *Store) stamp(id *uuid.UUID, createdAt, updatedAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = s.now()
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

// put сохраняет значение в карту и записывает шаг отмены. Вызывается под store.mu.
func put[T any](t *tx, m map[uuid.UUID]T, id uuid.UUID, value T) {
	prev, existed := m[id]
	m[id] = value
	t.record(func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

// remove удаляет значение из карты и записывает шаг отмены. Вызывается под store.mu.
func remove[T any](t *tx, m map[uuid.UUID]T, id uuid.UUID) bool {
	prev, existed := m[id]
	if !existed {
		return false
	}
	delete(m, id)
	t.record(func() { m[id] = prev })
	return true
}
