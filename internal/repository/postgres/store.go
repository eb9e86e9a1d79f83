// Package postgres реализует порты repository поверх pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repos struct {
	users       *UserRepository
	slots       *SlotRepository
	bookings    *BookingRepository
	permissions *RebookingPermissionRepository
	assignments *AssignmentRepository
}

func newRepos(db querier) repos {
	return repos{
		users:       &UserRepository{db: db},
		slots:       &SlotRepository{db: db},
		bookings:    &BookingRepository{db: db},
		permissions: &RebookingPermissionRepository{db: db},
		assignments: &AssignmentRepository{db: db},
	}
}

func (r repos) Users() repository.UserRepository                      { return r.users }
func (r repos) Slots() repository.SlotRepository                      { return r.slots }
func (r repos) Bookings() repository.BookingRepository                { return r.bookings }
func (r repos) Permissions() repository.RebookingPermissionRepository { return r.permissions }
func (r repos) Assignments() repository.AssignmentRepository          { return r.assignments }

// Store - хранилище поверх пула соединений
type Store struct {
	repos
	pool *pgxpool.Pool
}

// NewStore создаёт хранилище
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{repos: newRepos(pool), pool: pool}
}

// Connect открывает пул и проверяет соединение
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Pool возвращает пул соединений
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InTx выполняет fn в транзакции
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	// Начинаем транзакцию
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{repos: newRepos(tx), tx: tx}); err != nil {
		return err
	}

	// Коммитим транзакцию
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close закрывает пул
func (s *Store) Close() {
	s.pool.Close()
}

type txStore struct {
	repos
	tx pgx.Tx
}

// Lock берёт advisory-блокировки уровня транзакции в переданном порядке.
// Они снимаются при commit/rollback.
func (t *txStore) Lock(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
	}
	return nil
}
