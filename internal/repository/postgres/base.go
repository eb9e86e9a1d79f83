package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier - общий интерфейс pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isNotFound проверяет является ли ошибка "строка не найдена"
func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapError переводит нарушение уникальности в repository.ErrDuplicate
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}

// execAffected выполняет команду и возвращает количество затронутых строк
func execAffected(ctx context.Context, db querier, query string, args ...any) (int64, error) {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// stamp заполняет id и временные метки, если вызывающий их не задал
func stamp(id *uuid.UUID, createdAt, updatedAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	now := time.Now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}
