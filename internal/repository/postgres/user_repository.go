package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db querier
}

const userColumns = `id, external_id, email, name, role, university_roll_number, faculty_subject,
	is_available_for_booking, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.UniversityRollNumber,
		&user.FacultySubject,
		&user.IsAvailableForBooking,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create создаёт нового пользователя
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	stamp(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(
		ctx, query,
		user.ID,
		user.ExternalID,
		user.Email,
		user.Name,
		user.Role,
		user.UniversityRollNumber,
		user.FacultySubject,
		user.IsAvailableForBooking,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}

	return nil
}

// SetAvailableForBooking переключает статус "свободен/занят", не трогая остальные поля
func (r *UserRepository) SetAvailableForBooking(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error {
	query := `
		UPDATE users
		SET is_available_for_booking = $1, updated_at = $2
		WHERE id = $3
	`

	affected, err := execAffected(ctx, r.db, query, available, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update faculty availability: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("update faculty availability: %w", repository.ErrNotFound)
	}

	return nil
}

// SetActive включает или выключает пользователя
func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, updatedAt time.Time) error {
	query := `
		UPDATE users
		SET is_active = $1, updated_at = $2
		WHERE id = $3
	`

	affected, err := execAffected(ctx, r.db, query, active, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update user activity: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("update user activity: %w", repository.ErrNotFound)
	}

	return nil
}

// Update обновляет данные пользователя
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET external_id = $1, email = $2, name = $3, role = $4, university_roll_number = $5,
		    faculty_subject = $6, is_available_for_booking = $7, is_active = $8, updated_at = $9
		WHERE id = $10
	`

	affected, err := execAffected(
		ctx, r.db, query,
		user.ExternalID,
		user.Email,
		user.Name,
		user.Role,
		user.UniversityRollNumber,
		user.FacultySubject,
		user.IsAvailableForBooking,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}

	if affected == 0 {
		return fmt.Errorf("update user: %w", repository.ErrNotFound)
	}

	return nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

// GetByEmail получает пользователя по email без учёта регистра
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if isNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

// GetByExternalID получает пользователя по внешнему PBL идентификатору
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1 AND external_id <> '' LIMIT 1`

	user, err := scanUser(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by external id: %w", err)
	}

	return user, nil
}

// GetFacultyByExternalIDs получает преподавателей по списку внешних ID
func (r *UserRepository) GetFacultyByExternalIDs(ctx context.Context, externalIDs []string) ([]*model.User, error) {
	if len(externalIDs) == 0 {
		return []*model.User{}, nil
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'faculty' AND external_id = ANY($1)
		ORDER BY email
	`

	return r.list(ctx, "get faculty by external ids", query, externalIDs)
}

// GetFacultyByEmails получает преподавателей по списку email (без учёта регистра)
func (r *UserRepository) GetFacultyByEmails(ctx context.Context, emails []string) ([]*model.User, error) {
	if len(emails) == 0 {
		return []*model.User{}, nil
	}

	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(e))
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'faculty' AND LOWER(email) = ANY($1)
		ORDER BY email
	`

	return r.list(ctx, "get faculty by emails", query, lowered)
}

// ListFaculty получает всех преподавателей
func (r *UserRepository) ListFaculty(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'faculty' ORDER BY email`
	return r.list(ctx, "list faculty", query)
}

func (r *UserRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}
