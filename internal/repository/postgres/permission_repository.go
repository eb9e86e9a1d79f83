package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/google/uuid"
)

type RebookingPermissionRepository struct {
	db querier
}

// Upsert создаёт разрешение на повторную запись или обновляет существующее.
// Уникальность по (student_id, subject): новый преподаватель перезаписывает старого.
func (r *RebookingPermissionRepository) Upsert(ctx context.Context, permission *model.RebookingPermission) error {
	stamp(&permission.ID, &permission.CreatedAt, &permission.UpdatedAt)

	query := `
		INSERT INTO rebooking_permissions (id, student_id, subject, teacher_external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, subject) DO UPDATE
		SET teacher_external_id = EXCLUDED.teacher_external_id,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		permission.ID,
		permission.StudentID,
		permission.Subject,
		permission.TeacherExternalID,
		permission.CreatedAt,
		permission.UpdatedAt,
	).Scan(&permission.ID, &permission.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert rebooking permission: %w", err)
	}

	return nil
}

// Get получает разрешение для студента, предмета и преподавателя
func (r *RebookingPermissionRepository) Get(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.RebookingPermission, error) {
	query := `
		SELECT id, student_id, subject, teacher_external_id, created_at, updated_at
		FROM rebooking_permissions
		WHERE student_id = $1 AND subject = $2 AND teacher_external_id = $3
	`

	var p model.RebookingPermission
	err := r.db.QueryRow(ctx, query, studentID, subject, teacherExternalID).Scan(
		&p.ID,
		&p.StudentID,
		&p.Subject,
		&p.TeacherExternalID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rebooking permission: %w", err)
	}

	return &p, nil
}
