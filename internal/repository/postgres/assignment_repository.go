package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/google/uuid"
)

type AssignmentRepository struct {
	db querier
}

// Upsert сохраняет назначение преподавателя студенту по предмету
func (r *AssignmentRepository) Upsert(ctx context.Context, a *model.StudentTeacherAssignment) error {
	stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)

	query := `
		INSERT INTO student_teacher_assignments (id, student_id, subject, teacher_external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, subject) DO UPDATE
		SET teacher_external_id = EXCLUDED.teacher_external_id,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		a.ID,
		a.StudentID,
		a.Subject,
		a.TeacherExternalID,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}

	return nil
}

// ListByStudent получает назначения студента, упорядоченные по предмету
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentTeacherAssignment, error) {
	query := `
		SELECT id, student_id, subject, teacher_external_id, created_at, updated_at
		FROM student_teacher_assignments
		WHERE student_id = $1
		ORDER BY subject
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("get assignments by student: %w", err)
	}
	defer rows.Close()

	assignments := []*model.StudentTeacherAssignment{}
	for rows.Next() {
		var a model.StudentTeacherAssignment
		err := rows.Scan(
			&a.ID,
			&a.StudentID,
			&a.Subject,
			&a.TeacherExternalID,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}

	return assignments, rows.Err()
}

// DeleteExceptSubjects удаляет назначения студента по предметам, которых нет в keep
func (r *AssignmentRepository) DeleteExceptSubjects(ctx context.Context, studentID uuid.UUID, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}

	affected, err := execAffected(
		ctx, r.db,
		`DELETE FROM student_teacher_assignments WHERE student_id = $1 AND NOT (subject = ANY($2))`,
		studentID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune assignments: %w", err)
	}

	return affected, nil
}
