package memory

import (
	"context"
	"sort"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/google/uuid"
)

type RebookingPermissionRepository struct {
	store *Store
	tx    *tx
}

// Upsert перезаписывает преподавателя и updated_at для (student, subject)
func (r *RebookingPermissionRepository) Upsert(ctx context.Context, p *model.RebookingPermission) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, existing := range r.store.permissions {
		if existing.StudentID == p.StudentID && existing.Subject == p.Subject {
			p.ID = id
			p.CreatedAt = existing.CreatedAt
			r.store.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
			put(r.tx, r.store.permissions, id, *p)
			return nil
		}
	}

	r.store.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	put(r.tx, r.store.permissions, p.ID, *p)
	return nil
}

func (r *RebookingPermissionRepository) Get(ctx context.Context, studentID uuid.UUID, subject, teacherExternalID string) (*model.RebookingPermission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, p := range r.store.permissions {
		if p.StudentID == studentID && p.Subject == subject && p.TeacherExternalID == teacherExternalID {
			return &p, nil
		}
	}
	return nil, nil
}

type AssignmentRepository struct {
	store *Store
	tx    *tx
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *model.StudentTeacherAssignment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, existing := range r.store.assignments {
		if existing.StudentID == a.StudentID && existing.Subject == a.Subject {
			a.ID = id
			a.CreatedAt = existing.CreatedAt
			r.store.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
			put(r.tx, r.store.assignments, id, *a)
			return nil
		}
	}

	r.store.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	put(r.tx, r.store.assignments, a.ID, *a)
	return nil
}

func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentTeacherAssignment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	assignments := []*model.StudentTeacherAssignment{}
	for _, a := range r.store.assignments {
		if a.StudentID == studentID {
			assignments = append(assignments, &a)
		}
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Subject < assignments[j].Subject
	})
	return assignments, nil
}

func (r *AssignmentRepository) DeleteExceptSubjects(ctx context.Context, studentID uuid.UUID, keep []string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := make(map[string]struct{}, len(keep))
	for _, s := range keep {
		kept[s] = struct{}{}
	}

	var deleted int64
	for id, a := range r.store.assignments {
		if a.StudentID != studentID {
			continue
		}
		if _, ok := kept[a.Subject]; ok {
			continue
		}
		remove(r.tx, r.store.assignments, id)
		deleted++
	}
	return deleted, nil
}
