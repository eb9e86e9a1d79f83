package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PruneConfig управляет удалением устаревших назначений при синхронизации.
// Полным снимком считается payload, в котором найдено не меньше MinSubjects предметов.
type PruneConfig struct {
	Enabled     bool
	MinSubjects int
}

// DefaultPruneConfig - снимок из двух и более предметов заменяет назначения
func DefaultPruneConfig() PruneConfig {
	return PruneConfig{Enabled: true, MinSubjects: 2}
}

// SyncResult - итог синхронизации назначений из внешнего payload
type SyncResult struct {
	Upserted int      `json:"upserted"`
	Pruned   int64    `json:"pruned"`
	Subjects []string `json:"subjects"`
}

type AssignmentService struct {
	store   repository.Store
	aliases *partner.FieldAliases
	prune   PruneConfig
	clock   clock.Clock
	logger  *zap.Logger
}

func NewAssignmentService(
	store repository.Store,
	aliases *partner.FieldAliases,
	prune PruneConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		store:   store,
		aliases: aliases,
		prune:   prune,
		clock:   clk,
		logger:  logger,
	}
}

// Upsert создаёт или перезаписывает преподавателя студента по предмету
func (s *AssignmentService) Upsert(ctx context.Context, studentID uuid.UUID, rawSubject, teacherExternalID string) (*model.StudentTeacherAssignment, error) {
	return s.upsert(ctx, s.store, studentID, rawSubject, teacherExternalID)
}

func (s *AssignmentService) upsert(ctx context.Context, repos repository.Repositories, studentID uuid.UUID, rawSubject, teacherExternalID string) (*model.StudentTeacherAssignment, error) {
	subj := subject.Normalize(rawSubject)
	if subj == "" {
		return nil, ErrSubjectRequired
	}
	teacherExternalID = strings.TrimSpace(teacherExternalID)
	if teacherExternalID == "" {
		return nil, ErrTeacherRequired
	}

	now := s.clock.Now()
	a := &model.StudentTeacherAssignment{
		StudentID:         studentID,
		Subject:           subj,
		TeacherExternalID: teacherExternalID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repos.Assignments().Upsert(ctx, a); err != nil {
		return nil, fmt.Errorf("upsert assignment: %w", err)
	}

	return a, nil
}

// GetAssignedTeacherIDs возвращает различные идентификаторы преподавателей студента
func (s *AssignmentService) GetAssignedTeacherIDs(ctx context.Context, studentID uuid.UUID) ([]string, error) {
	assignments, err := s.ListAssignments(ctx, studentID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	ids := []string{}
	for _, a := range assignments {
		if _, ok := seen[a.TeacherExternalID]; ok {
			continue
		}
		seen[a.TeacherExternalID] = struct{}{}
		ids = append(ids, a.TeacherExternalID)
	}

	sort.Strings(ids)
	return ids, nil
}

// ListAssignments возвращает назначения студента по предметам
func (s *AssignmentService) ListAssignments(ctx context.Context, studentID uuid.UUID) ([]*model.StudentTeacherAssignment, error) {
	assignments, err := s.store.Assignments().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get assignments: %w", err)
	}
	return assignments, nil
}

// SyncFromExternalPayload сохраняет пары предмет-преподаватель из payload
// партнёра. Никогда не возвращает ошибку: сбои только логируются, потому что
// синхронизация идёт внутри логина.
func (s *AssignmentService) SyncFromExternalPayload(ctx context.Context, student *model.User, payload map[string]any) (result SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Assignment sync panicked", zap.Any("panic", r))
			result = SyncResult{}
		}
	}()

	pairs := partner.ParseAssignments(payload, s.aliases)
	if len(pairs) == 0 {
		return SyncResult{}
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.StudentLockKey(student.ID)); err != nil {
			return err
		}

		result = SyncResult{}
		found := make(map[string]struct{})
		for _, p := range pairs {
			teacherID, err := s.resolveTeacherID(ctx, tx, p)
			if err != nil {
				return err
			}
			if teacherID == "" {
				continue
			}

			if _, err := s.upsert(ctx, tx, student.ID, p.Subject, teacherID); err != nil {
				return err
			}
			result.Upserted++
			found[p.Subject] = struct{}{}
		}

		for subj := range found {
			result.Subjects = append(result.Subjects, subj)
		}
		sort.Strings(result.Subjects)

		if s.prune.Enabled && len(result.Subjects) >= s.prune.MinSubjects {
			pruned, err := tx.Assignments().DeleteExceptSubjects(ctx, student.ID, result.Subjects)
			if err != nil {
				return fmt.Errorf("prune assignments: %w", err)
			}
			result.Pruned = pruned
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to sync student assignments",
			zap.String("student_id", student.ID.String()),
			zap.Error(err),
		)
		return SyncResult{}
	}

	s.logger.Info("Student assignments synced",
		zap.String("student_id", student.ID.String()),
		zap.Strings("subjects", result.Subjects),
		zap.Int("upserted", result.Upserted),
		zap.Int64("pruned", result.Pruned),
	)

	return result
}

// resolveTeacherID возвращает внешний id преподавателя. Если известен только
// email, ищется локальный преподаватель; иначе идентификатором служит сам email.
func (s *AssignmentService) resolveTeacherID(ctx context.Context, repos repository.Repositories, p partner.AssignmentPair) (string, error) {
	if p.TeacherID != "" {
		return p.TeacherID, nil
	}
	if p.TeacherEmail == "" {
		return "", nil
	}

	faculty, err := repos.Users().GetFacultyByEmails(ctx, []string{p.TeacherEmail})
	if err != nil {
		return "", fmt.Errorf("resolve teacher email: %w", err)
	}
	for _, f := range faculty {
		if f.ExternalID != "" {
			return f.ExternalID, nil
		}
	}
	return p.TeacherEmail, nil
}
