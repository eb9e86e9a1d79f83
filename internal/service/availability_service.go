package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MentorMode определяет, как проверяется доступ студента к слотам
type MentorMode string

const (
	// MentorModeNone - наставники не определены, слоты не видны
	MentorModeNone MentorMode = "none"
	// MentorModeSubject - доступ по паре (предмет, email преподавателя)
	MentorModeSubject MentorMode = "subject"
	// MentorModeLegacy - плоский список email с учётом статуса "занят"
	MentorModeLegacy MentorMode = "legacy"
)

const (
	MentorSourceExternalBySubject = "external_by_subject"
	MentorSourceAssignments       = "assignments"
	MentorSourceExternalFlat      = "external_flat"
)

// Mentors - набор наставников студента
type Mentors struct {
	Mode      MentorMode          `json:"mode"`
	Source    string              `json:"source,omitempty"`
	BySubject map[string][]string `json:"by_subject,omitempty"`
	Flat      []string            `json:"flat,omitempty"`
}

// Empty сообщает что наставников нет
func (m *Mentors) Empty() bool {
	return m.Mode == MentorModeNone
}

// Emails возвращает все email наставников без повторов (без учёта регистра)
func (m *Mentors) Emails() []string {
	var all []string
	switch m.Mode {
	case MentorModeSubject:
		subjects := make([]string, 0, len(m.BySubject))
		for subj := range m.BySubject {
			subjects = append(subjects, subj)
		}
		sort.Strings(subjects)
		for _, subj := range subjects {
			all = append(all, m.BySubject[subj]...)
		}
	case MentorModeLegacy:
		all = m.Flat
	}
	return dedupEmails(all)
}

// Allows проверяет, может ли студент записываться к преподавателю с email по предмету
func (m *Mentors) Allows(subj, email string) bool {
	switch m.Mode {
	case MentorModeSubject:
		return containsEmail(m.BySubject[subject.Normalize(subj)], email)
	case MentorModeLegacy:
		return containsEmail(m.Flat, email)
	}
	return false
}

func containsEmail(emails []string, email string) bool {
	for _, e := range emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func dedupEmails(emails []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

type AvailabilityService struct {
	store       repository.Store
	provider    partner.ExternalProfileProvider
	assignments *AssignmentService
	clock       clock.Clock
	loc         *time.Location
	logger      *zap.Logger
}

func NewAvailabilityService(
	store repository.Store,
	provider partner.ExternalProfileProvider,
	assignments *AssignmentService,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		store:       store,
		provider:    provider,
		assignments: assignments,
		clock:       clk,
		loc:         loc,
		logger:      logger,
	}
}

func loadStudent(ctx context.Context, repos repository.Repositories, studentID uuid.UUID) (*model.User, error) {
	user, err := repos.Users().GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsStudent() {
		return nil, ErrStudentOnly
	}
	return user, nil
}

// profile запрашивает профиль у партнёра. Недоступность партнёра означает "нет данных".
func (s *AvailabilityService) profile(ctx context.Context, student *model.User) *partner.StudentProfile {
	profile, err := s.provider.StudentProfile(ctx, student.Email)
	if err != nil {
		s.logger.Warn("Student profile unavailable",
			zap.String("student_id", student.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	return profile
}

// ResolveMentors определяет наставников студента. Порядок источников:
// внешнее соответствие по предметам, локальные назначения, внешний плоский список.
func (s *AvailabilityService) ResolveMentors(ctx context.Context, student *model.User) (*Mentors, error) {
	profile := s.profile(ctx, student)

	// 1. Внешнее соответствие предмет -> email
	if profile != nil {
		bySubject := make(map[string][]string)
		for subj, emails := range profile.MentorEmailsBySubject {
			subj = subject.Normalize(subj)
			if emails = dedupEmails(emails); subj != "" && len(emails) > 0 {
				bySubject[subj] = dedupEmails(append(bySubject[subj], emails...))
			}
		}
		if len(bySubject) > 0 {
			return &Mentors{Mode: MentorModeSubject, Source: MentorSourceExternalBySubject, BySubject: bySubject}, nil
		}
	}

	// 2. Локальные назначения
	bySubject, err := s.assignmentMentors(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if len(bySubject) > 0 {
		return &Mentors{Mode: MentorModeSubject, Source: MentorSourceAssignments, BySubject: bySubject}, nil
	}

	// 3. Плоский внешний список
	if profile != nil {
		if flat := dedupEmails(profile.MentorEmails); len(flat) > 0 {
			return &Mentors{Mode: MentorModeLegacy, Source: MentorSourceExternalFlat, Flat: flat}, nil
		}
	}

	return &Mentors{Mode: MentorModeNone}, nil
}

// assignmentMentors переводит назначения студента в email преподавателей.
// Идентификатор, похожий на email, используется как есть.
func (s *AvailabilityService) assignmentMentors(ctx context.Context, studentID uuid.UUID) (map[string][]string, error) {
	assignments, err := s.assignments.ListAssignments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.TeacherExternalID)
	}

	faculty, err := s.store.Users().GetFacultyByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get assigned faculty: %w", err)
	}
	emailsByID := make(map[string][]string)
	for _, f := range faculty {
		if f.Email != "" {
			emailsByID[f.ExternalID] = append(emailsByID[f.ExternalID], f.Email)
		}
	}

	bySubject := make(map[string][]string)
	for _, a := range assignments {
		subj := subject.Normalize(a.Subject)
		emails := emailsByID[a.TeacherExternalID]
		if len(emails) == 0 && strings.Contains(a.TeacherExternalID, "@") {
			emails = []string{a.TeacherExternalID}
		}
		if subj == "" || len(emails) == 0 {
			continue
		}
		bySubject[subj] = dedupEmails(append(bySubject[subj], emails...))
	}
	return bySubject, nil
}

// mentorFaculty возвращает локальных преподавателей-наставников по id
func (s *AvailabilityService) mentorFaculty(ctx context.Context, mentors *Mentors) (map[uuid.UUID]*model.User, error) {
	faculty, err := s.store.Users().GetFacultyByEmails(ctx, mentors.Emails())
	if err != nil {
		return nil, fmt.Errorf("get mentor faculty: %w", err)
	}

	byID := make(map[uuid.UUID]*model.User, len(faculty))
	for _, f := range faculty {
		byID[f.ID] = f
	}
	return byID, nil
}

// visibleSlots применяет фильтр наставников к свободным будущим слотам
func (s *AvailabilityService) visibleSlots(ctx context.Context, mentors *Mentors, from, to *time.Time) ([]*model.Slot, error) {
	if mentors.Empty() {
		return []*model.Slot{}, nil
	}

	faculty, err := s.mentorFaculty(ctx, mentors)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(faculty))
	for id, f := range faculty {
		// В режиме плоского списка занятые преподаватели скрыты
		if mentors.Mode == MentorModeLegacy && !f.IsAvailableForBooking {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []*model.Slot{}, nil
	}

	slots, err := s.store.Slots().ListAvailable(ctx, repository.AvailableSlotFilter{
		FacultyIDs: ids,
		After:      s.clock.Now(),
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, fmt.Errorf("get available slots: %w", err)
	}

	visible := make([]*model.Slot, 0, len(slots))
	for _, slot := range slots {
		f := faculty[slot.FacultyID]
		if f == nil || !mentors.Allows(slot.Subject, f.Email) {
			continue
		}
		slot.Faculty = f
		visible = append(visible, slot)
	}
	return visible, nil
}

// VisibleSlotsForStudent возвращает слоты, на которые студент может записаться.
// date ограничивает выборку одним днём.
func (s *AvailabilityService) VisibleSlotsForStudent(ctx context.Context, studentID uuid.UUID, date *time.Time) ([]*model.Slot, error) {
	student, err := loadStudent(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}

	mentors, err := s.ResolveMentors(ctx, student)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if date != nil {
		start, end := dayBounds(*date, s.loc)
		from, to = &start, &end
	}

	return s.visibleSlots(ctx, mentors, from, to)
}

// IsAuthorized проверяет, что слот принадлежит наставнику студента по этому предмету
func (s *AvailabilityService) IsAuthorized(ctx context.Context, student *model.User, slot *model.Slot) error {
	mentors, err := s.ResolveMentors(ctx, student)
	if err != nil {
		return err
	}
	if mentors.Empty() {
		return ErrMentorsUnknown
	}

	faculty, err := s.store.Users().GetByID(ctx, slot.FacultyID)
	if err != nil {
		return fmt.Errorf("get slot faculty: %w", err)
	}
	if faculty == nil || !mentors.Allows(slot.Subject, faculty.Email) {
		return ErrNotAuthorized
	}
	return nil
}

// TeacherStatus - состояние одного наставника
type TeacherStatus struct {
	TeacherName string `json:"teacher_name"`
	Email       string `json:"email"`
	Subject     string `json:"subject,omitempty"`
	IsAvailable bool   `json:"is_available"`
}

// TeacherStatusReport - состояние всех наставников студента
type TeacherStatusReport struct {
	HasAssignment  bool            `json:"has_assignment"`
	Teachers       []TeacherStatus `json:"teachers"`
	AnyTeacherBusy bool            `json:"any_teacher_busy"`
	Message        string          `json:"message,omitempty"`
}

// TeacherStatus сообщает, свободны ли наставники студента
func (s *AvailabilityService) TeacherStatus(ctx context.Context, studentID uuid.UUID) (*TeacherStatusReport, error) {
	student, err := loadStudent(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}

	mentors, err := s.ResolveMentors(ctx, student)
	if err != nil {
		return nil, err
	}
	if mentors.Empty() {
		return &TeacherStatusReport{Teachers: []TeacherStatus{}, Message: "No mentor assigned"}, nil
	}

	faculty, err := s.mentorFaculty(ctx, mentors)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]*model.User, len(faculty))
	for _, f := range faculty {
		byEmail[strings.ToLower(f.Email)] = f
	}

	status := func(email, subj string) (TeacherStatus, error) {
		f := byEmail[strings.ToLower(email)]
		if f == nil {
			return TeacherStatus{TeacherName: "Unknown", Email: email, Subject: subj}, nil
		}
		if subj == "" {
			subj, err = s.facultySubject(ctx, f)
			if err != nil {
				return TeacherStatus{}, err
			}
		}
		return TeacherStatus{TeacherName: f.Name, Email: f.Email, Subject: subj, IsAvailable: f.IsAvailableForBooking}, nil
	}

	report := &TeacherStatusReport{HasAssignment: true, Teachers: []TeacherStatus{}}
	if mentors.Mode == MentorModeSubject {
		subjects := make([]string, 0, len(mentors.BySubject))
		for subj := range mentors.BySubject {
			subjects = append(subjects, subj)
		}
		sort.Strings(subjects)

		for _, subj := range subjects {
			for _, email := range mentors.BySubject[subj] {
				st, err := status(email, subj)
				if err != nil {
					return nil, err
				}
				report.Teachers = append(report.Teachers, st)
			}
		}
	} else {
		for _, email := range mentors.Flat {
			st, err := status(email, "")
			if err != nil {
				return nil, err
			}
			report.Teachers = append(report.Teachers, st)
		}
	}

	for _, t := range report.Teachers {
		if !t.IsAvailable {
			report.AnyTeacherBusy = true
		}
	}
	if report.AnyTeacherBusy {
		report.Message = "Teacher is currently busy. Please check later."
	}

	return report, nil
}

// facultySubject - закреплённый предмет или единственный предмет слотов
func (s *AvailabilityService) facultySubject(ctx context.Context, f *model.User) (string, error) {
	if configured := subject.Normalize(f.FacultySubject); configured != "" {
		return configured, nil
	}

	subjects, err := existingSubjects(ctx, s.store, f.ID)
	if err != nil {
		return "", fmt.Errorf("get faculty subjects: %w", err)
	}
	if len(subjects) == 1 {
		return subjects[0], nil
	}
	return "", nil
}

// FacultyDebugStatus - состояние преподавателя в отладочном отчёте
type FacultyDebugStatus struct {
	Email                 string `json:"email"`
	Name                  string `json:"name"`
	ExternalID            string `json:"external_id"`
	IsAvailableForBooking bool   `json:"is_available_for_booking"`
}

// DebugReport объясняет, почему студент видит (или не видит) слоты.
// Содержит только агрегаты и собственных наставников студента.
type DebugReport struct {
	StudentEmail             string                            `json:"student_email"`
	Mentors                  *Mentors                          `json:"mentors"`
	AssignmentRows           []*model.StudentTeacherAssignment `json:"assignment_rows"`
	TeacherIDs               []string                          `json:"teacher_ids"`
	MentorEmails             []string                          `json:"mentor_emails"`
	FacultyStatuses          []FacultyDebugStatus              `json:"faculty_statuses"`
	CountsAllBySubject       map[string]int                    `json:"counts_all_slots_by_subject"`
	CountsAvailableBySubject map[string]int                    `json:"counts_available_slots_by_subject"`
	CountsAvailableByFaculty map[string]int                    `json:"counts_available_slots_by_faculty"`
	NextAvailable            []*model.Slot                     `json:"next_available_slots_sample"`
	ServerTime               time.Time                         `json:"server_time_utc"`
}

// Debug собирает отладочный отчёт по видимости слотов студента
func (s *AvailabilityService) Debug(ctx context.Context, studentID uuid.UUID) (*DebugReport, error) {
	student, err := loadStudent(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}

	mentors, err := s.ResolveMentors(ctx, student)
	if err != nil {
		return nil, err
	}

	rows, err := s.assignments.ListAssignments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	teacherIDs, err := s.assignments.GetAssignedTeacherIDs(ctx, studentID)
	if err != nil {
		return nil, err
	}

	report := &DebugReport{
		StudentEmail:             student.Email,
		Mentors:                  mentors,
		AssignmentRows:           rows,
		TeacherIDs:               teacherIDs,
		MentorEmails:             mentors.Emails(),
		FacultyStatuses:          []FacultyDebugStatus{},
		CountsAllBySubject:       map[string]int{},
		CountsAvailableBySubject: map[string]int{},
		CountsAvailableByFaculty: map[string]int{},
		NextAvailable:            []*model.Slot{},
		ServerTime:               s.clock.Now().UTC(),
	}

	faculty, err := s.mentorFaculty(ctx, mentors)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(faculty))
	for id := range faculty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return faculty[ids[i]].Email < faculty[ids[j]].Email })

	from, to := time.Unix(0, 0).UTC(), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	for _, id := range ids {
		f := faculty[id]
		report.FacultyStatuses = append(report.FacultyStatuses, FacultyDebugStatus{
			Email:                 f.Email,
			Name:                  f.Name,
			ExternalID:            f.ExternalID,
			IsAvailableForBooking: f.IsAvailableForBooking,
		})

		all, err := s.store.Slots().ListByFaculty(ctx, id, from, to)
		if err != nil {
			return nil, fmt.Errorf("get mentor slots: %w", err)
		}
		for _, slot := range all {
			report.CountsAllBySubject[slot.Subject]++
		}
	}

	visible, err := s.visibleSlots(ctx, mentors, nil, nil)
	if err != nil {
		return nil, err
	}
	for i, slot := range visible {
		report.CountsAvailableBySubject[slot.Subject]++
		report.CountsAvailableByFaculty[slot.Faculty.Email]++
		if i < 3 {
			report.NextAvailable = append(report.NextAvailable, slot)
		}
	}

	return report, nil
}
