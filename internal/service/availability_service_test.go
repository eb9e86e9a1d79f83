package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotIDs(slots []*model.Slot) []string {
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID.String())
	}
	return ids
}

func TestVisibleSlotsSubjectMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	daaMentor := env.addFaculty(t, "t-1", "daa@example.com")
	javaMentor := env.addFaculty(t, "t-2", "java@example.com")
	stranger := env.addFaculty(t, "t-3", "stranger@example.com")
	student := env.addStudent(t, "student@example.com")
	other := env.addStudent(t, "other@example.com")

	env.assign(t, student, subject.DAA, daaMentor)
	env.assign(t, student, "java", javaMentor)

	daa := env.addSlot(t, daaMentor, subject.DAA, at(1, 10, 0))
	java := env.addSlot(t, javaMentor, subject.Java, at(1, 11, 0))
	env.addSlot(t, stranger, subject.DAA, at(1, 12, 0))
	booked := env.addSlot(t, daaMentor, subject.DAA, at(2, 10, 0))
	past := env.addSlot(t, daaMentor, subject.DAA, at(0, 9, 30))

	_, err := env.bookings.Book(ctx, other.ID, booked.ID)
	require.NoError(t, err)
	env.clock.Set(at(0, 10, 0))

	// в режиме предметов статус "занят" не скрывает слоты
	_, err = env.slots.SetAvailability(ctx, javaMentor.ID, false)
	require.NoError(t, err)

	visible, err := env.availability.VisibleSlotsForStudent(ctx, student.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{daa.ID.String(), java.ID.String()}, slotIDs(visible))
	require.NotNil(t, visible[0].Faculty)
	assert.Equal(t, daaMentor.Email, visible[0].Faculty.Email)
	assert.NotContains(t, slotIDs(visible), past.ID.String())

	day := at(1, 0, 0)
	visible, err = env.availability.VisibleSlotsForStudent(ctx, student.ID, &day)
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	day = at(3, 0, 0)
	visible, err = env.availability.VisibleSlotsForStudent(ctx, student.ID, &day)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestVisibleSlotsLegacyModeHonoursBusyToggle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	free := env.addFaculty(t, "t-1", "free@example.com")
	busy := env.addFaculty(t, "t-2", "busy@example.com")
	student := env.addStudent(t, "student@example.com")

	freeSlot := env.addSlot(t, free, subject.DAA, at(1, 10, 0))
	env.addSlot(t, busy, subject.Java, at(1, 11, 0))

	_, err := env.slots.SetAvailability(ctx, busy.ID, false)
	require.NoError(t, err)

	mentors, err := env.availability.ResolveMentors(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, MentorModeLegacy, mentors.Mode)
	assert.Equal(t, MentorSourceExternalFlat, mentors.Source)

	visible, err := env.availability.VisibleSlotsForStudent(ctx, student.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{freeSlot.ID.String()}, slotIDs(visible))

	report, err := env.availability.TeacherStatus(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, report.HasAssignment)
	assert.True(t, report.AnyTeacherBusy)
	assert.Equal(t, "Teacher is currently busy. Please check later.", report.Message)
	require.Len(t, report.Teachers, 2)
	assert.Equal(t, "busy@example.com", report.Teachers[0].Email)
	assert.Equal(t, subject.Java, report.Teachers[0].Subject)
	assert.False(t, report.Teachers[0].IsAvailable)
}

func TestResolveMentorsPrefersExternalSubjectMapping(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	provider := &stubProvider{profile: &partner.StudentProfile{
		MentorEmailsBySubject: map[string][]string{
			"fswd":    {"web@example.com", "WEB@example.com"},
			"Unknown": {},
		},
		MentorEmails: []string{"flat@example.com"},
	}}
	env := newTestEnvWithProvider(t, store, provider)
	web := env.addFaculty(t, "t-1", "web@example.com")
	daa := env.addFaculty(t, "t-2", "daa@example.com")
	student := env.addStudent(t, "student@example.com")
	env.assign(t, student, subject.DAA, daa)

	mentors, err := env.availability.ResolveMentors(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, MentorModeSubject, mentors.Mode)
	assert.Equal(t, MentorSourceExternalBySubject, mentors.Source)
	assert.Equal(t, map[string][]string{subject.WebDevelopment: {"web@example.com"}}, mentors.BySubject)

	webSlot := env.addSlot(t, web, "fswd", at(1, 10, 0))
	env.addSlot(t, daa, subject.DAA, at(1, 11, 0))

	visible, err := env.availability.VisibleSlotsForStudent(ctx, student.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{webSlot.ID.String()}, slotIDs(visible))
}

func TestResolveMentorsFromAssignments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithProvider(t, memory.NewStore(), &stubProvider{})
	mentor := env.addFaculty(t, "t-1", "mentor@example.com")
	student := env.addStudent(t, "student@example.com")

	mentors, err := env.availability.ResolveMentors(ctx, student)
	require.NoError(t, err)
	assert.True(t, mentors.Empty())

	env.assign(t, student, subject.DAA, mentor)
	_, err = env.assignments.Upsert(ctx, student.ID, subject.Java, "java.mentor@example.com")
	require.NoError(t, err)

	mentors, err = env.availability.ResolveMentors(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, MentorSourceAssignments, mentors.Source)
	assert.Equal(t, map[string][]string{
		subject.DAA:  {"mentor@example.com"},
		subject.Java: {"java.mentor@example.com"},
	}, mentors.BySubject)
	assert.True(t, mentors.Allows("daa", "MENTOR@example.com"))
	assert.False(t, mentors.Allows(subject.Java, "mentor@example.com"))
}

func TestTeacherStatusWithoutMentors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithProvider(t, memory.NewStore(), &stubProvider{})
	student := env.addStudent(t, "student@example.com")

	report, err := env.availability.TeacherStatus(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, report.HasAssignment)
	assert.Empty(t, report.Teachers)
	assert.Equal(t, "No mentor assigned", report.Message)

	visible, err := env.availability.VisibleSlotsForStudent(ctx, student.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestDebugReport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mentor := env.addFaculty(t, "t-1", "mentor@example.com")
	student := env.addStudent(t, "student@example.com")
	env.assign(t, student, subject.DAA, mentor)

	for hour := 10; hour < 15; hour++ {
		env.addSlot(t, mentor, subject.DAA, at(1, hour, 0))
	}

	report, err := env.availability.Debug(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, MentorSourceAssignments, report.Mentors.Source)
	assert.Equal(t, []string{"t-1"}, report.TeacherIDs)
	assert.Equal(t, []string{"mentor@example.com"}, report.MentorEmails)
	require.Len(t, report.FacultyStatuses, 1)
	assert.Equal(t, 5, report.CountsAllBySubject[subject.DAA])
	assert.Equal(t, 5, report.CountsAvailableBySubject[subject.DAA])
	assert.Equal(t, 5, report.CountsAvailableByFaculty["mentor@example.com"])
	assert.Len(t, report.NextAvailable, 3)
	assert.Equal(t, testNow, report.ServerTime)

	_, err = env.availability.Debug(ctx, mentor.ID)
	assert.ErrorIs(t, err, ErrStudentOnly)
}
