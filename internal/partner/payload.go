package partner

import (
	"strconv"
	"strings"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
)

// AssignmentPair is a subject to teacher mapping found in a payload.
// At least one of TeacherID and TeacherEmail is set.
type AssignmentPair struct {
	Subject      string
	TeacherID    string
	TeacherEmail string
}

// ParseAssignments scans a verify payload and its nested user object for
// subject to teacher mappings. It never fails; unusable entries are skipped.
func ParseAssignments(payload map[string]any, a *FieldAliases) []AssignmentPair {
	if payload == nil {
		return nil
	}

	var pairs []AssignmentPair
	add := func(subj, teacherID, teacherEmail string) {
		subj = subject.Normalize(subj)
		if subj == "" || (teacherID == "" && teacherEmail == "") {
			return
		}
		pairs = append(pairs, AssignmentPair{Subject: subj, TeacherID: teacherID, TeacherEmail: teacherEmail})
	}

	for _, p := range withNested(payload, a) {
		add(
			firstString(p, a.SelectedSubject),
			firstString(p, a.TeacherID),
			firstString(p, a.TeacherEmail),
		)

		for _, listKey := range a.AssignmentLists {
			items, ok := p[listKey].([]any)
			if !ok {
				continue
			}

			for _, raw := range items {
				item, ok := raw.(map[string]any)
				if !ok {
					continue
				}

				teacherID := firstString(item, a.ItemTeacherID)
				teacherEmail := firstString(item, a.TeacherEmail)
				if obj := firstObject(item, a.TeacherObjects); obj != nil {
					if teacherID == "" {
						teacherID = firstString(obj, a.TeacherObjectID)
					}
					if teacherEmail == "" {
						teacherEmail = firstString(obj, a.TeacherObjectEmail)
					}
				}

				add(firstString(item, a.ItemSubject), teacherID, teacherEmail)
			}
		}
	}

	return pairs
}

// ParseRole maps partner role payloads to local roles. Explicit faculty flags
// win; a missing role means student. ok is false for unknown roles.
func ParseRole(user map[string]any, a *FieldAliases) (role model.Role, ok bool) {
	for _, key := range a.FacultyFlags {
		if v, isBool := user[key].(bool); isBool && v {
			return model.RoleFaculty, true
		}
	}

	switch strings.ToLower(firstString(user, a.Role)) {
	case "faculty", "teacher", "mentor", "staff":
		return model.RoleFaculty, true
	case "student", "learner", "user", "":
		return model.RoleStudent, true
	}
	return "", false
}

// ParseRollNumber reads the university roll number from the user object,
// falling back to the top-level payload.
func ParseRollNumber(user, payload map[string]any, a *FieldAliases) string {
	if roll := firstString(user, a.RollNumber); roll != "" {
		return roll
	}
	return firstString(payload, a.RollNumber)
}

// ParseMentorEmails reads the flat mentor email list of a student record.
func ParseMentorEmails(record map[string]any, a *FieldAliases) []string {
	for _, key := range a.MentorEmails {
		if emails := stringList(record[key]); len(emails) > 0 {
			return emails
		}
	}
	return nil
}

// ParseMentorEmailsBySubject reads a subject keyed mentor mapping. Subject
// keys are normalized; subjects without emails are dropped.
func ParseMentorEmailsBySubject(record map[string]any, a *FieldAliases) map[string][]string {
	for _, key := range a.MentorEmailsBySubject {
		raw, ok := record[key].(map[string]any)
		if !ok {
			continue
		}

		out := make(map[string][]string)
		for subj, v := range raw {
			subj = subject.Normalize(subj)
			if subj == "" {
				continue
			}
			out[subj] = append(out[subj], stringList(v)...)
		}
		for subj, emails := range out {
			if len(emails) == 0 {
				delete(out, subj)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func withNested(payload map[string]any, a *FieldAliases) []map[string]any {
	out := []map[string]any{payload}
	if nested := firstObject(payload, a.NestedUser); nested != nil {
		out = append(out, nested)
	}
	return out
}

func firstObject(m map[string]any, keys []string) map[string]any {
	for _, key := range keys {
		if obj, ok := m[key].(map[string]any); ok && len(obj) > 0 {
			return obj
		}
	}
	return nil
}

// firstString returns the first non-empty scalar under keys, as a trimmed string.
func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		if s := scalarString(m[key]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		if t == 0 {
			return ""
		}
		return strconv.Itoa(t)
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
