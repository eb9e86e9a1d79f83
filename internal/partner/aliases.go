package partner

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// FieldAliases lists the key names tried, in order, when reading loosely
// shaped partner payloads.
type FieldAliases struct {
	NestedUser            []string `yaml:"nested_user"`
	Role                  []string `yaml:"role"`
	FacultyFlags          []string `yaml:"faculty_flags"`
	RollNumber            []string `yaml:"roll_number"`
	MentorEmails          []string `yaml:"mentor_emails"`
	MentorEmailsBySubject []string `yaml:"mentor_emails_by_subject"`
	SelectedSubject       []string `yaml:"selected_subject"`
	TeacherID             []string `yaml:"teacher_id"`
	TeacherEmail          []string `yaml:"teacher_email"`
	AssignmentLists       []string `yaml:"assignment_lists"`
	ItemSubject           []string `yaml:"item_subject"`
	ItemTeacherID         []string `yaml:"item_teacher_id"`
	TeacherObjects        []string `yaml:"teacher_objects"`
	TeacherObjectID       []string `yaml:"teacher_object_id"`
	TeacherObjectEmail    []string `yaml:"teacher_object_email"`
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() *FieldAliases {
	a, err := parseAliases(defaultAliases)
	if err != nil {
		panic(fmt.Sprintf("embedded aliases.yaml: %v", err))
	}
	return a
}

// LoadAliases reads an alias table from path. Lists missing from the file
// keep their built-in values; an empty path returns the defaults.
func LoadAliases(path string) (*FieldAliases, error) {
	if path == "" {
		return DefaultAliases(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases file: %w", err)
	}

	override, err := parseAliases(data)
	if err != nil {
		return nil, err
	}

	return DefaultAliases().merge(override), nil
}

func parseAliases(data []byte) (*FieldAliases, error) {
	var a FieldAliases
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	return &a, nil
}

func (a *FieldAliases) merge(o *FieldAliases) *FieldAliases {
	pick := func(base, over []string) []string {
		if len(over) > 0 {
			return over
		}
		return base
	}

	return &FieldAliases{
		NestedUser:            pick(a.NestedUser, o.NestedUser),
		Role:                  pick(a.Role, o.Role),
		FacultyFlags:          pick(a.FacultyFlags, o.FacultyFlags),
		RollNumber:            pick(a.RollNumber, o.RollNumber),
		MentorEmails:          pick(a.MentorEmails, o.MentorEmails),
		MentorEmailsBySubject: pick(a.MentorEmailsBySubject, o.MentorEmailsBySubject),
		SelectedSubject:       pick(a.SelectedSubject, o.SelectedSubject),
		TeacherID:             pick(a.TeacherID, o.TeacherID),
		TeacherEmail:          pick(a.TeacherEmail, o.TeacherEmail),
		AssignmentLists:       pick(a.AssignmentLists, o.AssignmentLists),
		ItemSubject:           pick(a.ItemSubject, o.ItemSubject),
		ItemTeacherID:         pick(a.ItemTeacherID, o.ItemTeacherID),
		TeacherObjects:        pick(a.TeacherObjects, o.TeacherObjects),
		TeacherObjectID:       pick(a.TeacherObjectID, o.TeacherObjectID),
		TeacherObjectEmail:    pick(a.TeacherObjectEmail, o.TeacherObjectEmail),
	}
}
