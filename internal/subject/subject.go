// Package subject canonicalizes free-text subject names against the fixed
// list of subjects the scheduler supports.
package subject

import (
	"sort"
	"strings"
)

const (
	WebDevelopment = "Web Development"
	CompilerDesign = "Compiler Design"
	DAA            = "DAA"
	Java           = "JAVA"
	DeepLearning   = "Deep Learning"
)

var allowed = []string{WebDevelopment, CompilerDesign, DAA, Java, DeepLearning}

// aliases maps partner spellings (already lowercased and whitespace-collapsed)
// to canonical subjects.
var aliases = map[string]string{
	"full stack web development": WebDevelopment,
	"fullstack web development":  WebDevelopment,
	"fswd":                       WebDevelopment,
	"web dev":                    WebDevelopment,
	"webdevelopment":             WebDevelopment,
	"compilerdesign":             CompilerDesign,
	"cd":                         CompilerDesign,
}

var canonicalByKey = func() map[string]string {
	m := make(map[string]string, len(allowed))
	for _, s := range allowed {
		m[key(s)] = s
	}
	return m
}()

func key(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// Normalize returns the canonical subject for raw. Unknown input is returned
// trimmed but otherwise unchanged; use IsAllowed to validate it.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	k := key(trimmed)
	if s, ok := canonicalByKey[k]; ok {
		return s
	}
	if s, ok := aliases[k]; ok {
		return s
	}

	return trimmed
}

// IsAllowed reports whether value normalizes to a supported subject.
func IsAllowed(value string) bool {
	_, ok := canonicalByKey[key(Normalize(value))]
	return ok
}

// Allowed returns the supported subjects in sorted order.
func Allowed() []string {
	out := make([]string, len(allowed))
	copy(out, allowed)
	sort.Strings(out)
	return out
}
