package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"fswd":                          WebDevelopment,
		"  Compiler Design  ":           CompilerDesign,
		"compiler   DESIGN":             CompilerDesign,
		"Full Stack  Web Development":   WebDevelopment,
		"CD":                            CompilerDesign,
		"java":                          Java,
		"deep learning":                 DeepLearning,
		"unknown-subject":               "unknown-subject",
		"   ":                           "",
		"":                              "",
		"  Quantum Basket Weaving     ": "Quantum Basket Weaving",
	}

	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestIsAllowed(t *testing.T) {
	assert.True(t, IsAllowed("Web Development"))
	assert.True(t, IsAllowed("fswd"))
	assert.True(t, IsAllowed(" daa "))
	assert.False(t, IsAllowed("unknown-subject"))
	assert.False(t, IsAllowed(""))
}

func TestAllowedIsSortedCopy(t *testing.T) {
	list := Allowed()
	assert.Equal(t, []string{CompilerDesign, DAA, DeepLearning, Java, WebDevelopment}, list)

	list[0] = "mutated"
	assert.Equal(t, CompilerDesign, Allowed()[0])
}
