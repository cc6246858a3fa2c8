package journald

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		// no leading underscores
		{"_A", "A"},
		{"__A", "A"},
		// inner underscores allowed
		{"A_A", "A_A"},
		{"A__A", "A__A"},
		{"A__A_", "A__A_"},
		// capitalization
		{"abcde", "ABCDE"},
		{"aBcDe", "ABCDE"},
		{"a123b", "A123B"},
		{"A123B", "A123B"},
		// invalid chars become underscores
		{"A `~!@#$%^&*()-_=+A", "A_________________A"},
		{"AꯍA", "A_A"},
		{"A\t", "A_"},
		// leading symbols dropped rather than replaced
		{"!A", "A"},
		{"!*", ""},
		{"(A)", "A_"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeKey(tc.in), "input: %q", tc.in)
	}
}

func TestSanitizeKey_Idempotent(t *testing.T) {
	inputs := []string{"_A", "A__A_", "aBcDe", "(A)", "!*", "build_di", "http.status"}
	for _, in := range inputs {
		once := sanitizeKey(in)
		assert.Equal(t, once, sanitizeKey(once), "input: %q", in)
	}
}

func TestSanitizeKey_OutputGrammar(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Z0-9][A-Z0-9_]*$`)
	inputs := []string{
		"_A", "A__A_", "aBcDe", "(A)", "!*", "", "build_di", "fü-bar",
		"\t\t", "99 bottles", "_", "____x",
	}
	for _, in := range inputs {
		out := sanitizeKey(in)
		if out == "" {
			continue
		}
		assert.True(t, valid.MatchString(out), "input: %q, output: %q", in, out)
	}
}

func TestSanitizeKey_CaseFoldsToOneKey(t *testing.T) {
	assert.Equal(t, sanitizeKey("request_id"), sanitizeKey("REQUEST_ID"))
	assert.Equal(t, sanitizeKey("ReQuEsT_iD"), sanitizeKey("request_id"))
}
