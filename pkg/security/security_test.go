package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

func TestValidateJobTypeName_Valid(t *testing.T) {
	validNames := []string{
		"pre-market",
		"weekly-review",
		"not-a-real-type", // well-formed, membership is checked elsewhere
		"side_refresh",
		"a",
	}

	for _, name := range validNames {
		err := ValidateJobTypeName(name)
		assert.NoError(t, err, "Expected %q to be valid", name)
	}
}

func TestValidateJobTypeName_Invalid(t *testing.T) {
	invalidNames := []string{
		"",
		"123-task",
		"-task",
		"task with spaces",
		"task@email",
		"pre-market;drop table runs",
	}

	for _, name := range invalidNames {
		err := ValidateJobTypeName(name)
		assert.True(t, errors.Is(err, core.ErrInvalidJobTypeName), "Expected %q to be invalid", name)
	}

	err := ValidateJobTypeName(strings.Repeat("a", MaxJobTypeNameLength+1))
	assert.True(t, errors.Is(err, core.ErrJobTypeNameTooLong))
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "line1\nline2", SanitizeErrorMessage("line1\nline2"))
	assert.Equal(t, "nullbyte", SanitizeErrorMessage("null\x00byte"))
	assert.Equal(t, "bell", SanitizeErrorMessage("be\x07ll"))

	long := strings.Repeat("x", MaxErrorMessageLength+100)
	got := SanitizeErrorMessage(long)
	assert.Len(t, []rune(got), MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitizeMessages(t *testing.T) {
	assert.Nil(t, SanitizeMessages(nil))
	assert.Equal(t, []string{"a", "b"}, SanitizeMessages([]string{"a", "b\x00"}))

	many := make([]string, MaxMessagesPerRun+10)
	for i := range many {
		many[i] = "w"
	}
	got := SanitizeMessages(many)
	assert.Len(t, got, MaxMessagesPerRun)
	assert.Equal(t, "... 11 more", got[len(got)-1])
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 1, ClampConcurrency(-5))
	assert.Equal(t, 1, ClampConcurrency(0))
	assert.Equal(t, 8, ClampConcurrency(8))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(MaxConcurrency+1))
}
