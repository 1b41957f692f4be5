// Package security provides validation, sanitization, and limits for the runs package.
package security

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobTypeNameLength is the maximum length for job type names
	MaxJobTypeNameLength = 64

	// MaxConcurrency is the hard limit for concurrently executing runs
	MaxConcurrency = 64

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxMessagesPerRun caps the warnings or errors kept on one run
	MaxMessagesPerRun = 200
)

// validJobTypeName matches alphanumeric, hyphens, underscores, and dots
var validJobTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobTypeName validates the shape of a job type name.
// It does not check membership in the closed set; see core.ParseJobType.
func ValidateJobTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidJobTypeName
	}
	if len(name) > MaxJobTypeNameLength {
		return core.ErrJobTypeNameTooLong
	}
	if !validJobTypeName.MatchString(name) {
		return core.ErrInvalidJobTypeName
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// SanitizeMessages sanitizes each message and keeps at most MaxMessagesPerRun,
// replacing the overflow with a single marker line.
func SanitizeMessages(msgs []string) []string {
	if len(msgs) == 0 {
		return nil
	}
	keep := msgs
	overflow := 0
	if len(msgs) > MaxMessagesPerRun {
		keep = msgs[:MaxMessagesPerRun-1]
		overflow = len(msgs) - len(keep)
	}
	out := make([]string, 0, len(keep)+1)
	for _, m := range keep {
		out = append(out, SanitizeErrorMessage(m))
	}
	if overflow > 0 {
		out = append(out, "... "+strconv.Itoa(overflow)+" more")
	}
	return out
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
