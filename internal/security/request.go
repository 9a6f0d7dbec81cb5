package security

import (
	"fmt"
	"regexp"
)

// controlCharPattern matches C0 control characters other than the
// whitespace ones JSON already permits inside strings (tab/newline/CR are
// escaped by the JSON encoder, so any literal occurrence here is already
// suspicious).
var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// ContainsControlChars reports whether s contains a disallowed control
// character, the security-validator step's guard against header/field
// smuggling (§4.7 step 1).
func ContainsControlChars(s string) bool {
	return controlCharPattern.MatchString(s)
}

// ValidateRequestSize enforces a size cap on an incoming request body,
// the first check in the middleware pipeline's security-validator step.
func ValidateRequestSize(size, max int) error {
	if max <= 0 {
		return nil
	}
	if size > max {
		return fmt.Errorf("request body too large: %d bytes exceeds limit of %d", size, max)
	}
	return nil
}
