package identity

import (
	"regexp"
	"strings"
)

// usernameRe matches the accepted username shape.
// The bounds are a product decision inherited from the account signup policy.
var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether the trimmed username is 3-20 characters of
// letters, digits, and underscores. Validation runs on the raw (pre-fold)
// input; uniqueness runs on the normalized form.
func ValidUsername(s string) bool {
	return usernameRe.MatchString(strings.TrimSpace(s))
}
