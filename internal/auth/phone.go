package auth

import (
	"regexp"
	"strings"
)

// phonePattern accepts canonical international numbers: + followed by 10-15 digits.
var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

// CanonicalizePhone strips separators from a phone number and validates the
// result against the international format. Rejection happens before any
// stateful component is touched.
func CanonicalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if !phonePattern.MatchString(phone) {
		return "", Validation("phone number must be in international format (e.g. +1234567890)")
	}
	return phone, nil
}
