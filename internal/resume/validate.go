package resume

import (
	"regexp"
	"strings"
)

var validEmail = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// FieldErrors maps a contact field name to a validation message.
type FieldErrors map[string]string

// Validate checks contact fields: name of at least two characters, a
// well-formed email and a phone with 10 to 15 digits.
func Validate(e Extracted) FieldErrors {
	errs := FieldErrors{}
	if len(strings.TrimSpace(e.Name)) < 2 {
		errs["name"] = "Name is required"
	}
	if !ValidEmail(e.Email) {
		errs["email"] = "Valid email is required"
	}
	if !ValidPhone(e.Phone) {
		errs["phone"] = "Valid phone number is required"
	}
	return errs
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return validEmail.MatchString(strings.TrimSpace(s))
}

// ValidPhone reports whether s carries 10 to 15 digits.
func ValidPhone(s string) bool {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n >= 10 && n <= 15
}
