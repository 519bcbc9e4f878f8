// Package privacy masks candidate contact details before résumé text leaves
// the process.
package privacy

import (
	"regexp"
	"strings"
)

// Placeholders substituted for redacted values.
const (
	EmailPlaceholder = "[email]"
	PhonePlaceholder = "[phone]"
	URLPlaceholder   = "[link]"
)

var (
	emailRegex = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	// URLs go first so digits inside them are not read as phone numbers.
	urlRegex   = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	phoneRegex = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Redact replaces emails, phone numbers and links with placeholders.
func Redact(text string) string {
	text = emailRegex.ReplaceAllString(text, EmailPlaceholder)
	text = urlRegex.ReplaceAllString(text, URLPlaceholder)
	return phoneRegex.ReplaceAllString(text, PhonePlaceholder)
}

// IsEmpty reports whether nothing but placeholders and whitespace remains.
func IsEmpty(text string) bool {
	r := strings.NewReplacer(EmailPlaceholder, "", PhonePlaceholder, "", URLPlaceholder, "")
	return strings.TrimSpace(r.Replace(Redact(text))) == ""
}
