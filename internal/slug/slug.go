// Package slug derives URL slugs for imported records.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	maxSlugLen  = 200
)

// stripMarks folds accented letters to their base letter (é -> e).
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize turns a title into a slug.
// Rules:
// - Always lower-case, accents folded
// - Runs of anything outside a-z, 0-9 become a single hyphen
// - No leading or trailing hyphen
// - Max length: 200 bytes, cut at a hyphen where possible
func Normalize(s string) (string, error) {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		return "", fmt.Errorf("slug: %w", err)
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	out := b.String()
	if out == "" {
		return "", fmt.Errorf("slug: %q has no usable characters", s)
	}
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
		if i := strings.LastIndexByte(out, '-'); i > 0 {
			out = out[:i]
		}
		out = strings.TrimRight(out, "-")
	}
	return out, nil
}

// FromFields picks the slug for a new record: an explicit slug field wins,
// otherwise the title is normalized. Empty when neither yields one.
func FromFields(explicit, title string) string {
	if explicit != "" {
		return explicit
	}
	if title == "" {
		return ""
	}
	s, err := Normalize(title)
	if err != nil {
		return ""
	}
	return s
}

// Validate checks if a string is a valid slug without normalization.
func Validate(s string) error {
	if s == "" {
		return fmt.Errorf("slug cannot be empty")
	}
	if len(s) > maxSlugLen {
		return fmt.Errorf("slug exceeds maximum length of %d bytes", maxSlugLen)
	}
	if !slugPattern.MatchString(s) {
		return fmt.Errorf("invalid slug format: must be lowercase, start with alphanumeric, and contain only [a-z0-9-]")
	}
	return nil
}
