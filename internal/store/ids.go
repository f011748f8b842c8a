// ABOUTME: Identifier and slug helpers shared by all store backends
// ABOUTME: Ids are 21-char URL-safe nanoids; slugs are lowercase hyphenated names

package store

import (
	"strings"
	"time"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a fresh 21-character URL-safe identifier.
func NewID() string {
	return gonanoid.Must()
}

// NewMessage builds a message with a fresh id and creation time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Slugify lowercases name and collapses every run of non-alphanumerics into one hyphen.
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
