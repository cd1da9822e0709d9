package media

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxTextChars bounds a single spoken message.
const DefaultMaxTextChars = 500

// ValidateText checks a message before it is queued or synthesized.
// Length is counted in characters, not bytes. maxChars <= 0 uses DefaultMaxTextChars.
func ValidateText(text string, maxChars int) error {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); n > maxChars {
		return fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, n, maxChars)
	}
	return nil
}
