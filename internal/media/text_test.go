package media

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateText(t *testing.T) {
	if err := ValidateText("hello", 500); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateText(" \n\t", 500); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
	if err := ValidateText(strings.Repeat("a", 501), 500); !errors.Is(err, ErrTextTooLong) || !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrTextTooLong wrapping ErrValidation, got %v", err)
	}
	// counted in characters: 500 two-byte runes fit.
	if err := ValidateText(strings.Repeat("é", 500), 500); err != nil {
		t.Errorf("unexpected error for 500 runes: %v", err)
	}
	if err := ValidateText(strings.Repeat("a", DefaultMaxTextChars+1), 0); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("zero limit should use default, got %v", err)
	}
}
