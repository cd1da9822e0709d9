package media

import "errors"

var (
	// ErrValidation is the parent of every text validation failure.
	ErrValidation = errors.New("validation error")

	// ErrEmptyText is returned for text that is empty after trimming.
	ErrEmptyText = wrapKind(ErrValidation, "text cannot be empty")

	// ErrTextTooLong is returned for text over the configured character limit.
	ErrTextTooLong = wrapKind(ErrValidation, "text too long")

	// ErrEngineUnavailable means a required binary could not be found.
	ErrEngineUnavailable = errors.New("media engine unavailable")

	// ErrEngineFailed means an engine binary ran and exited non-zero.
	ErrEngineFailed = errors.New("media engine failed")

	// ErrProbeFailed means a clip's duration could not be measured.
	ErrProbeFailed = errors.New("duration probe failed")

	// ErrEncodeFailed means a segment render did not land in the playlist.
	ErrEncodeFailed = errors.New("encode failed")
)

type kindError struct {
	parent error
	msg    string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

func wrapKind(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}
