package stream

import "errors"

var (
	// ErrInvalidKey is returned when a stream key does not match the key format.
	ErrInvalidKey = errors.New("invalid stream key format")

	// ErrNotFound is returned for operations on a key with no registered session.
	ErrNotFound = errors.New("stream not found")

	// ErrPayloadTooLarge is returned when an uploaded asset exceeds the size limit.
	ErrPayloadTooLarge = errors.New("upload too large")

	// ErrQueueFull is returned when a session already holds the maximum number
	// of pending texts. Nothing is queued.
	ErrQueueFull = errors.New("stream queue full")

	// ErrSessionClosed is returned by a session that no longer accepts commands.
	// The registry reports it to callers as ErrNotFound.
	ErrSessionClosed = errors.New("session closed")

	// ErrRegistryClosed is returned once the registry has been shut down.
	ErrRegistryClosed = errors.New("registry closed")
)
