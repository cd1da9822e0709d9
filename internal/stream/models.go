package stream

import (
	"regexp"
	"time"
)

// StreamKey identifies exactly one active session at a time.
type StreamKey string

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// ParseKey validates s as a stream key: 3 to 64 characters of [A-Za-z0-9_-].
func ParseKey(s string) (StreamKey, error) {
	if !keyPattern.MatchString(s) {
		return "", ErrInvalidKey
	}
	return StreamKey(s), nil
}

// PlaybackURL is the path a player polls for the key's live playlist.
func PlaybackURL(k StreamKey) string {
	return "/live/" + string(k) + "/index.m3u8"
}

// Assets are the staged files a session composites. They are never modified
// while the session lives.
type Assets struct {
	Dir        string
	Avatar     string
	Background string
	Logo       string
}

// PlaybackRef is returned by Registry.Start.
type PlaybackRef struct {
	StreamKey StreamKey `json:"streamKey"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"playbackUrl"`
}

// State is a session lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateActive
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of a registered session.
type Status struct {
	StreamKey  StreamKey `json:"streamKey"`
	SessionID  string    `json:"sessionId"`
	State      State     `json:"state"`
	NextIndex  int       `json:"nextIndex"`
	QueueDepth int       `json:"queueDepth"`
	StartedAt  time.Time `json:"startedAt"`
	// Segments and LastSegment describe the live playlist on disk;
	// LastSegment is -1 when nothing is listed yet.
	Segments    int    `json:"segments"`
	LastSegment int    `json:"lastSegment"`
	PlaybackURL string `json:"playbackUrl"`
}
