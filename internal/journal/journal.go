// Package journal records stream session lifecycles in SQLite so operators can
// see which session produced which segments, and which units failed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"avatar-live/internal/platform/logger"

	_ "modernc.org/sqlite"
)

// Event types written by the stream package.
const (
	TypeStarted      = "started"
	TypeStartFailed  = "start_failed"
	TypeUnitRendered = "unit_rendered"
	TypeUnitFailed   = "unit_failed"
	TypeStopped      = "stopped"
)

// Event is one journal row. SegmentIndex is -1 when the event is not tied to a segment.
type Event struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"sessionId"`
	StreamKey    string    `json:"streamKey"`
	Type         string    `json:"type"`
	SegmentIndex int       `json:"segmentIndex"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is a SQLite-backed journal. A Store opened with an empty path, or a
// nil *Store, accepts writes and discards them.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open creates or opens the journal at path. An empty path yields an
// ephemeral store that records nothing.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	s := &Store{log: log.With(slog.String("component", "journal")), clock: time.Now}
	if path == "" {
		return s, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the worker goroutines of every session share it.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    stream_key TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    stopped_at INTEGER
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    stream_key TEXT NOT NULL,
    event_type TEXT NOT NULL,
    segment_index INTEGER NOT NULL DEFAULT -1,
    detail TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_stream_id ON events(stream_key, id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init journal schema: %w", err)
	}
	return nil
}

func (s *Store) enabled() bool { return s != nil && s.db != nil }

// Close releases the database handle.
func (s *Store) Close() error {
	if !s.enabled() {
		return nil
	}
	return s.db.Close()
}

// BeginSession registers a session row.
func (s *Store) BeginSession(ctx context.Context, sessionID, streamKey string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, stream_key, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, streamKey, s.clock().UnixMilli())
	return err
}

// EndSession stamps the session's stop time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET stopped_at = ? WHERE session_id = ?`, s.clock().UnixMilli(), sessionID)
	return err
}

// Append writes an event.
func (s *Store) Append(ctx context.Context, evt Event) error {
	if !s.enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, stream_key, event_type, segment_index, detail, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.StreamKey, evt.Type, evt.SegmentIndex, evt.Detail, evt.CreatedAt.UnixMilli())
	return err
}

// Record is Append for callers that only log failures: the journal is
// diagnostic and must never fail a render.
func (s *Store) Record(ctx context.Context, evt Event) {
	if err := s.Append(ctx, evt); err != nil {
		s.log.Warn("journal append failed",
			slog.String("type", evt.Type),
			slog.String("session_id", evt.SessionID),
			logger.Err(err))
	}
}

// ListStream returns up to limit most recent events for a stream key, oldest first.
func (s *Store) ListStream(ctx context.Context, streamKey string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, stream_key, event_type, segment_index, COALESCE(detail, ''), created_at
		 FROM (SELECT * FROM events WHERE stream_key = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`, streamKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StreamKey, &e.Type, &e.SegmentIndex, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
