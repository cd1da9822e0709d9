package stream

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"avatar-live/internal/journal"
	"avatar-live/internal/media"
	"avatar-live/internal/platform/logger"
	"avatar-live/internal/platform/metrics"

	"github.com/google/uuid"
)

// Options configures a Registry and the sessions it creates.
type Options struct {
	SegmentSeconds     int
	PlaceholderSeconds float64
	MaxQueueDepth      int
	MaxTextChars       int
}

// Registry maps stream keys to their active Session. It is constructed once
// per process and shared by every transport handler.
//
// Start and Stop on the same key are serialized by a per-key lock, so at most
// one live session exists per key. Enqueue only takes the map's read lock and
// never waits for a render. Sessions of different keys share nothing.
type Registry struct {
	mu       sync.RWMutex
	sessions map[StreamKey]*Session
	closed   bool

	locks   keyLocks
	store   *Store
	media   Media
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
	journal *journal.Store
}

// NewRegistry returns an empty Registry. Metrics and journal may be nil.
func NewRegistry(store *Store, m Media, opts Options, log *slog.Logger, met *metrics.Metrics, j *journal.Store) *Registry {
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = DefaultSegmentSeconds
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = media.DefaultMaxTextChars
	}
	return &Registry{
		sessions: make(map[StreamKey]*Session),
		store:    store,
		media:    m,
		opts:     opts,
		log:      log.With(slog.String("component", "registry")),
		metrics:  met,
		journal:  j,
	}
}

// Start stages the uploads, retires any session already running for the key
// (full drain, then its output location is removed), renders the new
// session's placeholder and registers it. Either the new session is fully
// registered and active, or nothing new is registered.
//
// Uploads are staged before the old session is touched, so a rejected upload
// leaves a running stream alone.
func (r *Registry) Start(ctx context.Context, rawKey string, up Uploads) (PlaybackRef, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return PlaybackRef{}, err
	}
	if r.isClosed() {
		return PlaybackRef{}, ErrRegistryClosed
	}

	unlock := r.locks.lock(key)
	defer unlock()

	id := uuid.New()
	assets, err := r.store.StageAssets(key, id.String(), up)
	if err != nil {
		return PlaybackRef{}, err
	}

	if old := r.detach(key); old != nil {
		r.log.Info("replacing session",
			slog.String("stream_key", string(key)),
			slog.String("old_session_id", old.ID()),
			slog.String("session_id", id.String()))
		old.Stop()
		r.releaseAssets(old)
	}
	if err := r.store.ClearOutput(key); err != nil {
		_ = r.store.ReleaseAssets(assets)
		return PlaybackRef{}, fmt.Errorf("clear output: %w", err)
	}

	cfg := SessionConfig{
		SegmentSeconds:     r.opts.SegmentSeconds,
		PlaceholderSeconds: r.opts.PlaceholderSeconds,
		MaxQueueDepth:      r.opts.MaxQueueDepth,
	}
	s := newSession(key, id, assets, r.store.OutputDir(key), r.media, cfg, r.log, r.metrics, r.journal)
	if err := s.Start(ctx); err != nil {
		_ = r.store.ReleaseAssets(assets)
		_ = r.store.ClearOutput(key)
		return PlaybackRef{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Stop()
		r.releaseAssets(s)
		return PlaybackRef{}, ErrRegistryClosed
	}
	r.sessions[key] = s
	r.mu.Unlock()

	return PlaybackRef{StreamKey: key, SessionID: s.ID(), URL: PlaybackURL(key)}, nil
}

// Enqueue validates text and hands it to the key's session. It returns the
// number of texts pending for that session.
func (r *Registry) Enqueue(rawKey, text string) (int, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return 0, err
	}
	if err := media.ValidateText(text, r.opts.MaxTextChars); err != nil {
		return 0, err
	}

	s := r.lookup(key)
	if s == nil {
		return 0, ErrNotFound
	}
	depth, err := s.Enqueue(text)
	switch {
	case errors.Is(err, ErrSessionClosed):
		return 0, ErrNotFound
	case errors.Is(err, ErrQueueFull):
		r.metrics.IncQueueRejections()
		return 0, err
	case err != nil:
		return 0, err
	}
	return depth, nil
}

// Stop unregisters the key's session, then waits for its worker to drain and
// exit. The playlist is marked ended and left readable.
func (r *Registry) Stop(rawKey string) error {
	key, err := ParseKey(rawKey)
	if err != nil {
		return err
	}

	unlock := r.locks.lock(key)
	defer unlock()

	s := r.detach(key)
	if s == nil {
		return ErrNotFound
	}
	s.Stop()
	r.releaseAssets(s)
	r.finalize(key)
	return nil
}

// Status describes the key's registered session and its playlist.
func (r *Registry) Status(rawKey string) (Status, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return Status{}, err
	}
	s := r.lookup(key)
	if s == nil {
		return Status{}, ErrNotFound
	}
	st := s.Status()
	if p, err := media.ReadPlaylist(r.store.PlaylistPath(key)); err == nil {
		st.Segments = len(p.Segments)
		st.LastSegment = p.LastIndex()
	}
	return st, nil
}

// Events returns the journal history for a key, registered or not.
func (r *Registry) Events(ctx context.Context, rawKey string, limit int) ([]journal.Event, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	return r.journal.ListStream(ctx, string(key), limit)
}

// PlaylistPath returns the on-disk playlist for a key.
func (r *Registry) PlaylistPath(rawKey string) (string, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return "", err
	}
	return r.store.PlaylistPath(key), nil
}

// SegmentPath returns the on-disk segment file for a key, or ErrNotFound for
// names that are not segment files.
func (r *Registry) SegmentPath(rawKey, name string) (string, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return "", err
	}
	path, ok := r.store.SegmentPath(key, name)
	if !ok {
		return "", ErrNotFound
	}
	return path, nil
}

// Ready reports whether the media tools a new session needs are available.
func (r *Registry) Ready(ctx context.Context) error {
	return r.media.Check(ctx)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close unregisters every session and stops them concurrently, waiting for
// all workers to exit. Each playlist is marked ended, as with Stop. Later
// Starts fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
			r.releaseAssets(s)
			r.finalize(s.key)
		}(s)
	}
	wg.Wait()
	r.log.Info("registry closed", slog.Int("sessions_stopped", len(sessions)))
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) lookup(key StreamKey) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[key]
}

// detach removes and returns the key's session, if any.
func (r *Registry) detach(key StreamKey) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[key]
	delete(r.sessions, key)
	return s
}

// finalize marks the key's playlist ended so players stop polling it.
func (r *Registry) finalize(key StreamKey) {
	if err := media.EndPlaylist(r.store.PlaylistPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("finalize playlist failed",
			slog.String("stream_key", string(key)),
			logger.Err(err))
	}
}

func (r *Registry) releaseAssets(s *Session) {
	if err := r.store.ReleaseAssets(s.assets); err != nil {
		r.log.Warn("release assets failed",
			slog.String("session_id", s.ID()),
			logger.Err(err))
	}
}

// keyLocks hands out one mutex per stream key, dropping it when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[StreamKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (l *keyLocks) lock(key StreamKey) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[StreamKey]*keyLock)
	}
	kl := l.locks[key]
	if kl == nil {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
