package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"avatar-live/internal/journal"
	"avatar-live/internal/media"
	"avatar-live/internal/platform/logger"
	"avatar-live/internal/platform/metrics"

	"github.com/google/uuid"
)

// SessionConfig tunes a session's pipeline.
type SessionConfig struct {
	SegmentSeconds     int
	PlaceholderSeconds float64
	MaxQueueDepth      int
}

// Session owns one stream's queue, worker and segment counter.
//
// Lifecycle: Starting -> Active -> Stopping -> Stopped. Exactly one goroutine
// (the worker) renders, so at most one unit is in flight and segments are
// written in strictly increasing index order.
type Session struct {
	key       StreamKey
	id        uuid.UUID
	assets    Assets
	outputDir string
	media     Media
	cfg       SessionConfig

	log     *slog.Logger
	metrics *metrics.Metrics
	journal *journal.Store

	queue     *commandQueue
	state     atomic.Int32
	active    atomic.Bool
	next      atomic.Int64
	startedAt time.Time

	stopOnce sync.Once
	done     chan struct{}
}

func newSession(key StreamKey, id uuid.UUID, assets Assets, outputDir string, m Media, cfg SessionConfig,
	log *slog.Logger, met *metrics.Metrics, j *journal.Store) *Session {
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = DefaultSegmentSeconds
	}
	if cfg.PlaceholderSeconds <= 0 {
		cfg.PlaceholderSeconds = 1.0
	}
	s := &Session{
		key:       key,
		id:        id,
		assets:    assets,
		outputDir: outputDir,
		media:     m,
		cfg:       cfg,
		log: log.With(
			slog.String("component", "session"),
			slog.String("stream_key", string(key)),
			slog.String("session_id", id.String()),
		),
		metrics: met,
		journal: j,
		queue:   newCommandQueue(cfg.MaxQueueDepth),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateStarting))
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id.String() }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Start renders the placeholder unit at index 0 and launches the worker.
// On error the session is Stopped and must not be registered.
func (s *Session) Start(ctx context.Context) error {
	if err := s.bootstrap(ctx); err != nil {
		s.state.Store(int32(StateStopped))
		s.active.Store(false)
		close(s.done)
		s.metrics.IncSessionStartFailed()
		s.journal.Record(ctx, s.event(journal.TypeStartFailed, -1, err.Error()))
		s.log.Warn("session failed to start", logger.Err(err))
		return err
	}

	s.startedAt = time.Now().UTC()
	s.active.Store(true)
	s.state.Store(int32(StateActive))
	s.metrics.IncSessionsStarted()
	if err := s.journal.BeginSession(ctx, s.ID(), string(s.key)); err != nil {
		s.log.Warn("journal begin session failed", logger.Err(err))
	}
	s.journal.Record(ctx, s.event(journal.TypeStarted, 0, ""))
	s.log.Info("session active", slog.Int64("next_index", s.next.Load()))

	go s.work()
	return nil
}

func (s *Session) bootstrap(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start: panic: %v", r)
		}
	}()

	if err := s.media.Check(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	u := s.unitAt(0)
	err = u.run(ctx, s.media, clipSource{
		stage: StageSilence,
		produce: func(ctx context.Context) (media.Clip, error) {
			return s.media.GenerateSilence(ctx, s.cfg.PlaceholderSeconds)
		},
	})
	if err != nil {
		return err
	}
	s.next.Store(int64(u.next))
	return nil
}

// Enqueue hands text to the worker without waiting for it to render.
// It returns the number of pending texts.
func (s *Session) Enqueue(text string) (int, error) {
	if !s.active.Load() {
		return 0, ErrSessionClosed
	}
	return s.queue.push(text)
}

// Stop moves the session to Stopping, queues the stop sentinel and blocks until
// the worker has exited. A render in progress finishes first; texts still
// queued behind it are discarded. Stop is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateActive), int32(StateStopping))
		s.active.Store(false)
		s.queue.close()
	})
	<-s.done
}

// Done is closed once the worker has exited (or Start failed).
func (s *Session) Done() <-chan struct{} { return s.done }

// Status reports the session's current state.
func (s *Session) Status() Status {
	return Status{
		StreamKey:   s.key,
		SessionID:   s.ID(),
		State:       s.State(),
		NextIndex:   int(s.next.Load()),
		QueueDepth:  s.queue.depth(),
		StartedAt:   s.startedAt,
		LastSegment: -1,
		PlaybackURL: PlaybackURL(s.key),
	}
}

func (s *Session) work() {
	defer close(s.done)

	for s.active.Load() {
		cmd := s.queue.take()
		if cmd.stop {
			break
		}
		s.speak(cmd.text)
	}

	s.state.Store(int32(StateStopping))
	if dropped := s.queue.drain(); dropped > 0 {
		s.metrics.AddDiscarded(dropped)
		s.log.Info("discarded queued texts", slog.Int("count", dropped))
	}
	s.state.Store(int32(StateStopped))

	ctx := context.Background()
	s.journal.Record(ctx, s.event(journal.TypeStopped, int(s.next.Load()), ""))
	if err := s.journal.EndSession(ctx, s.ID()); err != nil {
		s.log.Warn("journal end session failed", logger.Err(err))
	}
	s.metrics.IncSessionsStopped()
	s.log.Info("session stopped", slog.Int64("next_index", s.next.Load()))
}

// speak renders one text unit. A failure is logged and counted and the worker
// moves on to the next command.
func (s *Session) speak(text string) {
	// Renders are never cancelled: Stop lets the current unit finish.
	ctx := context.Background()
	start := int(s.next.Load())
	began := time.Now()

	u := s.unitAt(start)
	err := u.run(ctx, s.media, clipSource{
		stage: StageSynthesize,
		produce: func(ctx context.Context) (media.Clip, error) {
			return s.media.SynthesizeSpeech(ctx, text)
		},
	})
	next := u.next
	s.next.Store(int64(next))
	if err != nil {
		stage := StageEncode
		var ue *UnitError
		if errors.As(err, &ue) {
			stage = ue.Stage
		}
		s.metrics.IncUnitFailure(stage)
		s.journal.Record(ctx, s.event(journal.TypeUnitFailed, start, err.Error()))
		s.log.Warn("unit failed",
			slog.String("stage", stage),
			slog.Int("start_index", start),
			slog.Int("next_index", next),
			logger.Err(err))
		return
	}

	s.metrics.ObserveUnit(next-start, time.Since(began))
	s.journal.Record(ctx, s.event(journal.TypeUnitRendered, start, ""))
	s.log.Debug("unit rendered",
		slog.Int("start_index", start),
		slog.Int("next_index", next),
		slog.Duration("took", time.Since(began)))
}

func (s *Session) unitAt(start int) *unit {
	return &unit{
		assets:    s.assets,
		outputDir: s.outputDir,
		start:     start,
		target:    s.cfg.SegmentSeconds,
	}
}

func (s *Session) event(typ string, index int, detail string) journal.Event {
	return journal.Event{
		SessionID:    s.ID(),
		StreamKey:    string(s.key),
		Type:         typ,
		SegmentIndex: index,
		Detail:       detail,
	}
}
