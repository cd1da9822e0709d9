package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"avatar-live/internal/media"
	"avatar-live/internal/media/mediatest"
	"avatar-live/internal/platform/logger"
)

// fakeMedia stands in for ffmpeg and the speech engines. Clips are real temp
// files naming their content; renders write real segment files and a real
// playlist, numbered the same way the encoder numbers them.
type fakeMedia struct {
	t   *testing.T
	dir string

	mu         sync.Mutex
	checkErr   error
	durations  map[string]float64
	failSynth  map[string]bool
	failProbe  map[string]bool
	failEncode map[string]bool
	// onRender runs at the start of every render, outside the lock.
	onRender func(text string)
	renders  []renderRecord
	seq      int
}

type renderRecord struct {
	text       string
	start      int
	background string
}

func newFakeMedia(t *testing.T) *fakeMedia {
	t.Helper()
	return &fakeMedia{
		t:          t,
		dir:        t.TempDir(),
		durations:  map[string]float64{},
		failSynth:  map[string]bool{},
		failProbe:  map[string]bool{},
		failEncode: map[string]bool{},
	}
}

func (f *fakeMedia) Check(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkErr
}

func (f *fakeMedia) SynthesizeSpeech(ctx context.Context, text string) (media.Clip, error) {
	f.mu.Lock()
	fail := f.failSynth[text]
	f.mu.Unlock()
	if fail {
		return media.Clip{}, fmt.Errorf("%w: synth exploded", media.ErrEngineFailed)
	}
	return f.clip("speech:" + text)
}

func (f *fakeMedia) GenerateSilence(ctx context.Context, seconds float64) (media.Clip, error) {
	return f.clip("silence:" + strconv.FormatFloat(seconds, 'f', -1, 64))
}

func (f *fakeMedia) ProbeDuration(ctx context.Context, clip media.Clip) (float64, error) {
	kind, val, err := f.readClip(clip)
	if err != nil {
		return 0, err
	}
	if kind == "silence" {
		return strconv.ParseFloat(val, 64)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failProbe[val] {
		return 0, media.ErrProbeFailed
	}
	if d, ok := f.durations[val]; ok {
		return d, nil
	}
	return 1.0, nil
}

func (f *fakeMedia) RenderAndAppend(ctx context.Context, req media.RenderRequest) error {
	_, text, err := f.readClip(req.Audio)
	if err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.onRender
	fail := f.failEncode[text]
	f.mu.Unlock()
	if hook != nil {
		hook(text)
	}
	if fail {
		return media.ErrEncodeFailed
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return err
	}
	n := NextIndex(req.StartIndex, req.Duration, DefaultSegmentSeconds) - req.StartIndex
	segs := make([]media.PlaylistSegment, 0, n)
	remaining := req.Duration
	for i := 0; i < n; i++ {
		idx := req.StartIndex + i
		d := min(remaining, float64(DefaultSegmentSeconds))
		if d <= 0 {
			d = 0.1
		}
		remaining -= d
		name := media.SegmentName(idx)
		if err := os.WriteFile(filepath.Join(req.OutputDir, name), []byte(text), 0o644); err != nil {
			return err
		}
		segs = append(segs, media.PlaylistSegment{Index: idx, Duration: d, URI: name})
	}
	if err := mediatest.AppendPlaylist(filepath.Join(req.OutputDir, media.PlaylistName), segs, DefaultSegmentSeconds); err != nil {
		return err
	}

	f.mu.Lock()
	f.renders = append(f.renders, renderRecord{text: text, start: req.StartIndex, background: req.Background})
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) clip(content string) (media.Clip, error) {
	f.mu.Lock()
	f.seq++
	path := filepath.Join(f.dir, fmt.Sprintf("clip-%d.wav", f.seq))
	f.mu.Unlock()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return media.Clip{}, err
	}
	return media.Clip{Path: path}, nil
}

func (f *fakeMedia) readClip(c media.Clip) (kind, value string, err error) {
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", media.ErrProbeFailed, err)
	}
	kind, value, ok := strings.Cut(string(b), ":")
	if !ok {
		return "", "", errors.New("bad clip")
	}
	return kind, value, nil
}

func (f *fakeMedia) setDuration(text string, d float64) {
	f.mu.Lock()
	f.durations[text] = d
	f.mu.Unlock()
}

func (f *fakeMedia) setOnRender(fn func(text string)) {
	f.mu.Lock()
	f.onRender = fn
	f.mu.Unlock()
}

func (f *fakeMedia) snapshot() []renderRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]renderRecord(nil), f.renders...)
}

// gate blocks the render of one text until released.
type gate struct {
	text     string
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	released sync.Once
}

func newGate(text string) *gate {
	return &gate{text: text, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(text string) {
	if text != g.text {
		return
	}
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

func (g *gate) open() { g.released.Do(func() { close(g.release) }) }

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("render of %q never started", g.text)
	}
}

func testLogger() *slog.Logger {
	return logger.Discard()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readPlaylist(t *testing.T, path string) *media.Playlist {
	t.Helper()
	p, err := media.ReadPlaylist(path)
	if err != nil {
		t.Fatalf("ReadPlaylist: %v", err)
	}
	return p
}

func segmentIndexes(p *media.Playlist) []int {
	out := make([]int, 0, len(p.Segments))
	for _, s := range p.Segments {
		out = append(out, s.Index)
	}
	return out
}
