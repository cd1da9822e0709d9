package stream

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"avatar-live/internal/media"
)

func TestNextIndex(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		duration float64
		want     int
	}{
		{"short clip claims one", 1, 1.3, 2},
		{"exact target claims one", 1, 2.0, 2},
		{"just over target claims two", 2, 3.1, 4},
		{"long clip", 10, 9.0, 15},
		{"zero duration", 4, 0, 5},
		{"negative duration", 4, -1, 5},
		{"NaN duration", 4, math.NaN(), 5},
		{"infinite duration", 4, math.Inf(1), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextIndex(tt.current, tt.duration, 2); got != tt.want {
				t.Errorf("NextIndex(%d, %v, 2) = %d, want %d", tt.current, tt.duration, got, tt.want)
			}
		})
	}
}

func TestNextIndex_default_target(t *testing.T) {
	if got := NextIndex(0, 3, 0); got != 2 {
		t.Errorf("NextIndex with zero target = %d, want 2", got)
	}
}

func speech(m Media, text string) clipSource {
	return clipSource{
		stage: StageSynthesize,
		produce: func(ctx context.Context) (media.Clip, error) {
			return m.SynthesizeSpeech(ctx, text)
		},
	}
}

func TestUnit_run(t *testing.T) {
	fm := newFakeMedia(t)
	out := t.TempDir()
	fm.setDuration("hello", 4.5)

	var clipPath string
	src := speech(fm, "hello")
	produce := src.produce
	src.produce = func(ctx context.Context) (media.Clip, error) {
		c, err := produce(ctx)
		clipPath = c.Path
		return c, err
	}

	u := &unit{outputDir: out, start: 3, target: 2}
	if err := u.run(context.Background(), fm, src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if u.next != 6 {
		t.Errorf("next = %d, want 6", u.next)
	}
	if _, err := os.Stat(clipPath); !os.IsNotExist(err) {
		t.Errorf("clip should be released, stat err = %v", err)
	}
	p := readPlaylist(t, filepath.Join(out, media.PlaylistName))
	if got := segmentIndexes(p); len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("segments = %v, want [3 4 5]", got)
	}
}

func TestUnit_run_failures(t *testing.T) {
	t.Run("synthesis failure keeps index", func(t *testing.T) {
		fm := newFakeMedia(t)
		fm.failSynth["x"] = true

		u := &unit{outputDir: t.TempDir(), start: 7, target: 2}
		err := u.run(context.Background(), fm, speech(fm, "x"))
		var ue *UnitError
		if !errors.As(err, &ue) || ue.Stage != StageSynthesize {
			t.Fatalf("err = %v, want synthesize UnitError", err)
		}
		if u.next != 7 {
			t.Errorf("next = %d, want 7", u.next)
		}
	})

	t.Run("probe failure keeps index", func(t *testing.T) {
		fm := newFakeMedia(t)
		fm.failProbe["x"] = true

		u := &unit{outputDir: t.TempDir(), start: 7, target: 2}
		err := u.run(context.Background(), fm, speech(fm, "x"))
		var ue *UnitError
		if !errors.As(err, &ue) || ue.Stage != StageProbe {
			t.Fatalf("err = %v, want probe UnitError", err)
		}
		if !errors.Is(err, media.ErrProbeFailed) {
			t.Errorf("err should wrap ErrProbeFailed: %v", err)
		}
		if u.next != 7 {
			t.Errorf("next = %d, want 7", u.next)
		}
	})

	t.Run("encode failure consumes claimed range", func(t *testing.T) {
		fm := newFakeMedia(t)
		fm.failEncode["x"] = true
		fm.setDuration("x", 5)

		u := &unit{outputDir: t.TempDir(), start: 7, target: 2}
		err := u.run(context.Background(), fm, speech(fm, "x"))
		var ue *UnitError
		if !errors.As(err, &ue) || ue.Stage != StageEncode {
			t.Fatalf("err = %v, want encode UnitError", err)
		}
		if u.next != 10 {
			t.Errorf("next = %d, want 10", u.next)
		}
	})

	t.Run("encoder panic consumes claimed range", func(t *testing.T) {
		fm := newFakeMedia(t)
		fm.setDuration("x", 5)
		fm.setOnRender(func(text string) { panic("encoder crashed") })

		u := &unit{outputDir: t.TempDir(), start: 7, target: 2}
		err := u.run(context.Background(), fm, speech(fm, "x"))
		var ue *UnitError
		if !errors.As(err, &ue) || ue.Stage != StageEncode {
			t.Fatalf("err = %v, want encode UnitError", err)
		}
		if u.next != 10 {
			t.Errorf("next = %d, want 10", u.next)
		}
	})

	t.Run("synthesizer panic keeps index", func(t *testing.T) {
		u := &unit{outputDir: t.TempDir(), start: 7, target: 2}
		err := u.run(context.Background(), newFakeMedia(t), clipSource{
			stage:   StageSynthesize,
			produce: func(ctx context.Context) (media.Clip, error) { panic("tts crashed") },
		})
		var ue *UnitError
		if !errors.As(err, &ue) || ue.Stage != StageSynthesize {
			t.Fatalf("err = %v, want synthesize UnitError", err)
		}
		if u.next != 7 {
			t.Errorf("next = %d, want 7", u.next)
		}
	})
}
