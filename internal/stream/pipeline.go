package stream

import (
	"context"
	"fmt"
	"math"

	"avatar-live/internal/media"
)

// DefaultSegmentSeconds is the target length of one HLS segment.
const DefaultSegmentSeconds = 2

// Pipeline stages, used to label unit failures.
const (
	StageSynthesize = "synthesize"
	StageSilence    = "silence"
	StageProbe      = "probe"
	StageEncode     = "encode"
)

// Media is the set of external capabilities a session drives.
// *media.Engine implements it.
type Media interface {
	Check(ctx context.Context) error
	SynthesizeSpeech(ctx context.Context, text string) (media.Clip, error)
	GenerateSilence(ctx context.Context, seconds float64) (media.Clip, error)
	ProbeDuration(ctx context.Context, clip media.Clip) (float64, error)
	RenderAndAppend(ctx context.Context, req media.RenderRequest) error
}

// UnitError reports which stage of a unit failed.
type UnitError struct {
	Stage string
	Err   error
}

func (e *UnitError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *UnitError) Unwrap() error { return e.Err }

// NextIndex returns the first segment index available after a unit that
// started at current and lasted duration seconds, with segments of target
// seconds. A unit always claims at least one index.
func NextIndex(current int, duration float64, target int) int {
	if target <= 0 {
		target = DefaultSegmentSeconds
	}
	claimed := 1
	if duration > 0 && !math.IsInf(duration, 0) {
		if n := int(math.Ceil(duration / float64(target))); n > 1 {
			claimed = n
		}
	}
	return current + claimed
}

// unit is one render: a clip laid over the session's assets, numbered from start.
type unit struct {
	assets    Assets
	outputDir string
	start     int
	target    int

	// next is the first free index after the unit. It moves past start only
	// once the probe has claimed a range.
	next int
	// stage is the step in progress, or the one that failed.
	stage string
}

// clipSource produces the audio for a unit; stage names it in failures.
type clipSource struct {
	stage   string
	produce func(ctx context.Context) (media.Clip, error)
}

// run produces the clip, probes it, appends its segments and leaves the next
// free index in u.next. The clip is released whatever happens. When the probe
// succeeds u.next covers the whole claimed range even if encoding fails or
// panics, so a partially written range is never reused. A panic in any stage
// is returned as a UnitError for that stage.
func (u *unit) run(ctx context.Context, m Media, src clipSource) (err error) {
	u.next = u.start
	u.stage = src.stage
	defer func() {
		if r := recover(); r != nil {
			err = &UnitError{Stage: u.stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	clip, err := src.produce(ctx)
	if err != nil {
		return &UnitError{Stage: u.stage, Err: err}
	}
	defer clip.Release()

	u.stage = StageProbe
	d, err := m.ProbeDuration(ctx, clip)
	if err != nil {
		return &UnitError{Stage: StageProbe, Err: err}
	}
	u.next = NextIndex(u.start, d, u.target)

	u.stage = StageEncode
	err = m.RenderAndAppend(ctx, media.RenderRequest{
		Background: u.assets.Background,
		Avatar:     u.assets.Avatar,
		Logo:       u.assets.Logo,
		Audio:      clip,
		OutputDir:  u.outputDir,
		StartIndex: u.start,
		Duration:   d,
	})
	if err != nil {
		return &UnitError{Stage: StageEncode, Err: err}
	}
	return nil
}
