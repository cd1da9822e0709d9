package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Composition geometry. The avatar sits centred above the bottom edge and the
// logo in the top-left corner of a 1280x720 frame.
const (
	frameFilter = "[0:v]scale=1280:720[bg];" +
		"[1:v]scale=500:-1[av];" +
		"[2:v]scale=200:-1[lg];" +
		"[bg][av]overlay=(W-w)/2:H-h-40[tmp];" +
		"[tmp][lg]overlay=20:20[v]"
	silenceSource = "anullsrc=r=44100:cl=mono"
)

// GenerateSilence writes a mono silent wav clip of the given length.
func (e *Engine) GenerateSilence(ctx context.Context, seconds float64) (Clip, error) {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Clip{}, fmt.Errorf("silence duration must be positive, got %v", seconds)
	}
	path, err := e.tempFile("silence-*.wav")
	if err != nil {
		return Clip{}, err
	}
	clip := Clip{Path: path}

	_, err = e.run(ctx, command{
		name: e.opts.FFmpegBin,
		args: []string{"-y", "-f", "lavfi", "-i", silenceSource, "-t", formatSeconds(seconds), path},
	})
	if err != nil {
		clip.Release()
		return Clip{}, classify(ErrEngineFailed, err)
	}
	return clip, nil
}

// ProbeDuration measures a clip in seconds with ffprobe.
func (e *Engine) ProbeDuration(ctx context.Context, clip Clip) (float64, error) {
	out, err := e.run(ctx, command{
		name: e.opts.FFprobeBin,
		args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			clip.Path,
		},
	})
	if err != nil {
		return 0, classify(ErrProbeFailed, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: invalid duration %v", ErrProbeFailed, d)
	}
	return d, nil
}

// RenderAndAppend composites the assets over the audio clip and appends the
// resulting segments, numbered from req.StartIndex, to the output playlist.
// The playlist is read back afterwards; a render that did not land
// segment StartIndex is reported as ErrEncodeFailed.
func (e *Engine) RenderAndAppend(ctx context.Context, req RenderRequest) error {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", ErrEncodeFailed, err)
	}
	if _, err := e.run(ctx, command{name: e.opts.FFmpegBin, args: e.renderArgs(req)}); err != nil {
		return classify(ErrEncodeFailed, err)
	}

	p, err := ReadPlaylist(filepath.Join(req.OutputDir, PlaylistName))
	if err != nil {
		return fmt.Errorf("%w: read playlist: %v", ErrEncodeFailed, err)
	}
	if !p.Contains(req.StartIndex) {
		return fmt.Errorf("%w: playlist has no %s", ErrEncodeFailed, SegmentName(req.StartIndex))
	}
	return nil
}

func (e *Engine) renderArgs(req RenderRequest) []string {
	return []string{
		"-y",
		"-stream_loop", "-1", "-i", req.Background,
		"-loop", "1", "-i", req.Avatar,
		"-loop", "1", "-i", req.Logo,
		"-i", req.Audio.Path,
		"-filter_complex", frameFilter,
		"-map", "[v]",
		"-map", "3:a",
		"-shortest",
		"-t", formatSeconds(req.Duration),
		"-c:v", "libx264",
		"-preset", e.opts.Preset,
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", strconv.Itoa(e.opts.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_flags", "append_list+omit_endlist",
		"-start_number", strconv.Itoa(req.StartIndex),
		"-hls_segment_filename", filepath.Join(req.OutputDir, "segment_%05d.ts"),
		filepath.Join(req.OutputDir, PlaylistName),
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
