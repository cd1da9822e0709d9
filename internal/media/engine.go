// Package media adapts the external speech and video tools the live pipeline
// depends on: a TTS engine, ffmpeg and ffprobe.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// OutputPlaceholder marks where a custom TTS command expects the wav path.
const OutputPlaceholder = "{output}"

// Options configures an Engine. Zero values fall back to the usual binary names.
type Options struct {
	FFmpegBin  string
	FFprobeBin string
	Preset     string

	// TTSCommand, when set, replaces engine discovery. It is split with shell
	// quoting rules, receives the text on stdin and must contain {output}.
	TTSCommand string
	PiperBin   string
	PiperModel string
	// EspeakBin pins the espeak binary; empty tries espeak-ng then espeak.
	EspeakBin string

	MaxTextChars   int
	SegmentSeconds int
	// TempDir holds synthesized and silence clips; empty uses os.TempDir.
	TempDir string
}

type command struct {
	name  string
	args  []string
	stdin string
}

// Engine runs the external tools. It is safe for concurrent use; each call
// spawns its own process.
type Engine struct {
	opts     Options
	ttsArgs  []string
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, cmd command) ([]byte, error)
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.FFmpegBin == "" {
		opts.FFmpegBin = "ffmpeg"
	}
	if opts.FFprobeBin == "" {
		opts.FFprobeBin = "ffprobe"
	}
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	if opts.PiperBin == "" {
		opts.PiperBin = "piper"
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 2
	}

	if opts.TempDir != "" {
		if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}

	e := &Engine{opts: opts, lookPath: exec.LookPath, run: runCommand}

	if strings.TrimSpace(opts.TTSCommand) != "" {
		args, err := shellwords.NewParser().Parse(opts.TTSCommand)
		if err != nil {
			return nil, fmt.Errorf("parse tts command: %w", err)
		}
		if len(args) == 0 {
			return nil, errors.New("tts command empty")
		}
		if !strings.Contains(strings.Join(args[1:], " "), OutputPlaceholder) {
			return nil, fmt.Errorf("tts command must reference %s", OutputPlaceholder)
		}
		e.ttsArgs = args
	}
	return e, nil
}

// Check verifies that every binary the pipeline needs can be resolved.
func (e *Engine) Check(ctx context.Context) error {
	for _, bin := range []string{e.opts.FFmpegBin, e.opts.FFprobeBin} {
		if _, err := e.lookPath(bin); err != nil {
			return fmt.Errorf("%w: %s not found", ErrEngineUnavailable, bin)
		}
	}
	if _, err := e.speechCommand("", os.DevNull); err != nil {
		return err
	}
	return ctx.Err()
}

// tempFile reserves a path for a clip. The file exists and is empty on return.
func (e *Engine) tempFile(pattern string) (string, error) {
	f, err := os.CreateTemp(e.opts.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp clip: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func runCommand(ctx context.Context, c command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.stdin != "" {
		cmd.Stdin = strings.NewReader(c.stdin)
	}
	if err := cmd.Run(); err != nil {
		if msg := tail(stderr.String(), 512); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", c.name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", c.name, err)
	}
	return stdout.Bytes(), nil
}

// classify maps a process error onto the media error kinds.
func classify(kind error, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
