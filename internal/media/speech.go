package media

import (
	"context"
	"fmt"
	"strings"
)

// SynthesizeSpeech turns text into a wav clip using the first available engine:
// the configured TTS command, piper (when a model is configured), espeak-ng, espeak.
func (e *Engine) SynthesizeSpeech(ctx context.Context, text string) (Clip, error) {
	if err := ValidateText(text, e.opts.MaxTextChars); err != nil {
		return Clip{}, err
	}

	path, err := e.tempFile("speech-*.wav")
	if err != nil {
		return Clip{}, err
	}
	clip := Clip{Path: path}

	cmd, err := e.speechCommand(text, path)
	if err != nil {
		clip.Release()
		return Clip{}, err
	}
	if _, err := e.run(ctx, cmd); err != nil {
		clip.Release()
		return Clip{}, classify(ErrEngineFailed, err)
	}
	return clip, nil
}

func (e *Engine) speechCommand(text, output string) (command, error) {
	if len(e.ttsArgs) > 0 {
		args := make([]string, 0, len(e.ttsArgs)-1)
		for _, a := range e.ttsArgs[1:] {
			args = append(args, strings.ReplaceAll(a, OutputPlaceholder, output))
		}
		return command{name: e.ttsArgs[0], args: args, stdin: text}, nil
	}

	if e.opts.PiperModel != "" {
		if bin, err := e.lookPath(e.opts.PiperBin); err == nil {
			return command{
				name:  bin,
				args:  []string{"--model", e.opts.PiperModel, "--output_file", output},
				stdin: text,
			}, nil
		}
	}

	candidates := []string{"espeak-ng", "espeak"}
	if e.opts.EspeakBin != "" {
		candidates = []string{e.opts.EspeakBin}
	}
	for _, name := range candidates {
		if bin, err := e.lookPath(name); err == nil {
			return command{name: bin, args: []string{"-w", output, "--stdin"}, stdin: text}, nil
		}
	}

	return command{}, fmt.Errorf("%w: no TTS engine available, install piper or espeak-ng", ErrEngineUnavailable)
}
