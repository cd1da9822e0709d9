package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration. Every field is read from the
// environment (after an optional .env file) and has a working default.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OutputRoot     string `env:"OUTPUT_ROOT" envDefault:"output"`
	UploadRoot     string `env:"UPLOAD_ROOT" envDefault:"uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	MaxTextChars       int     `env:"MAX_TEXT_CHARS" envDefault:"500"`
	MaxQueueDepth      int     `env:"MAX_QUEUE_DEPTH" envDefault:"64"`
	SegmentSeconds     int     `env:"SEGMENT_SECONDS" envDefault:"2"`
	PlaceholderSeconds float64 `env:"PLACEHOLDER_SECONDS" envDefault:"1.0"`

	TTSCommand   string `env:"TTS_COMMAND"`
	PiperBin     string `env:"PIPER_BIN" envDefault:"piper"`
	PiperModel   string `env:"PIPER_MODEL"`
	EspeakBin    string `env:"ESPEAK_BIN"`
	FFmpegBin    string `env:"FFMPEG_BIN" envDefault:"ffmpeg"`
	FFprobeBin   string `env:"FFPROBE_BIN" envDefault:"ffprobe"`
	FFmpegPreset string `env:"FFMPEG_PRESET" envDefault:"veryfast"`
	// TempDir holds speech and silence clips while they render; empty uses the system default.
	TempDir string `env:"TEMP_DIR"`

	JournalPath     string        `env:"JOURNAL_PATH"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env files into the process environment. With no paths, ".env"
// is used. A missing file is not an error; callers fall back to the system
// environment and the defaults in Config.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// FromEnv parses the environment into a Config and validates it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the service cannot work with.
func (c Config) Validate() error {
	switch {
	case c.SegmentSeconds <= 0:
		return fmt.Errorf("SEGMENT_SECONDS must be positive, got %d", c.SegmentSeconds)
	case c.PlaceholderSeconds <= 0:
		return fmt.Errorf("PLACEHOLDER_SECONDS must be positive, got %v", c.PlaceholderSeconds)
	case c.MaxTextChars <= 0:
		return fmt.Errorf("MAX_TEXT_CHARS must be positive, got %d", c.MaxTextChars)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	case c.MaxQueueDepth < 0:
		return fmt.Errorf("MAX_QUEUE_DEPTH must not be negative, got %d", c.MaxQueueDepth)
	case c.OutputRoot == "" || c.UploadRoot == "":
		return errors.New("OUTPUT_ROOT and UPLOAD_ROOT must be set")
	}
	return nil
}
