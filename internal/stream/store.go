package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"avatar-live/internal/media"
)

// Staged asset file names inside a session's upload directory.
const (
	avatarFile     = "avatar.png"
	backgroundFile = "background.mp4"
	logoFile       = "logo.png"
)

// DefaultMaxUploadBytes caps each uploaded asset.
const DefaultMaxUploadBytes = 50 * 1024 * 1024

// Uploads are the raw asset streams supplied to Registry.Start.
type Uploads struct {
	Avatar     io.Reader
	Background io.Reader
	Logo       io.Reader
}

// Store lays out stream files on disk:
//
//	<output>/<key>/index.m3u8, segment_NNNNN.ts
//	<uploads>/<key>/<session-id>/avatar.png, background.mp4, logo.png
//
// Each output directory is written only by the worker of the session that
// currently owns the key.
type Store struct {
	outputRoot     string
	uploadRoot     string
	maxUploadBytes int64
}

// NewStore creates both roots if needed.
func NewStore(outputRoot, uploadRoot string, maxUploadBytes int64) (*Store, error) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	for _, dir := range []string{outputRoot, uploadRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{outputRoot: outputRoot, uploadRoot: uploadRoot, maxUploadBytes: maxUploadBytes}, nil
}

// OutputDir is the key's output location.
func (s *Store) OutputDir(k StreamKey) string {
	return filepath.Join(s.outputRoot, string(k))
}

// PlaylistPath is the key's live playlist.
func (s *Store) PlaylistPath(k StreamKey) string {
	return filepath.Join(s.OutputDir(k), media.PlaylistName)
}

// SegmentPath resolves a segment file name inside the key's output location.
// Only names of the form segment_NNNNN.ts are accepted.
func (s *Store) SegmentPath(k StreamKey, name string) (string, bool) {
	if name != filepath.Base(name) {
		return "", false
	}
	if _, ok := media.SegmentIndex(name); !ok {
		return "", false
	}
	return filepath.Join(s.OutputDir(k), name), true
}

// ClearOutput removes the key's output location, partial segments included.
func (s *Store) ClearOutput(k StreamKey) error {
	return os.RemoveAll(s.OutputDir(k))
}

// StageAssets writes the uploads into a fresh directory owned by one session.
// Nothing is left behind on error.
func (s *Store) StageAssets(k StreamKey, sessionID string, up Uploads) (Assets, error) {
	if up.Avatar == nil || up.Background == nil || up.Logo == nil {
		return Assets{}, errors.New("avatar, background and logo are required")
	}
	dir := filepath.Join(s.uploadRoot, string(k), sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Assets{}, fmt.Errorf("create upload dir: %w", err)
	}
	a := Assets{
		Dir:        dir,
		Avatar:     filepath.Join(dir, avatarFile),
		Background: filepath.Join(dir, backgroundFile),
		Logo:       filepath.Join(dir, logoFile),
	}
	for _, f := range []struct {
		path string
		r    io.Reader
	}{
		{a.Avatar, up.Avatar},
		{a.Background, up.Background},
		{a.Logo, up.Logo},
	} {
		if err := s.save(f.r, f.path); err != nil {
			os.RemoveAll(dir)
			return Assets{}, err
		}
	}
	return a, nil
}

// ReleaseAssets removes a session's staged assets, and the key's upload
// directory once it is empty.
func (s *Store) ReleaseAssets(a Assets) error {
	if a.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		return err
	}
	// Fails harmlessly while another session's assets are still staged.
	_ = os.Remove(filepath.Dir(a.Dir))
	return nil
}

func (s *Store) save(r io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	if n > s.maxUploadBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrPayloadTooLarge, filepath.Base(path), s.maxUploadBytes)
	}
	return nil
}
