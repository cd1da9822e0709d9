package media

import (
	"errors"
	"io/fs"
	"os"
)

// Clip is a temporary audio file produced by the engine. The caller owns it
// and must Release it once the unit that uses it is finished.
type Clip struct {
	Path string
}

// Release deletes the clip's file. Releasing twice, or releasing a zero Clip, is fine.
func (c Clip) Release() error {
	if c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RenderRequest is one call to the encode/append collaborator.
type RenderRequest struct {
	Background string
	Avatar     string
	Logo       string
	Audio      Clip
	OutputDir  string
	StartIndex int
	// Duration is the measured audio length in seconds.
	Duration float64
}
