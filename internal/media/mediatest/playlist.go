// Package mediatest writes HLS playlists the way ffmpeg's HLS muxer does in
// append mode, for tests of code that reads or finalizes them.
package mediatest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"avatar-live/internal/media"
)

// BuildPlaylist renders p as an HLS live playlist string. If p.Ended is true,
// #EXT-X-ENDLIST is appended. The target duration is raised to cover the
// longest segment.
func BuildPlaylist(p media.Playlist) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	target := p.TargetDuration
	if t := targetDurationFromSegments(p.Segments); t > target {
		target = t
	}
	if target <= 0 {
		target = 1
	}

	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", target))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", p.MediaSequence))

	for _, seg := range p.Segments {
		if seg.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		b.WriteString(fmt.Sprintf("#EXTINF:%.6f,\n", seg.Duration))
		b.WriteString(seg.URI)
		b.WriteString("\n")
	}

	if p.Ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

// AppendPlaylist appends segs to the playlist at path, creating it if needed.
// Like ffmpeg's append_list, a batch added after existing entries starts with
// a discontinuity. Appending to an ended playlist fails.
func AppendPlaylist(path string, segs []media.PlaylistSegment, targetDuration int) error {
	p, err := media.ReadPlaylist(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		p = &media.Playlist{TargetDuration: targetDuration}
		if len(segs) > 0 && segs[0].Index >= 0 {
			p.MediaSequence = segs[0].Index
		}
	case err != nil:
		return err
	case p.Ended:
		return errors.New("playlist: already ended")
	}
	if len(p.Segments) > 0 && len(segs) > 0 {
		segs = append([]media.PlaylistSegment(nil), segs...)
		segs[0].Discontinuity = true
	}
	p.Segments = append(p.Segments, segs...)
	return writeFileAtomic(path, []byte(BuildPlaylist(*p)))
}

// targetDurationFromSegments returns the ceiling of the longest segment.
func targetDurationFromSegments(segments []media.PlaylistSegment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 0
	}
	return int(math.Ceil(max))
}

// writeFileAtomic replaces path so concurrent readers never see a half-written playlist.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".playlist-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
