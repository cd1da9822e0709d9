package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PlaylistName is the live playlist file inside an output location.
const PlaylistName = "index.m3u8"

// PlaylistSegment is one media entry of a live playlist.
type PlaylistSegment struct {
	// Index is parsed from the segment file name, or -1 when the URI does not
	// follow the segment_NNNNN.ts pattern.
	Index    int
	Duration float64
	URI      string
	// Discontinuity is set when #EXT-X-DISCONTINUITY precedes the entry, as
	// ffmpeg writes between separately encoded units in append mode.
	Discontinuity bool
}

// Playlist is the subset of an HLS media playlist the service reads and writes.
type Playlist struct {
	TargetDuration int
	MediaSequence  int
	Segments       []PlaylistSegment
	Ended          bool
}

// SegmentName returns the file name used for segment index.
func SegmentName(index int) string {
	return fmt.Sprintf("segment_%05d.ts", index)
}

// SegmentIndex parses an index back out of a segment file name.
func SegmentIndex(uri string) (int, bool) {
	name := filepath.Base(uri)
	if !strings.HasPrefix(name, "segment_") || !strings.HasSuffix(name, ".ts") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "segment_"), ".ts")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Contains reports whether the playlist lists a segment with the given index.
func (p *Playlist) Contains(index int) bool {
	for _, seg := range p.Segments {
		if seg.Index == index {
			return true
		}
	}
	return false
}

// LastIndex returns the highest segment index in the playlist, or -1.
func (p *Playlist) LastIndex() int {
	last := -1
	for _, seg := range p.Segments {
		if seg.Index > last {
			last = seg.Index
		}
	}
	return last
}

// ParsePlaylist reads an HLS media playlist. Unknown tags are ignored.
func ParsePlaylist(r io.Reader) (*Playlist, error) {
	sc := bufio.NewScanner(r)
	p := &Playlist{}
	first := true
	pending := -1.0
	discontinuity := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return nil, errors.New("playlist: missing #EXTM3U header")
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("playlist: target duration: %w", err)
			}
			p.TargetDuration = n
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			if err != nil {
				return nil, fmt.Errorf("playlist: media sequence: %w", err)
			}
			p.MediaSequence = n
		case strings.HasPrefix(line, "#EXTINF:"):
			v := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("playlist: segment duration: %w", err)
			}
			pending = d
		case line == "#EXT-X-ENDLIST":
			p.Ended = true
		case line == "#EXT-X-DISCONTINUITY":
			discontinuity = true
		case strings.HasPrefix(line, "#"):
		default:
			if pending < 0 {
				return nil, fmt.Errorf("playlist: uri %q without #EXTINF", line)
			}
			idx, ok := SegmentIndex(line)
			if !ok {
				idx = -1
			}
			p.Segments = append(p.Segments, PlaylistSegment{Index: idx, Duration: pending, URI: line, Discontinuity: discontinuity})
			pending = -1
			discontinuity = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, errors.New("playlist: empty")
	}
	return p, nil
}

// ReadPlaylist parses the playlist at path.
func ReadPlaylist(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePlaylist(f)
}

// EndPlaylist marks the playlist at path as complete by appending
// #EXT-X-ENDLIST. Lines already in the file are left untouched, including tags
// this package does not model such as #EXT-X-DISCONTINUITY. It is a no-op on
// an already ended playlist.
func EndPlaylist(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := ParsePlaylist(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if p.Ended {
		return nil
	}

	tag := "#EXT-X-ENDLIST\n"
	if len(data) > 0 && data[len(data)-1] != '\n' {
		tag = "\n" + tag
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(tag); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
