package mediatest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatar-live/internal/media"
)

func TestBuildPlaylist_empty_not_ended(t *testing.T) {
	out := BuildPlaylist(media.Playlist{})
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("expected #EXTM3U header")
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:1") {
		t.Error("expected target duration 1 for empty")
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Error("expected media sequence 0")
	}
	if strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("should not contain ENDLIST when not ended")
	}
}

func TestBuildPlaylist_target_covers_longest_segment(t *testing.T) {
	out := BuildPlaylist(media.Playlist{TargetDuration: 2, Segments: []media.PlaylistSegment{
		{Index: 0, Duration: 2.0, URI: "segment_00000.ts"},
		{Index: 1, Duration: 2.4, URI: "segment_00001.ts"},
	}})
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:3") {
		t.Errorf("expected TARGETDURATION 3: %s", out)
	}
}

func TestAppendPlaylist_is_append_only(t *testing.T) {
	path := filepath.Join(t.TempDir(), media.PlaylistName)

	if err := AppendPlaylist(path, []media.PlaylistSegment{{Index: 0, Duration: 1, URI: media.SegmentName(0)}}, 2); err != nil {
		t.Fatalf("first append: %v", err)
	}
	before, _ := os.ReadFile(path)

	if err := AppendPlaylist(path, []media.PlaylistSegment{
		{Index: 1, Duration: 2, URI: media.SegmentName(1)},
		{Index: 2, Duration: 1.1, URI: media.SegmentName(2)},
	}, 2); err != nil {
		t.Fatalf("second append: %v", err)
	}

	p, err := media.ReadPlaylist(path)
	if err != nil {
		t.Fatalf("ReadPlaylist: %v", err)
	}
	if len(p.Segments) != 3 || p.Segments[0].URI != media.SegmentName(0) || p.LastIndex() != 2 {
		t.Errorf("unexpected playlist: %+v", p)
	}
	if p.Segments[0].Discontinuity || !p.Segments[1].Discontinuity || p.Segments[2].Discontinuity {
		t.Errorf("discontinuity should open the second batch only: %+v", p.Segments)
	}
	after, _ := os.ReadFile(path)
	firstEntry := "#EXTINF:1.000000,\nsegment_00000.ts\n"
	if !strings.Contains(string(before), firstEntry) || !strings.Contains(string(after), firstEntry) {
		t.Errorf("existing entry was rewritten:\n%s\n---\n%s", before, after)
	}
}

func TestAppendPlaylist_ended(t *testing.T) {
	path := filepath.Join(t.TempDir(), media.PlaylistName)
	_ = AppendPlaylist(path, []media.PlaylistSegment{{Index: 0, Duration: 1, URI: media.SegmentName(0)}}, 2)
	if err := media.EndPlaylist(path); err != nil {
		t.Fatalf("EndPlaylist: %v", err)
	}
	if err := AppendPlaylist(path, []media.PlaylistSegment{{Index: 1, Duration: 1, URI: media.SegmentName(1)}}, 2); err == nil {
		t.Error("appending to an ended playlist should fail")
	}
}
