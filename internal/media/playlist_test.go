package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePlaylist_ffmpeg_output(t *testing.T) {
	src := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-ALLOW-CACHE:YES
#EXTINF:1.000000,
segment_00000.ts
#EXTINF:2.000000,
segment_00001.ts
#EXTINF:1.100000,
segment_00002.ts
`
	p, err := ParsePlaylist(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if p.TargetDuration != 2 || p.MediaSequence != 0 || p.Ended {
		t.Errorf("unexpected header fields: %+v", p)
	}
	if len(p.Segments) != 3 || p.LastIndex() != 2 || !p.Contains(1) || p.Contains(3) {
		t.Errorf("unexpected segments: %+v", p.Segments)
	}
}

func TestParsePlaylist_rejects_garbage(t *testing.T) {
	if _, err := ParsePlaylist(strings.NewReader("hello\n")); err == nil {
		t.Error("expected error for missing header")
	}
	if _, err := ParsePlaylist(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ParsePlaylist(strings.NewReader("#EXTM3U\nsegment_00000.ts\n")); err == nil {
		t.Error("expected error for uri without EXTINF")
	}
}

func TestSegmentIndex(t *testing.T) {
	if n, ok := SegmentIndex(SegmentName(42)); !ok || n != 42 {
		t.Errorf("round trip failed: %d %v", n, ok)
	}
	if n, ok := SegmentIndex("/live/demo/segment_123456.ts"); !ok || n != 123456 {
		t.Errorf("wide index failed: %d %v", n, ok)
	}
	for _, bad := range []string{"segment_.ts", "segment_ab.ts", "index.m3u8", "seg_00001.ts"} {
		if _, ok := SegmentIndex(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestParsePlaylist_discontinuity(t *testing.T) {
	p, err := ParsePlaylist(strings.NewReader(appendedPlaylist))
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if len(p.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %+v", p.Segments)
	}
	if p.Segments[0].Discontinuity || !p.Segments[1].Discontinuity || p.Segments[2].Discontinuity {
		t.Errorf("discontinuity should mark segment 1 only: %+v", p.Segments)
	}
}

// appendedPlaylist is what ffmpeg leaves after two units in append_list mode.
const appendedPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-ALLOW-CACHE:YES
#EXTINF:1.000000,
segment_00000.ts
#EXT-X-DISCONTINUITY
#EXT-X-PROGRAM-DATE-TIME:2026-10-18T10:00:01.000+0000
#EXTINF:2.000000,
segment_00001.ts
#EXTINF:1.100000,
segment_00002.ts
`

func TestEndPlaylist(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlaylistName)
	if err := EndPlaylist(path); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if err := os.WriteFile(path, []byte(appendedPlaylist), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := EndPlaylist(path); err != nil {
		t.Fatalf("EndPlaylist: %v", err)
	}
	if err := EndPlaylist(path); err != nil {
		t.Fatalf("second EndPlaylist: %v", err)
	}
	out, _ := os.ReadFile(path)
	if want := appendedPlaylist + "#EXT-X-ENDLIST\n"; string(out) != want {
		t.Errorf("existing lines must be kept as written:\n%s", out)
	}
	p, err := ReadPlaylist(path)
	if err != nil || !p.Ended {
		t.Errorf("expected ended playlist, got %+v %v", p, err)
	}
}

func TestEndPlaylist_missing_trailing_newline(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlaylistName)
	src := "#EXTM3U\n#EXTINF:1.000000,\nsegment_00000.ts"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EndPlaylist(path); err != nil {
		t.Fatalf("EndPlaylist: %v", err)
	}
	out, _ := os.ReadFile(path)
	if string(out) != src+"\n#EXT-X-ENDLIST\n" {
		t.Errorf("unexpected output %q", out)
	}
}
