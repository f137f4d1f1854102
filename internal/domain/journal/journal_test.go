package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/indigocalifornia/mvgen/internal/types"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00.000000"},
		{1500 * time.Millisecond, "0:00:01.500000"},
		{61*time.Second + time.Microsecond, "0:01:01.000001"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2:03:04.000000"},
		{-time.Second, "0:00:00.000000"},
	}
	for _, tt := range tests {
		if got := Position(tt.in); got != tt.want {
			t.Fatalf("Position(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJournal_Lines(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)
	if err := j.Audio("/music/song.mp3"); err != nil {
		t.Fatalf("audio: %v", err)
	}
	err := j.Segment(types.SegmentRecord{
		Source:    "/clips/a.mp4",
		Start:     12.25,
		Requested: 0.5,
		Actual:    0.52,
		Output:    "/work/segments/00003_a.mp4",
		Position:  65.5,
	})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	want := "Audio: /music/song.mp3\n" +
		"0:01:05.500000 : 00003_a.mp4 : start=12.25 length=0.5 : /clips/a.mp4\n"
	if buf.String() != want {
		t.Fatalf("journal =\n%q\nwant\n%q", buf.String(), want)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpen_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", FileName)
	for i := 0; i < 2; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := j.Audio("10"); err != nil {
			t.Fatalf("audio: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(b), "Audio: 10\n"); n != 2 {
		t.Fatalf("expected 2 header lines, got %d in %q", n, b)
	}
}
