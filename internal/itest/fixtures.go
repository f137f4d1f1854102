//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
)

func runFFmpeg(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

// makeClip renders a test pattern clip with a tone.
func makeClip(t *testing.T, dir, name string, seconds int, size string) string {
	t.Helper()
	out := filepath.Join(dir, name)
	runFFmpeg(t,
		"-f", "lavfi", "-i", fmt.Sprintf("testsrc=size=%s:rate=25:duration=%d", size, seconds),
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%d", seconds),
		"-shortest",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	return out
}

// makeClickTrack renders short 1.5 kHz clicks at bpm.
func makeClickTrack(t *testing.T, path string, seconds int, bpm float64) string {
	t.Helper()
	period := 60 / bpm
	expr := fmt.Sprintf("0.8*sin(2*PI*1500*t)*lt(mod(t\\,%g)\\,0.03)", period)
	runFFmpeg(t,
		"-f", "lavfi", "-i", fmt.Sprintf("aevalsrc=exprs=%s:s=44100:d=%d", expr, seconds),
		path,
	)
	return path
}
