package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/indigocalifornia/mvgen/internal/ports"
)

// DefaultVideoCodec is used for segment extraction and re-encoding joins.
var DefaultVideoCodec = []string{"-c:v", "libx264", "-crf", "27", "-preset", "veryfast"}

type Adapter struct {
	ffmpeg  string
	ffprobe string

	// VideoCodec replaces DefaultVideoCodec when set.
	VideoCodec []string
	// KeepAudio carries the clips' own sound into segments. Without it
	// segments are video-only.
	KeepAudio bool
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) codec() []string {
	if len(a.VideoCodec) > 0 {
		return a.VideoCodec
	}
	return DefaultVideoCodec
}

// ExtractSegment cuts length from src starting at start and re-encodes it.
func (a *Adapter) ExtractSegment(ctx context.Context, src string, start, length time.Duration, out string) error {
	return a.run(ctx, "extract segment", a.extractArgs(src, start, length, out))
}

func (a *Adapter) extractArgs(src string, start, length time.Duration, out string) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", fmtSeconds(start),
		"-t", fmtSeconds(length),
		"-i", src,
		"-g", "100",
	}
	args = append(args, a.codec()...)
	if a.KeepAudio {
		args = append(args, "-c:a", "aac", "-ar", "48000", "-ac", "2")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-pix_fmt", "yuv420p", out)
	return args
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Concat joins paths in order through the concat demuxer. The list file is
// written next to out.
func (a *Adapter) Concat(ctx context.Context, paths []string, out string, opts ports.JoinOptions) error {
	if len(paths) == 0 {
		return fmt.Errorf("ffmpeg concat: no inputs")
	}
	list := strings.TrimSuffix(out, filepath.Ext(out)) + ".txt"
	if err := os.WriteFile(list, []byte(concatList(paths)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return a.run(ctx, "concat", a.concatArgs(list, out, opts))
}

func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func (a *Adapter) concatArgs(list, out string, opts ports.JoinOptions) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-auto_convert", "1",
		"-f", "concat", "-safe", "0",
		"-i", list,
	}
	switch {
	case opts.Forced():
		args = append(args, a.codec()...)
		args = append(args, "-movflags", "faststart", "-vf", fitFilter(opts.Width, opts.Height))
	case opts.Convert:
		args = append(args, a.codec()...)
		args = append(args, "-vf", "crop=trunc(iw/2)*2:trunc(ih/2)*2")
	default:
		args = append(args, "-c:v", "copy")
	}
	return append(args, out)
}

// fitFilter scales into w x h keeping the aspect ratio and pads the rest.
func fitFilter(w, h int) string {
	return fmt.Sprintf(
		"scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		w, h, w, h,
	)
}

// Mux combines video with audio. The video is delayed by offset; mode picks
// the music track, the clips' own sound or a mix of both.
func (a *Adapter) Mux(ctx context.Context, video, audio string, offset time.Duration, mode ports.AudioMode, out string) error {
	return a.run(ctx, "mux", muxArgs(video, audio, offset, mode, out))
}

func muxArgs(video, audio string, offset time.Duration, mode ports.AudioMode, out string) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-itsoffset", fmtSeconds(offset),
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
	}
	switch mode {
	case ports.AudioModeMix:
		args = append(args, "-filter_complex", "[0:a][1:a]amix=inputs=2:duration=shortest[a]",
			"-map", "0:v:0", "-map", "[a]", "-c:a", "aac")
	case ports.AudioModeOriginal:
		args = append(args, "-map", "0:v:0", "-map", "0:a:0?", "-c:a", "copy")
	default:
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-c:a", "copy")
	}
	return append(args, "-shortest", out)
}

// ConvertToWAV decodes src into 16-bit PCM WAV. Leading silence is kept so
// beat times match the muxed track.
func (a *Adapter) ConvertToWAV(ctx context.Context, src, dst string) error {
	return a.run(ctx, "convert to wav", []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	})
}

func (a *Adapter) ConvertAudio(ctx context.Context, src, dst, codec string) error {
	if codec == "" {
		codec = "aac"
	}
	return a.run(ctx, "convert audio", []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn",
		"-c:a", codec,
		dst,
	})
}

func (a *Adapter) run(ctx context.Context, what string, args []string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", what, err, string(b))
	}
	return nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 6, 64)
}
