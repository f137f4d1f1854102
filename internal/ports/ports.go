package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/indigocalifornia/mvgen/internal/types"
)

type VideoTool interface {
	ExtractSegment(ctx context.Context, src string, start, length time.Duration, out string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	Concat(ctx context.Context, paths []string, out string, opts JoinOptions) error
	Mux(ctx context.Context, video, audio string, offset time.Duration, mode AudioMode, out string) error
	ConvertToWAV(ctx context.Context, src, dst string) error
	ConvertAudio(ctx context.Context, src, dst, codec string) error
}

// WaveReader decodes an audio file into mono samples in [-1, 1].
type WaveReader interface {
	ReadMono(path string) ([]float64, int, error)
	// Supports reports whether path decodes without an ffmpeg conversion.
	Supports(path string) bool
}

// TagReader reads a tempo stored in the audio file's metadata.
type TagReader interface {
	ReadBPM(path string) (float64, error)
}

type Observer interface {
	Notify(ev types.Event)
}

type NopObserver struct{}

func (NopObserver) Notify(types.Event) {}

// SafeNotify delivers ev to obs. A panicking observer is logged and
// otherwise ignored.
func SafeNotify(obs Observer, ev types.Event, logf func(format string, args ...any)) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && logf != nil {
			logf("observer panic on %s event: %v", ev.Kind, r)
		}
	}()
	obs.Notify(ev)
}

// JoinOptions controls how accepted segments are concatenated.
// Zero Width/Height keeps the source size; Convert re-encodes instead of
// copying streams.
type JoinOptions struct {
	Width   int
	Height  int
	Convert bool
}

func (o JoinOptions) Forced() bool { return o.Width > 0 && o.Height > 0 }

// AudioMode selects which audio ends up in the final file.
type AudioMode string

const (
	AudioModeTrack    AudioMode = "audio"
	AudioModeOriginal AudioMode = "original"
	AudioModeMix      AudioMode = "mix"
)

func ParseAudioMode(s string) (AudioMode, error) {
	switch m := AudioMode(s); m {
	case "":
		return AudioModeTrack, nil
	case AudioModeTrack, AudioModeOriginal, AudioModeMix:
		return m, nil
	default:
		return "", fmt.Errorf("unknown audio mode %q (want audio, original or mix)", s)
	}
}
