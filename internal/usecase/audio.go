package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/indigocalifornia/mvgen/internal/domain/beats"
	"github.com/indigocalifornia/mvgen/internal/domain/tempo"
	"github.com/indigocalifornia/mvgen/internal/types"
)

var ErrAudioUnreadable = errors.New("audio unreadable")

type AudioInput struct {
	// Ref is an audio file, a directory to pick one from, or a bare duration
	// (seconds, mm:ss or hh:mm:ss).
	Ref   string
	Beats beats.Spec

	// WorkDir receives a copy of the audio and intermediate WAV files.
	WorkDir string
	// DeleteOriginal removes Ref after it has been copied.
	DeleteOriginal bool

	Tempo tempo.Options
	Rand  *rand.Rand
	Logf  func(format string, args ...any)
}

// LoadAudio resolves the audio reference and derives its beats.
func (u Usecase) LoadAudio(ctx context.Context, in AudioInput) (types.AudioTrack, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	path, dur, err := resolveAudio(in.Ref, in.Rand)
	if err != nil {
		return types.AudioTrack{}, err
	}
	if path == "" {
		logf("audio: bare duration %.3fs", dur)
		switch in.Beats.Mode {
		case beats.ModeFixed:
			grid, err := beats.Uniform(dur, in.Beats.BPM)
			if err != nil {
				return types.AudioTrack{}, err
			}
			return types.AudioTrack{Duration: dur, BPM: in.Beats.BPM, Beats: grid}, nil
		case beats.ModeFile:
			grid, err := beats.ReadFile(in.Beats.Path)
			if err != nil {
				return types.AudioTrack{}, err
			}
			return types.AudioTrack{Duration: dur, Beats: grid}, nil
		default:
			return types.AudioTrack{}, fmt.Errorf("audio %q has no file, %s beats need one; give a BPM or a beats file", in.Ref, in.Beats.Mode)
		}
	}

	local, err := stageAudio(path, in.WorkDir, in.DeleteOriginal)
	if err != nil {
		return types.AudioTrack{}, err
	}
	logf("audio: %s", local)

	d, err := u.d.Video.ProbeDuration(ctx, local)
	if err != nil {
		return types.AudioTrack{}, fmt.Errorf("%w: %s: %w", ErrAudioUnreadable, path, err)
	}
	if d <= 0 {
		return types.AudioTrack{}, fmt.Errorf("%w: %s has no duration", ErrAudioUnreadable, path)
	}
	track := types.AudioTrack{Path: local, Duration: d.Seconds()}

	switch in.Beats.Mode {
	case beats.ModeFile:
		track.Beats, err = beats.ReadFile(in.Beats.Path)
		if err != nil {
			return types.AudioTrack{}, err
		}
	case beats.ModeFixed:
		track.BPM = in.Beats.BPM
	case beats.ModeTag:
		bpm, err := u.d.Tags.ReadBPM(local)
		if err != nil {
			return types.AudioTrack{}, err
		}
		logf("bpm from tag: %g", bpm)
		track.BPM = bpm
	case beats.ModeEstimate:
		samples, rate, err := u.samples(ctx, local, in.WorkDir)
		if err != nil {
			return types.AudioTrack{}, err
		}
		bpm, err := tempo.EstimateBPM(ctx, samples, rate, in.Tempo)
		if err != nil {
			return types.AudioTrack{}, err
		}
		track.BPM = math.Round(bpm)
		logf("estimated bpm: %g (%.2f)", track.BPM, bpm)
	case beats.ModeOnset:
		samples, rate, err := u.samples(ctx, local, in.WorkDir)
		if err != nil {
			return types.AudioTrack{}, err
		}
		found, err := tempo.TrackBeats(samples, rate)
		if err != nil {
			return types.AudioTrack{}, err
		}
		track.Beats = beats.Dedup(append([]float64{0}, found...))
		logf("tracked %d beats", len(track.Beats))
	}

	if track.Beats == nil {
		if track.Beats, err = beats.Uniform(track.Duration, track.BPM); err != nil {
			return types.AudioTrack{}, err
		}
	}
	return track, nil
}

// samples decodes path, converting it to WAV first when the reader cannot
// handle its format.
func (u Usecase) samples(ctx context.Context, path, workDir string) ([]float64, int, error) {
	if !u.d.Wave.Supports(path) {
		wav := filepath.Join(workDir, "audio.wav")
		if err := u.d.Video.ConvertToWAV(ctx, path, wav); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrAudioUnreadable, err)
		}
		path = wav
	}
	x, rate, err := u.d.Wave.ReadMono(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAudioUnreadable, err)
	}
	return x, rate, nil
}

// resolveAudio returns either a file path or a bare duration.
func resolveAudio(ref string, rng *rand.Rand) (string, float64, error) {
	if ref == "" {
		return "", 0, errors.New("audio is empty")
	}
	st, err := os.Stat(ref)
	switch {
	case err == nil && st.Mode().IsRegular():
		return ref, 0, nil
	case err == nil && st.IsDir():
		path, err := pickFile(ref, rng)
		return path, 0, err
	}
	dur, perr := beats.ParseClock(ref)
	if perr != nil {
		return "", 0, fmt.Errorf("audio %q is neither a file, a directory nor a duration", ref)
	}
	if dur <= 0 {
		return "", 0, fmt.Errorf("audio duration %q must be > 0", ref)
	}
	return "", dur, nil
}

func pickFile(dir string, rng *rand.Rand) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files in %s", ErrAudioUnreadable, dir)
	}
	sort.Strings(files)
	if rng == nil {
		return files[rand.IntN(len(files))], nil
	}
	return files[rng.IntN(len(files))], nil
}

// stageAudio copies src into workDir as audio<ext>.
func stageAudio(src, workDir string, deleteOriginal bool) (string, error) {
	if workDir == "" {
		return src, nil
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(workDir, "audio"+strings.ToLower(filepath.Ext(src)))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if deleteOriginal {
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("delete original audio: %w", err)
		}
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
