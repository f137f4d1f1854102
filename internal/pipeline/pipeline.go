package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/indigocalifornia/mvgen/internal/domain/assemble"
	"github.com/indigocalifornia/mvgen/internal/domain/beats"
	"github.com/indigocalifornia/mvgen/internal/ports"
	"github.com/indigocalifornia/mvgen/internal/ports/adapters/ffmpeg"
	"github.com/indigocalifornia/mvgen/internal/ports/adapters/id3"
	"github.com/indigocalifornia/mvgen/internal/ports/adapters/wave"
	"github.com/indigocalifornia/mvgen/internal/types"
	"github.com/indigocalifornia/mvgen/internal/usecase"
)

type Config struct {
	// Audio is a file, a directory to pick a track from, or a bare duration.
	Audio   string
	Sources []string
	// Beats is a beats file, "auto", "beats", "tag" or a BPM.
	Beats      string
	Multiplier float64

	StartMargin float64
	EndMargin   float64

	// AudioMode is audio, original or mix.
	AudioMode string
	// Offset delays the video against the audio, in seconds.
	Offset float64
	// Force is WxH; empty keeps the source size.
	Force   string
	Convert bool

	// UID names the workspace and delivered files. Generated when empty.
	UID         string
	WorkDir     string
	ReadyDir    string
	KeepWorkDir bool
	DeleteAudio bool
	// Seed makes source draws reproducible; zero picks a random seed.
	Seed uint64

	MaxAttempts    int
	ExtractTimeout time.Duration
	ProbeTimeout   time.Duration
	// MinLength is the shortest cut in seconds; zero selects one frame at 25 fps.
	MinLength float64

	FFmpegPath  string
	FFprobePath string
	VideoCodec  []string

	Logf     func(format string, args ...any)
	Observer ports.Observer
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Audio) == "" {
		return errors.New("audio is empty")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source directory is required")
	}
	for _, s := range c.Sources {
		if _, err := os.Stat(s); err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
	}
	if _, err := beats.ParseSpec(c.Beats); err != nil {
		return err
	}
	if c.Multiplier <= 0 || math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0) {
		return fmt.Errorf("multiplier must be > 0")
	}
	for _, m := range []float64{c.StartMargin, c.EndMargin} {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("margins must be finite and >= 0")
		}
	}
	if _, err := ports.ParseAudioMode(c.AudioMode); err != nil {
		return err
	}
	if _, err := parseForce(c.Force); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative")
	}
	if c.MinLength < 0 || math.IsNaN(c.MinLength) || math.IsInf(c.MinLength, 0) {
		return fmt.Errorf("min length must be finite and >= 0")
	}
	return nil
}

// parseForce reads a WxH frame size.
func parseForce(s string) (ports.JoinOptions, error) {
	if s == "" {
		return ports.JoinOptions{}, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return ports.JoinOptions{}, fmt.Errorf("force size %q: want WxH", s)
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return ports.JoinOptions{}, fmt.Errorf("force size %q: want WxH", s)
	}
	return ports.JoinOptions{Width: width, Height: height}, nil
}

type Result struct {
	UID      string
	Final    string
	Manifest types.Manifest
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	mode, _ := ports.ParseAudioMode(cfg.AudioMode)

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	v.VideoCodec = cfg.VideoCodec
	v.KeepAudio = mode != ports.AudioModeTrack

	return run(ctx, cfg, usecase.Deps{
		Video:    v,
		Wave:     wave.New(),
		Tags:     id3.New(),
		Observer: cfg.Observer,
	})
}

func run(ctx context.Context, cfg Config, deps usecase.Deps) (Result, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver{}
	}
	spec, err := beats.ParseSpec(cfg.Beats)
	if err != nil {
		return Result{}, err
	}
	mode, err := ports.ParseAudioMode(cfg.AudioMode)
	if err != nil {
		return Result{}, err
	}
	join, err := parseForce(cfg.Force)
	if err != nil {
		return Result{}, err
	}
	join.Convert = cfg.Convert

	uid := cfg.UID
	if uid == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			return Result{}, fmt.Errorf("generate run id: %w", err)
		}
		uid = id.String()
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "work"
	}
	readyDir := cfg.ReadyDir
	if readyDir == "" {
		readyDir = "ready"
	}
	ws := filepath.Join(workDir, uid)
	logf("preparing workspace")
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return Result{}, err
	}
	logf("workspace: %s", ws)
	if !cfg.KeepWorkDir {
		defer func() {
			if err := os.RemoveAll(ws); err != nil {
				logf("cleanup %s: %v", ws, err)
			}
		}()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	logf("seed: %d", seed)

	uc := usecase.New(deps)
	res, err := uc.Run(ctx, usecase.Input{
		Audio:          cfg.Audio,
		Beats:          spec,
		Multiplier:     cfg.Multiplier,
		Sources:        cfg.Sources,
		DeleteOriginal: cfg.DeleteAudio,
		StartMargin:    assemble.Margin(cfg.StartMargin),
		EndMargin:      assemble.Margin(cfg.EndMargin),
		MaxAttempts:    cfg.MaxAttempts,
		ExtractTimeout: cfg.ExtractTimeout,
		ProbeTimeout:   cfg.ProbeTimeout,
		MinLength:      cfg.MinLength,
		WorkDir:        ws,
		Rand:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Logf:           logf,
	})
	if err != nil {
		return Result{}, err
	}

	// join
	ports.SafeNotify(deps.Observer, types.Event{Kind: types.EventJoin, Progress: 1}, logf)
	all := filepath.Join(ws, "all.mp4")
	logf("joining %d segments", len(res.Timeline.Segments))
	if err := deps.Video.Concat(ctx, res.Timeline.Paths(), all, join); err != nil {
		return Result{}, err
	}

	// finalize
	ports.SafeNotify(deps.Observer, types.Event{Kind: types.EventFinalize, Progress: 1}, logf)
	final := filepath.Join(ws, "final.mp4")
	if res.Audio.Path != "" {
		aac := filepath.Join(ws, "audio.aac")
		if err := deps.Video.ConvertAudio(ctx, res.Audio.Path, aac, "aac"); err != nil {
			return Result{}, err
		}
		offset := time.Duration(cfg.Offset * float64(time.Second))
		if err := deps.Video.Mux(ctx, all, aac, offset, mode, final); err != nil {
			return Result{}, err
		}
	} else if err := copyFile(all, final); err != nil {
		return Result{}, err
	}

	m := buildManifest(uid, cfg.Audio, res)
	m.Final = uid + ".mp4"
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(ws, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return Result{}, err
	}

	// deliver
	if err := os.MkdirAll(readyDir, 0o755); err != nil {
		return Result{}, err
	}
	out := filepath.Join(readyDir, uid+".mp4")
	var delivered []string
	for _, f := range [][2]string{
		{final, out},
		{res.Journal, filepath.Join(readyDir, uid+".txt")},
		{manifestPath, filepath.Join(readyDir, uid+".json")},
	} {
		if err := copyFile(f[0], f[1]); err != nil {
			for _, p := range delivered {
				_ = os.Remove(p)
			}
			return Result{}, fmt.Errorf("deliver %s: %w", filepath.Base(f[1]), err)
		}
		delivered = append(delivered, f[1])
	}
	logf("manifest written (%d segments): %s", len(m.Segments), filepath.Join(readyDir, uid+".json"))
	logf("done: %s", out)
	return Result{UID: uid, Final: out, Manifest: m}, nil
}

func buildManifest(uid, audio string, res usecase.Result) types.Manifest {
	m := types.Manifest{
		UID:      uid,
		Audio:    audio,
		BPM:      res.Audio.BPM,
		Duration: res.Audio.Duration,
		Beats:    len(res.Audio.Beats),
		GridSize: len(res.Grid),
		Total:    res.Timeline.Total,
	}
	for i, s := range res.Timeline.Segments {
		m.Segments = append(m.Segments, types.ManifestSegment{
			ID:        fmt.Sprintf("%05d", i),
			File:      filepath.ToSlash(filepath.Join("segments", filepath.Base(s.Output))),
			Source:    s.Source,
			StartSec:  s.Start,
			LengthSec: s.Requested,
			ActualSec: s.Actual,
			AtSec:     s.Position,
		})
	}
	return m
}

// copyFile copies src to dst. A partially written dst is removed.
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
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
	}
	return err
}

// ensure adapters implement ports
var (
	_ ports.VideoTool  = (*ffmpeg.Adapter)(nil)
	_ ports.WaveReader = wave.Reader{}
	_ ports.TagReader  = id3.Reader{}
)
