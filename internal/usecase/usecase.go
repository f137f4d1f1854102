package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/indigocalifornia/mvgen/internal/domain/assemble"
	"github.com/indigocalifornia/mvgen/internal/domain/beats"
	"github.com/indigocalifornia/mvgen/internal/domain/journal"
	"github.com/indigocalifornia/mvgen/internal/domain/sources"
	"github.com/indigocalifornia/mvgen/internal/domain/tempo"
	"github.com/indigocalifornia/mvgen/internal/ports"
	"github.com/indigocalifornia/mvgen/internal/types"
)

type Deps struct {
	Video    ports.VideoTool
	Wave     ports.WaveReader
	Tags     ports.TagReader
	Observer ports.Observer
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Observer == nil {
		d.Observer = ports.NopObserver{}
	}
	return Usecase{d: d}
}

type Input struct {
	Audio          string
	Beats          beats.Spec
	Multiplier     float64
	Sources        []string
	DeleteOriginal bool

	StartMargin    assemble.Margin
	EndMargin      assemble.Margin
	MaxAttempts    int
	ExtractTimeout time.Duration
	ProbeTimeout   time.Duration
	MinLength      float64
	Tempo          tempo.Options

	// WorkDir holds the staged audio and the journal; segments go to
	// WorkDir/segments.
	WorkDir string
	Rand    *rand.Rand
	Logf    func(format string, args ...any)
}

type Result struct {
	Audio    types.AudioTrack
	Grid     []float64
	Timeline types.Timeline
	Journal  string
}

// Run loads the audio, builds the cut grid and fills it with segments.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	rng := in.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ports.SafeNotify(u.d.Observer, types.Event{Kind: types.EventAudio, Message: in.Audio}, logf)
	track, err := u.LoadAudio(ctx, AudioInput{
		Ref:            in.Audio,
		Beats:          in.Beats,
		WorkDir:        in.WorkDir,
		DeleteOriginal: in.DeleteOriginal,
		Tempo:          in.Tempo,
		Rand:           rng,
		Logf:           logf,
	})
	if err != nil {
		return Result{}, err
	}

	multiplier := in.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	grid, err := beats.Grid(track.Beats, multiplier)
	if err != nil {
		return Result{}, err
	}
	logf("grid: %d cut points over %.3fs (x%g)", len(grid), track.Duration, multiplier)

	provider, err := sources.NewProvider(in.Sources, rng)
	if err != nil {
		return Result{}, err
	}
	logf("sources: %d files", provider.Len())

	segDir := filepath.Join(in.WorkDir, "segments")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return Result{}, err
	}
	jpath := filepath.Join(in.WorkDir, journal.FileName)
	j, err := journal.Open(jpath)
	if err != nil {
		return Result{}, err
	}
	defer j.Close()
	ref := track.Path
	if ref == "" {
		ref = in.Audio
	}
	if err := j.Audio(ref); err != nil {
		return Result{}, err
	}

	a := assemble.New(assemble.Config{
		StartMargin:    in.StartMargin,
		EndMargin:      in.EndMargin,
		MaxAttempts:    in.MaxAttempts,
		ExtractTimeout: in.ExtractTimeout,
		ProbeTimeout:   in.ProbeTimeout,
		MinLength:      in.MinLength,
		OutDir:         segDir,
	}, assemble.Deps{
		Tool:     u.d.Video,
		Sources:  provider,
		Journal:  j,
		Observer: u.d.Observer,
		Rand:     rng,
		Logf:     logf,
	})
	tl, err := a.Run(ctx, grid, track.Duration)
	if err != nil {
		return Result{}, fmt.Errorf("assemble: %w", err)
	}
	logf("timeline: %d segments, %.3fs, %d source reshuffles", len(tl.Segments), tl.Total, provider.Cycles())

	return Result{Audio: track, Grid: grid, Timeline: tl, Journal: jpath}, nil
}
