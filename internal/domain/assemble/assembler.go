// Package assemble schedules source clips onto a beat grid until the audio
// duration is covered.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/indigocalifornia/mvgen/internal/ports"
	"github.com/indigocalifornia/mvgen/internal/types"
)

var (
	// ErrSegmentInvalid marks a draw that could not produce a usable segment.
	// Another draw may succeed.
	ErrSegmentInvalid = errors.New("segment invalid")
	ErrEmptyTimeline  = errors.New("no segments were accepted")
)

func IsSegmentInvalid(err error) bool { return errors.Is(err, ErrSegmentInvalid) }

// Tool is the part of the video collaborator the scheduler needs.
type Tool interface {
	ExtractSegment(ctx context.Context, src string, start, length time.Duration, out string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

type Source interface {
	Next() (string, error)
}

type Recorder interface {
	Segment(s types.SegmentRecord) error
}

type Config struct {
	StartMargin Margin
	EndMargin   Margin

	// MaxAttempts bounds the draws spent on one grid interval.
	MaxAttempts    int
	ExtractTimeout time.Duration
	ProbeTimeout   time.Duration

	// MinLength is the shortest interval worth cutting, in seconds.
	MinLength float64

	OutDir string
	Ext    string
}

const DefaultMaxAttempts = 5

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 15 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.MinLength <= 0 {
		c.MinLength = 0.04
	}
	if c.Ext == "" {
		c.Ext = ".mp4"
	}
	return c
}

type Deps struct {
	Tool     Tool
	Sources  Source
	Journal  Recorder
	Observer ports.Observer
	Rand     *rand.Rand
	Logf     func(format string, args ...any)
}

type Assembler struct {
	cfg Config
	d   Deps
}

func New(cfg Config, d Deps) *Assembler {
	if d.Observer == nil {
		d.Observer = ports.NopObserver{}
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.Logf == nil {
		d.Logf = func(string, ...any) {}
	}
	return &Assembler{cfg: cfg.withDefaults(), d: d}
}

// Run cuts one segment per grid interval until the timeline reaches duration.
// The timeline advances by the probed length of each output, so later cuts
// absorb drift from earlier ones. On error the segments accepted so far are
// returned with it.
func (a *Assembler) Run(ctx context.Context, grid []float64, duration float64) (types.Timeline, error) {
	var tl types.Timeline
	idx := 0
	for tl.Total < duration {
		if err := ctx.Err(); err != nil {
			return tl, err
		}
		for idx < len(grid) && grid[idx] <= tl.Total {
			idx++
		}
		boundary := duration
		if idx < len(grid) && grid[idx] < duration {
			boundary = grid[idx]
		}
		diff := boundary - tl.Total
		if diff < a.cfg.MinLength {
			if boundary >= duration {
				break
			}
			idx++
			continue
		}

		var rec types.SegmentRecord
		err := Retry(ctx, a.cfg.MaxAttempts, IsSegmentInvalid, func(attempt int) error {
			r, err := a.attempt(ctx, len(tl.Segments), diff, tl.Total)
			if err != nil {
				if IsSegmentInvalid(err) {
					a.d.Logf("segment %d attempt %d/%d: %v", len(tl.Segments), attempt, a.cfg.MaxAttempts, err)
				}
				return err
			}
			rec = r
			return nil
		})
		if err != nil {
			return tl, fmt.Errorf("segment %d at %.3fs: %w", len(tl.Segments), tl.Total, err)
		}

		tl.Segments = append(tl.Segments, rec)
		tl.Total = rec.End()
		if a.d.Journal != nil {
			if err := a.d.Journal.Segment(rec); err != nil {
				return tl, err
			}
		}
		a.notify(types.Event{
			Kind:     types.EventSegment,
			Progress: math.Min(tl.Total/duration, 1),
			Segment:  &rec,
		})
	}
	if len(tl.Segments) == 0 {
		return tl, ErrEmptyTimeline
	}
	return tl, nil
}

// attempt draws one source and tries to cut length seconds out of it.
func (a *Assembler) attempt(ctx context.Context, n int, length, at float64) (types.SegmentRecord, error) {
	src, err := a.d.Sources.Next()
	if err != nil {
		return types.SegmentRecord{}, err
	}

	dur, err := a.probe(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return types.SegmentRecord{}, ctx.Err()
		}
		return types.SegmentRecord{}, invalid("probe %s: %v", src, err)
	}
	if dur <= 0 {
		return types.SegmentRecord{}, invalid("%s has no duration", src)
	}

	lo := a.cfg.StartMargin.Seconds(dur)
	latest := dur - a.cfg.EndMargin.Seconds(dur) - length
	if latest < lo {
		return types.SegmentRecord{}, invalid("%s is too short (%.3fs) for %.3fs", src, dur, length)
	}
	start := lo + a.d.Rand.Float64()*(latest-lo)

	out := filepath.Join(a.cfg.OutDir, fmt.Sprintf("%05d_%s%s", n, slug(src), a.cfg.Ext))
	xctx, cancel := context.WithTimeout(ctx, a.cfg.ExtractTimeout)
	err = a.d.Tool.ExtractSegment(xctx, src, toDuration(start), toDuration(length), out)
	cancel()
	if err != nil {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return types.SegmentRecord{}, ctx.Err()
		}
		return types.SegmentRecord{}, invalid("extract %s: %v", src, err)
	}

	actual, err := a.probe(ctx, out)
	if err != nil || actual <= 0 {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return types.SegmentRecord{}, ctx.Err()
		}
		return types.SegmentRecord{}, invalid("output %s unusable (%.3fs, %v)", out, actual, err)
	}

	return types.SegmentRecord{
		Source:    src,
		Start:     start,
		Requested: length,
		Actual:    actual,
		Output:    out,
		Position:  at,
	}, nil
}

func (a *Assembler) probe(ctx context.Context, path string) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()
	d, err := a.d.Tool.ProbeDuration(pctx, path)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func (a *Assembler) notify(ev types.Event) {
	ports.SafeNotify(a.d.Observer, ev, a.d.Logf)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSegmentInvalid, fmt.Sprintf(format, args...))
}

func toDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}

// slug turns a source file name into a lowercase path segment.
func slug(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "clip"
	}
	return s
}
