package assemble

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/indigocalifornia/mvgen/internal/types"
)

type fakeTool struct {
	sources map[string]time.Duration
	// outputs maps a written segment to its probed length
	outputs map[string]time.Duration

	scale      float64
	extractErr error
	zeroOutput bool

	extracts []extractCall
}

type extractCall struct {
	src           string
	start, length time.Duration
	out           string
}

func newFakeTool(sources map[string]time.Duration) *fakeTool {
	return &fakeTool{sources: sources, outputs: map[string]time.Duration{}, scale: 1}
}

func (f *fakeTool) ExtractSegment(ctx context.Context, src string, start, length time.Duration, out string) error {
	f.extracts = append(f.extracts, extractCall{src: src, start: start, length: length, out: out})
	if err := os.WriteFile(out, []byte("x"), 0o644); err != nil {
		return err
	}
	if f.extractErr != nil {
		return f.extractErr
	}
	d := time.Duration(float64(length) * f.scale)
	if f.zeroOutput {
		d = 0
	}
	f.outputs[out] = d
	return nil
}

func (f *fakeTool) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	if d, ok := f.sources[path]; ok {
		return d, nil
	}
	if d, ok := f.outputs[path]; ok {
		return d, nil
	}
	return 0, errors.New("no such file")
}

type fakeSource struct {
	files []string
	draws int
	err   error
}

func (s *fakeSource) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	f := s.files[s.draws%len(s.files)]
	s.draws++
	return f, nil
}

type fakeJournal struct{ recs []types.SegmentRecord }

func (j *fakeJournal) Segment(s types.SegmentRecord) error {
	j.recs = append(j.recs, s)
	return nil
}

type fakeObserver struct{ events []types.Event }

func (o *fakeObserver) Notify(ev types.Event) { o.events = append(o.events, ev) }

type panicObserver struct{}

func (panicObserver) Notify(types.Event) { panic("boom") }

func uniform(duration, bpm float64) []float64 {
	var g []float64
	for i := 0; float64(i)*60/bpm < duration; i++ {
		g = append(g, float64(i)*60/bpm)
	}
	return g
}

func TestRun_TenSecondsAtSixtyBPM(t *testing.T) {
	dir := t.TempDir()
	tool := newFakeTool(map[string]time.Duration{"/src/A.mp4": 60 * time.Second})
	src := &fakeSource{files: []string{"/src/A.mp4"}}
	j := &fakeJournal{}
	obs := &fakeObserver{}

	a := New(Config{OutDir: dir}, Deps{
		Tool:     tool,
		Sources:  src,
		Journal:  j,
		Observer: obs,
		Rand:     rand.New(rand.NewPCG(1, 1)),
	})
	tl, err := a.Run(context.Background(), uniform(10, 60), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(tl.Segments) != 10 {
		t.Fatalf("expected 10 segments, got %d", len(tl.Segments))
	}
	if math.Abs(tl.Total-10) > 1e-9 {
		t.Fatalf("total = %v, want 10", tl.Total)
	}
	for i, s := range tl.Segments {
		if math.Abs(s.Requested-1) > 1e-9 {
			t.Fatalf("segment %d requested %v, want 1", i, s.Requested)
		}
		if math.Abs(s.Position-float64(i)) > 1e-9 {
			t.Fatalf("segment %d at %v", i, s.Position)
		}
		if s.Start < 0 || s.Start+s.Requested > 60 {
			t.Fatalf("segment %d cut %v+%v outside the source", i, s.Start, s.Requested)
		}
	}
	if got := filepath.Base(tl.Segments[3].Output); got != "00003_a.mp4" {
		t.Fatalf("output name = %s", got)
	}
	if len(j.recs) != 10 || len(obs.events) != 10 {
		t.Fatalf("journal %d, events %d; want 10 each", len(j.recs), len(obs.events))
	}
	if last := obs.events[9]; last.Kind != types.EventSegment || last.Progress != 1 {
		t.Fatalf("unexpected final event %+v", last)
	}
}

func TestRun_AdvancesByActualDuration(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	tool.scale = 1.1
	a := New(Config{OutDir: t.TempDir()}, Deps{
		Tool:    tool,
		Sources: &fakeSource{files: []string{"a.mp4"}},
		Rand:    rand.New(rand.NewPCG(2, 2)),
	})
	tl, err := a.Run(context.Background(), []float64{0, 1, 2, 3}, 4)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum float64
	for i, s := range tl.Segments {
		if i > 0 && math.Abs(s.Position-tl.Segments[i-1].End()) > 1e-9 {
			t.Fatalf("segment %d starts at %v, previous ended at %v", i, s.Position, tl.Segments[i-1].End())
		}
		sum += s.Actual
	}
	if math.Abs(sum-tl.Total) > 1e-9 {
		t.Fatalf("total %v != sum of actual %v", tl.Total, sum)
	}
	if tl.Total < 4 {
		t.Fatalf("timeline stops short: %v", tl.Total)
	}
	// the first cut overshoots to 1.1, so the second asks only for 0.9
	if got := tl.Segments[1].Requested; math.Abs(got-0.9) > 1e-6 {
		t.Fatalf("second request = %v, want 0.9", got)
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"short.mp4": 500 * time.Millisecond})
	src := &fakeSource{files: []string{"short.mp4"}}
	a := New(Config{OutDir: t.TempDir()}, Deps{Tool: tool, Sources: src})

	tl, err := a.Run(context.Background(), []float64{0, 2}, 4)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, ErrSegmentInvalid) {
		t.Fatalf("expected wrapped ErrSegmentInvalid, got %v", err)
	}
	if src.draws != 5 {
		t.Fatalf("expected 5 draws, got %d", src.draws)
	}
	if len(tool.extracts) != 0 {
		t.Fatalf("expected no extraction, got %d", len(tool.extracts))
	}
	if len(tl.Segments) != 0 {
		t.Fatalf("expected no accepted segments, got %d", len(tl.Segments))
	}
}

func TestRun_SkipsShortSourceThenAccepts(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{
		"short.mp4": 200 * time.Millisecond,
		"long.mp4":  30 * time.Second,
	})
	src := &fakeSource{files: []string{"short.mp4", "long.mp4"}}
	a := New(Config{OutDir: t.TempDir()}, Deps{Tool: tool, Sources: src})

	tl, err := a.Run(context.Background(), []float64{0}, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tl.Segments) != 1 || tl.Segments[0].Source != "long.mp4" {
		t.Fatalf("unexpected timeline %+v", tl.Segments)
	}
	if src.draws != 2 {
		t.Fatalf("expected 2 draws, got %d", src.draws)
	}
}

func TestRun_BadOutputIsRemoved(t *testing.T) {
	dir := t.TempDir()
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	tool.zeroOutput = true
	a := New(Config{OutDir: dir}, Deps{Tool: tool, Sources: &fakeSource{files: []string{"a.mp4"}}})

	_, err := a.Run(context.Background(), []float64{0}, 1)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if len(tool.extracts) != 5 {
		t.Fatalf("expected 5 extractions, got %d", len(tool.extracts))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected failed outputs removed, found %d files", len(entries))
	}
}

func TestRun_ExtractErrorIsRetried(t *testing.T) {
	dir := t.TempDir()
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	tool.extractErr = errors.New("exit status 1")
	a := New(Config{OutDir: dir, MaxAttempts: 3}, Deps{Tool: tool, Sources: &fakeSource{files: []string{"a.mp4"}}})

	_, err := a.Run(context.Background(), []float64{0}, 1)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if len(tool.extracts) != 3 {
		t.Fatalf("expected 3 extractions, got %d", len(tool.extracts))
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("expected partial outputs removed, found %d files", len(entries))
	}
}

func TestRun_MarginsBoundStart(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"a.mp4": 20 * time.Second})
	a := New(Config{OutDir: t.TempDir(), StartMargin: 5, EndMargin: 0.25}, Deps{
		Tool:    tool,
		Sources: &fakeSource{files: []string{"a.mp4"}},
		Rand:    rand.New(rand.NewPCG(3, 3)),
	})
	tl, err := a.Run(context.Background(), uniform(30, 120), 30)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, s := range tl.Segments {
		// start margin 5s, end margin 25% of 20s
		if s.Start < 5 || s.Start+s.Requested > 15+1e-9 {
			t.Fatalf("cut %v+%v escapes margins", s.Start, s.Requested)
		}
	}
}

func TestRun_ShortTailEndsRun(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	a := New(Config{OutDir: t.TempDir()}, Deps{Tool: tool, Sources: &fakeSource{files: []string{"a.mp4"}}})

	tl, err := a.Run(context.Background(), []float64{0, 1, 1.01, 2}, 2.02)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tl.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %+v", tl.Segments)
	}
	if math.Abs(tl.Segments[1].Requested-1) > 1e-9 {
		t.Fatalf("tiny interval should be merged into the next, got %v", tl.Segments[1].Requested)
	}
}

func TestRun_MinLengthIsConfigurable(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	a := New(Config{OutDir: t.TempDir(), MinLength: 0.005}, Deps{Tool: tool, Sources: &fakeSource{files: []string{"a.mp4"}}})

	tl, err := a.Run(context.Background(), []float64{0, 1, 1.01, 2}, 2.02)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tl.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %+v", tl.Segments)
	}
	if last := tl.Segments[3].Requested; math.Abs(last-0.02) > 1e-6 {
		t.Fatalf("tail should be cut, got %v", last)
	}
	if math.Abs(tl.Total-2.02) > 1e-6 {
		t.Fatalf("total = %v, want 2.02", tl.Total)
	}
}

func TestRun_EmptyTimeline(t *testing.T) {
	a := New(Config{}, Deps{Tool: newFakeTool(nil), Sources: &fakeSource{files: []string{"a"}}})
	if _, err := a.Run(context.Background(), []float64{0}, 0); !errors.Is(err, ErrEmptyTimeline) {
		t.Fatalf("expected ErrEmptyTimeline, got %v", err)
	}
}

func TestRun_SourceErrorIsFatal(t *testing.T) {
	boom := errors.New("catalog gone")
	src := &fakeSource{err: boom}
	a := New(Config{OutDir: t.TempDir()}, Deps{Tool: newFakeTool(nil), Sources: src})
	_, err := a.Run(context.Background(), []float64{0}, 1)
	if !errors.Is(err, boom) || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected unretried source error, got %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(Config{}, Deps{Tool: newFakeTool(nil), Sources: &fakeSource{files: []string{"a"}}})
	if _, err := a.Run(ctx, []float64{0}, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_PanickingObserverIsIgnored(t *testing.T) {
	tool := newFakeTool(map[string]time.Duration{"a.mp4": time.Minute})
	a := New(Config{OutDir: t.TempDir()}, Deps{
		Tool:     tool,
		Sources:  &fakeSource{files: []string{"a.mp4"}},
		Observer: panicObserver{},
	})
	tl, err := a.Run(context.Background(), []float64{0, 1}, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tl.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tl.Segments))
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"/clips/My Clip (1).MP4": "my-clip-1",
		"a.mp4":                  "a",
		"/x/___.mkv":             "clip",
	}
	for in, want := range tests {
		if got := slug(in); got != want {
			t.Fatalf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}
