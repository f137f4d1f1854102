package cli

import (
	"io"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/indigocalifornia/mvgen/internal/types"
)

const progressScale = 1000

// progressBar renders run events as a terminal progress bar.
type progressBar struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	stage atomic.Pointer[string]
}

func newProgressBar(w io.Writer) *progressBar {
	pb := &progressBar{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(64))}
	pb.setStage("audio")
	pb.bar = pb.p.AddBar(progressScale,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return *pb.stage.Load() }, decor.WCSyncSpaceR),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return pb
}

func (pb *progressBar) setStage(s string) { pb.stage.Store(&s) }

func (pb *progressBar) Notify(ev types.Event) {
	switch ev.Kind {
	case types.EventAudio:
		pb.setStage("audio")
	case types.EventSegment:
		pb.setStage("cutting")
		pb.bar.SetCurrent(int64(ev.Progress * progressScale))
	case types.EventJoin:
		pb.setStage("joining")
		pb.bar.SetCurrent(progressScale - 1)
	case types.EventFinalize:
		pb.setStage("finalizing")
	}
}

// Close completes the bar and waits for the final render.
func (pb *progressBar) Close() {
	pb.bar.SetTotal(-1, true)
	pb.p.Wait()
}
