// Package tempo estimates tempo and beat positions from decoded audio.
package tempo

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrNoBeatEstimate is returned when no analysis window yields a tempo.
var ErrNoBeatEstimate = errors.New("no beat estimate")

const (
	minBPM = 40.0
	maxBPM = 220.0

	// smoothing pole of the envelope low-pass
	envelopeAlpha = 0.99
)

type Options struct {
	Window  time.Duration
	Levels  int
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 3 * time.Second
	}
	if o.Levels <= 0 {
		o.Levels = 4
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// EstimateBPM returns the median tempo across non-overlapping windows.
// Silent windows and windows without a single dominant autocorrelation
// peak are skipped.
func EstimateBPM(ctx context.Context, samples []float64, rate int, opt Options) (float64, error) {
	opt = opt.withDefaults()
	if rate <= 0 {
		return 0, errors.New("sample rate must be > 0")
	}
	win := int(opt.Window.Seconds() * float64(rate))
	if win <= 0 {
		return 0, errors.New("analysis window is shorter than one sample")
	}
	windows := len(samples) / win
	if windows == 0 {
		return 0, ErrNoBeatEstimate
	}

	est := make([]float64, windows)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Workers)
	for i := 0; i < windows; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			bpm, ok := windowBPM(samples[i*win:(i+1)*win], rate, opt.Levels)
			if !ok {
				bpm = math.NaN()
			}
			est[i] = bpm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	valid := est[:0]
	for _, v := range est {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, ErrNoBeatEstimate
	}
	return median(valid), nil
}

func windowBPM(data []float64, rate, levels int) (float64, bool) {
	var (
		sum    []float64
		approx = data
		detail []float64
	)
	for lvl := 0; lvl < levels; lvl++ {
		approx, detail = dwt(approx)
		if lvl == 0 {
			sum = make([]float64, len(detail)/(1<<(levels-1))+1)
		}
		addInto(sum, envelope(detail, 1<<(levels-lvl-1)))
	}
	if allZero(approx) {
		return 0, false
	}
	addInto(sum, envelope(approx, 1))

	// the combined signal runs at rate / 2^levels
	envRate := float64(rate) / float64(int(1)<<levels)
	lo := int(math.Round(60 / maxBPM * envRate))
	hi := int(math.Round(60 / minBPM * envRate))
	acf := autocorrelate(sum)
	if hi > len(acf) {
		hi = len(acf)
	}
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		return 0, false
	}
	lag, ok := dominantPeak(acf[lo:hi])
	if !ok {
		return 0, false
	}
	return 60 * envRate / float64(lag+lo), true
}

// envelope low-passes x, keeps every step-th sample, rectifies and removes
// the mean.
func envelope(x []float64, step int) []float64 {
	out := make([]float64, 0, len(x)/step+1)
	var y float64
	for i, v := range x {
		y = (1-envelopeAlpha)*v + envelopeAlpha*y
		if i%step == 0 {
			out = append(out, math.Abs(y))
		}
	}
	var mean float64
	for _, v := range out {
		mean += v
	}
	if len(out) > 0 {
		mean /= float64(len(out))
	}
	for i := range out {
		out[i] -= mean
	}
	return out
}

func addInto(dst, src []float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
}

func allZero(xs []float64) bool {
	for _, v := range xs {
		if v != 0 {
			return false
		}
	}
	return true
}

// autocorrelate returns the linear autocorrelation of x for lags
// 0..len(x)-1, computed through a zero-padded FFT.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	m := 1
	for m < 2*n {
		m <<= 1
	}
	fft := fourier.NewFFT(m)
	buf := make([]float64, m)
	copy(buf, x)
	coeff := fft.Coefficients(nil, buf)
	for i, c := range coeff {
		coeff[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	seq := fft.Sequence(nil, coeff)
	acf := seq[:n]
	for i := range acf {
		acf[i] /= float64(m)
	}
	return acf
}

// dominantPeak reports the index of the unique positive maximum.
func dominantPeak(xs []float64) (int, bool) {
	best := math.Inf(-1)
	idx, count := -1, 0
	for i, v := range xs {
		switch {
		case v > best:
			best, idx, count = v, i, 1
		case v == best:
			count++
		}
	}
	if idx < 0 || count != 1 || best <= 0 {
		return 0, false
	}
	return idx, true
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
