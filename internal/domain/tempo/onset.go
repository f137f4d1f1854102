package tempo

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// onset envelope frame rate, in frames per second
	onsetFPS = 86.0

	// penalty for deviating from the global beat period
	tightness = 100.0
)

// TrackBeats detects individual beats. It builds a spectral-flux onset
// envelope, estimates a global period from its autocorrelation and picks the
// beat sequence that best trades onset strength against period regularity.
// Returned times are in seconds, ascending.
func TrackBeats(samples []float64, rate int) ([]float64, error) {
	if rate <= 0 {
		return nil, ErrNoBeatEstimate
	}
	hop := int(math.Round(float64(rate) / onsetFPS))
	if hop < 1 {
		hop = 1
	}
	frame := 4 * hop

	env := onsetEnvelope(samples, frame, hop)
	fps := float64(rate) / float64(hop)
	period, ok := beatPeriod(env, fps)
	if !ok {
		return nil, ErrNoBeatEstimate
	}

	frames := trackDP(env, period)
	out := make([]float64, 0, len(frames))
	for _, f := range frames {
		out = append(out, float64(f*hop)/float64(rate))
	}
	return out, nil
}

// onsetEnvelope returns positive spectral flux per frame of a centered STFT,
// normalized to unit standard deviation.
func onsetEnvelope(x []float64, frame, hop int) []float64 {
	if len(x) == 0 {
		return nil
	}
	pad := frame / 2
	frames := 1 + len(x)/hop
	win := hann(frame)
	fft := fourier.NewFFT(frame)
	buf := make([]float64, frame)
	var coeff []complex128

	prev := make([]float64, frame/2+1)
	cur := make([]float64, frame/2+1)
	env := make([]float64, frames)
	for t := 0; t < frames; t++ {
		start := t*hop - pad
		for k := range buf {
			j := start + k
			if j >= 0 && j < len(x) {
				buf[k] = x[j] * win[k]
			} else {
				buf[k] = 0
			}
		}
		coeff = fft.Coefficients(coeff, buf)
		var flux float64
		for k, c := range coeff {
			mag := math.Log1p(100 * math.Hypot(real(c), imag(c)))
			cur[k] = mag
			if t > 0 && mag > prev[k] {
				flux += mag - prev[k]
			}
		}
		env[t] = flux
		prev, cur = cur, prev
	}

	var mean, sq float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	for _, v := range env {
		sq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sq / float64(len(env)))
	if std == 0 {
		return env
	}
	for i := range env {
		env[i] /= std
	}
	return env
}

// beatPeriod picks the autocorrelation lag, in frames, with the highest
// tempo-weighted score between 40 and 220 BPM. The weighting is a
// log-normal prior centered on 120 BPM, one octave wide.
func beatPeriod(env []float64, fps float64) (float64, bool) {
	lo := int(math.Floor(60 / maxBPM * fps))
	hi := int(math.Ceil(60 / minBPM * fps))
	if lo < 1 {
		lo = 1
	}
	if hi >= len(env) {
		hi = len(env) - 1
	}
	best, bestLag := 0.0, 0
	for lag := lo; lag <= hi; lag++ {
		var acf float64
		for i := lag; i < len(env); i++ {
			acf += env[i] * env[i-lag]
		}
		bpm := 60 * fps / float64(lag)
		oct := math.Log2(bpm / 120)
		score := acf * math.Exp(-0.5*oct*oct)
		if score > best {
			best, bestLag = score, lag
		}
	}
	if bestLag == 0 {
		return 0, false
	}
	return float64(bestLag), true
}

// trackDP returns the frames of the highest scoring beat sequence.
func trackDP(env []float64, period float64) []int {
	n := len(env)
	score := make([]float64, n)
	back := make([]int, n)
	lo := int(math.Round(period / 2))
	hi := int(math.Round(2 * period))
	for t := 0; t < n; t++ {
		best, from := math.Inf(-1), -1
		for tau := t - hi; tau <= t-lo; tau++ {
			if tau < 0 {
				continue
			}
			r := math.Log(float64(t-tau) / period)
			if s := score[tau] - tightness*r*r; s > best {
				best, from = s, tau
			}
		}
		if from >= 0 && best > 0 {
			score[t] = env[t] + best
			back[t] = from
		} else {
			score[t] = env[t]
			back[t] = -1
		}
	}

	last := n - 1
	tail := n - int(math.Round(period))
	if tail < 0 {
		tail = 0
	}
	for t := tail; t < n; t++ {
		if score[t] > score[last] {
			last = t
		}
	}

	var rev []int
	for t := last; t >= 0; t = back[t] {
		rev = append(rev, t)
	}
	out := make([]int, len(rev))
	for i, f := range rev {
		out[len(rev)-1-i] = f
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
