// Package beats turns beat specifications and raw beat lists into the grid
// of cut points used for scheduling.
package beats

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Parse reads comma-separated timestamps in seconds. Blank tokens are
// dropped, a leading 0 is inserted when missing, and the result is
// deduplicated and sorted.
func Parse(r io.Reader) ([]float64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out := []float64{0}
	for i, tok := range strings.Split(string(b), ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("beat %d: %w", i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("beat %d: invalid timestamp %q", i+1, tok)
		}
		out = append(out, v)
	}
	return Dedup(out), nil
}

func ReadFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse beats file %s: %w", path, err)
	}
	return b, nil
}

// Dedup sorts xs in place and drops repeated values.
func Dedup(xs []float64) []float64 {
	if len(xs) == 0 {
		return xs
	}
	sort.Float64s(xs)
	out := xs[:1]
	for _, v := range xs[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Uniform returns 0, 60/bpm, 2*60/bpm, ... strictly below duration.
func Uniform(duration, bpm float64) ([]float64, error) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return nil, fmt.Errorf("bpm must be > 0, got %v", bpm)
	}
	if duration <= 0 {
		return []float64{0}, nil
	}
	step := 60 / bpm
	n := int(math.Ceil(duration / step))
	out := make([]float64, 0, n)
	for i := 0; ; i++ {
		// multiply instead of accumulating so long tracks do not drift
		v := float64(i) * step
		if v >= duration {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// Grid maps raw beats to cut points. A multiplier >= 1 keeps every Nth beat;
// a fractional multiplier f inserts points at f, 2f, ... between each pair.
func Grid(beats []float64, multiplier float64) ([]float64, error) {
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return nil, fmt.Errorf("duration multiplier must be > 0, got %v", multiplier)
	}
	if len(beats) == 0 {
		return nil, errors.New("no beats")
	}
	if multiplier >= 1 {
		// a stride past the last beat keeps only the first one
		n := len(beats)
		if multiplier < float64(len(beats)) {
			n = int(multiplier)
		}
		out := make([]float64, 0, len(beats)/n+1)
		for i := 0; i < len(beats); i += n {
			out = append(out, beats[i])
		}
		return Dedup(out), nil
	}

	out := append([]float64(nil), beats...)
	for k := 1; ; k++ {
		f := float64(k) * multiplier
		// tolerate 0.1+0.1+... landing a hair under 1
		if f >= 1-1e-9 {
			break
		}
		for i := 0; i+1 < len(beats); i++ {
			out = append(out, beats[i]+f*(beats[i+1]-beats[i]))
		}
	}
	return Dedup(out), nil
}
