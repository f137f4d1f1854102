package beats

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type Mode int

const (
	// ModeEstimate detects a single BPM from the waveform.
	ModeEstimate Mode = iota
	// ModeFixed uses a BPM given by the user.
	ModeFixed
	// ModeFile reads explicit timestamps from a text file.
	ModeFile
	// ModeOnset tracks individual beats in the waveform.
	ModeOnset
	// ModeTag reads the BPM stored in the audio file's metadata.
	ModeTag
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeFile:
		return "file"
	case ModeOnset:
		return "beats"
	case ModeTag:
		return "tag"
	default:
		return "auto"
	}
}

type Spec struct {
	Mode Mode
	BPM  float64
	Path string
}

// ParseSpec interprets a beat specification. An existing file wins over
// every keyword so a beats file named "auto" still works.
func ParseSpec(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s != "" {
		if st, err := os.Stat(s); err == nil && st.Mode().IsRegular() {
			return Spec{Mode: ModeFile, Path: s}, nil
		}
	}
	switch strings.ToLower(s) {
	case "", "auto":
		return Spec{Mode: ModeEstimate}, nil
	case "beats":
		return Spec{Mode: ModeOnset}, nil
	case "tag":
		return Spec{Mode: ModeTag}, nil
	}
	bpm, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Spec{}, fmt.Errorf("beat spec %q: not a file, keyword or number", s)
	}
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return Spec{}, fmt.Errorf("beat spec %q: bpm must be > 0", s)
	}
	return Spec{Mode: ModeFixed, BPM: bpm}, nil
}

// ParseClock parses "90", "1:30" or "1:01:30" into seconds.
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("duration %q: too many fields", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("duration %q: negative or invalid field", s)
		}
		if i < len(parts)-1 && v != math.Trunc(v) {
			return 0, fmt.Errorf("duration %q: only the last field may be fractional", s)
		}
		total = total*60 + v
	}
	return total, nil
}
