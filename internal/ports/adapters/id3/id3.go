// Package id3 reads tempo metadata from ID3v2 tags.
package id3

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
)

var ErrNoTempo = errors.New("no BPM tag")

type Reader struct{}

func New() Reader { return Reader{} }

// ReadBPM returns the TBPM frame of path. Decimal values are accepted even
// though the frame is defined as an integer.
func (Reader) ReadBPM(path string) (float64, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"BPM"}})
	if err != nil {
		return 0, fmt.Errorf("open tag %s: %w", path, err)
	}
	defer tag.Close()

	raw := strings.TrimSpace(tag.GetTextFrame(tag.CommonID("BPM")).Text)
	if raw == "" {
		return 0, fmt.Errorf("%s: %w", path, ErrNoTempo)
	}
	raw = strings.TrimRight(raw, "\x00")
	bpm, err := strconv.ParseFloat(raw, 64)
	if err != nil || bpm <= 0 {
		return 0, fmt.Errorf("%s: invalid BPM tag %q", path, raw)
	}
	return bpm, nil
}
