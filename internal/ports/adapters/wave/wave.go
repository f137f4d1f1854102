// Package wave decodes audio files into mono sample buffers.
package wave

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

type Reader struct{}

func New() Reader { return Reader{} }

// Supported reports whether path can be decoded without converting it first.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

func (Reader) Supports(path string) bool { return Supported(path) }

// ReadMono decodes a WAV or MP3 file and averages its channels.
func (Reader) ReadMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	default:
		return nil, 0, fmt.Errorf("decode %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	defer s.Close()

	out := make([]float64, 0, max(s.Len(), 0))
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, (frame[0]+frame[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, int(format.SampleRate), nil
}
