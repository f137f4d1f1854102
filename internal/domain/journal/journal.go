// Package journal keeps the append-only record of a run's cut decisions.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/indigocalifornia/mvgen/internal/types"
)

const FileName = "journal.txt"

// Journal writes one header line for the audio and one line per accepted
// segment. Lines are flushed as they are written so a crashed run still
// leaves a readable record.
type Journal struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// Open appends to path, creating it if needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{w: f, c: f}, nil
}

// New writes to w. Close is a no-op unless w is also an io.Closer.
func New(w io.Writer) *Journal {
	j := &Journal{w: w}
	if c, ok := w.(io.Closer); ok {
		j.c = c
	}
	return j
}

// Audio records the resolved audio reference.
func (j *Journal) Audio(ref string) error {
	return j.line("Audio: " + ref)
}

// Segment records an accepted segment at its timeline position.
func (j *Journal) Segment(s types.SegmentRecord) error {
	return j.line(fmt.Sprintf("%s : %s : start=%s length=%s : %s",
		Position(seconds(s.Position)),
		filepath.Base(s.Output),
		num(s.Start),
		num(s.Requested),
		s.Source,
	))
}

func (j *Journal) Close() error {
	if j.c == nil {
		return nil
	}
	return j.c.Close()
}

func (j *Journal) line(s string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := io.WriteString(j.w, s+"\n"); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Position formats a timeline offset as H:MM:SS.ffffff.
func Position(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	us := int(d / time.Microsecond)
	return fmt.Sprintf("%d:%02d:%02d.%06d", h, m, s, us)
}

func seconds(sec float64) time.Duration {
	return time.Duration(sec*float64(time.Second) + 0.5)
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
