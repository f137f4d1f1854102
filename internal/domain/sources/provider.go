// Package sources draws source clips from one or more directory trees.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
)

var ErrEmptyCatalog = errors.New("no source videos found")

// Provider hands out source files in a shuffled order. Each file is returned
// once per cycle; when a cycle ends the roots are scanned again and the new
// listing is reshuffled.
type Provider struct {
	roots []string
	rng   *rand.Rand

	files  []string
	cursor int
	cycles int
}

func NewProvider(roots []string, rng *rand.Rand) (*Provider, error) {
	if len(roots) == 0 {
		return nil, ErrEmptyCatalog
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := &Provider{roots: append([]string(nil), roots...), rng: rng}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Next returns the next source file.
func (p *Provider) Next() (string, error) {
	if p.cursor >= len(p.files) {
		if err := p.reload(); err != nil {
			return "", err
		}
		p.cycles++
	}
	f := p.files[p.cursor]
	p.cursor++
	return f, nil
}

// Len reports the size of the current cycle.
func (p *Provider) Len() int { return len(p.files) }

// Cycles reports how many times the catalog has been reshuffled after the
// initial scan.
func (p *Provider) Cycles() int { return p.cycles }

func (p *Provider) reload() error {
	files, err := Scan(p.roots)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrEmptyCatalog
	}
	p.rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	p.files = files
	p.cursor = 0
	return nil
}

// Scan lists non-empty regular files under roots, recursively. A root may
// also be a single file. The result is sorted so that shuffling with a seeded
// generator is reproducible.
func Scan(roots []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(path string, info fs.FileInfo) {
		if !info.Mode().IsRegular() || info.Size() == 0 || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}
	for _, root := range roots {
		st, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", root, err)
		}
		if !st.IsDir() {
			add(root, st)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			add(path, info)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}
