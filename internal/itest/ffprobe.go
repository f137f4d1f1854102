//go:build integration

package itest

import (
	"context"
	"time"

	"github.com/indigocalifornia/mvgen/internal/ports/adapters/ffmpeg"
)

func probeDurationSeconds(path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := ffmpeg.New("", "").ProbeDuration(ctx, path)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
