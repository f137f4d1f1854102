package assemble

import (
	"context"
	"errors"
	"fmt"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry calls op until it succeeds, fails with an error retryable does not
// accept, or maxAttempts calls have been made. Attempts are numbered from 1.
// A cancelled ctx stops the loop before the next attempt.
func Retry(ctx context.Context, maxAttempts int, retryable func(error) bool, op func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, last)
}
