package sandbox

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const ceilingSlack = time.Second

// Ceiling returns the hard deadline for a step with the given timeout.
func Ceiling(timeout time.Duration, factor float64) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return time.Duration(float64(timeout)*factor) + ceilingSlack
}

// withCeiling runs fn and gives up once the hard deadline passes. The
// goroutine running fn is abandoned in that case.
func withCeiling(ctx context.Context, ceiling time.Duration, fn func() (*Result, error)) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn()
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		return nil, errors.Wrapf(ErrInfrastructure, "execution did not terminate within %s", ceiling)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
