package gfx

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// WaitTimeout bounds a fence wait by both limit and the context deadline.
// It fails if the context is already done.
func WaitTimeout(ctx context.Context, limit time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < limit {
			if left <= 0 {
				return 0, errors.WithStack(context.DeadlineExceeded)
			}
			return left, nil
		}
	}
	return limit, nil
}
