package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// WithTimeout gives fn at most timeout. When the deadline wins, the result
// matches both errors.ErrTimeout and context.DeadlineExceeded while fn
// keeps running against its cancelled context. A non-positive timeout
// calls fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return apperrors.Wrap(apperrors.ErrTimeout, context.DeadlineExceeded, "%s exceeded %v", name, timeout)
	}
}
