// Package retry wraps store access with a single, short retry for transient failures.
//
// Only the store-access layer uses it. Callers above the stores see either the
// result or the final error and never retry again.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loyalgate/pkg/platform/sentinel"
)

// Policy controls how a store call is retried.
type Policy struct {
	// Delay before the single retry.
	Delay time.Duration
	// Transient reports whether an error is worth retrying. Defaults to sentinel.IsUnavailable.
	Transient func(error) bool
}

// DefaultPolicy retries once after 25ms on ErrUnavailable.
var DefaultPolicy = Policy{Delay: 25 * time.Millisecond}

// Once runs op, retrying at most one time when it fails transiently and ctx is still live.
func Once[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	transient := p.Transient
	if transient == nil {
		transient = sentinel.IsUnavailable
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), 1), ctx)
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b)
}
