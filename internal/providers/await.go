package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelsmith/internal/services"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 10 * time.Minute
)

// Policy bounds an Await call.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (p Policy) normalized() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// Await polls h until it succeeds, fails or the policy timeout elapses, then
// fetches the outputs. Handles that already carry outputs return them
// without polling. Poll errors are returned as-is; there is no retry.
func Await(ctx context.Context, client Client, h Handle, policy Policy, onProgress func(int)) ([]Output, error) {
	if len(h.Outputs) > 0 {
		return h.Outputs, nil
	}
	policy = policy.normalized()
	waitCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	timedOut := func() error {
		return services.Wrap(services.ErrTimeout, client.Name(), "await",
			fmt.Sprintf("request %s timed out after %s", h.ID, policy.Timeout), nil)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, timedOut()
		case <-timer.C:
		}

		status, err := client.Poll(waitCtx, h)
		if err != nil {
			if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, timedOut()
			}
			return nil, err
		}
		if status.Progress >= 0 && onProgress != nil {
			onProgress(status.Progress)
		}
		switch status.State {
		case StateSucceeded:
			outputs, err := client.Fetch(ctx, h)
			if err != nil {
				return nil, err
			}
			if len(outputs) == 0 {
				return nil, services.Wrap(services.ErrProviderRejected, client.Name(), "fetch", "succeeded without outputs", nil)
			}
			return outputs, nil
		case StateFailed:
			reason := status.Reason
			if reason == "" {
				reason = "request failed"
			}
			return nil, services.Wrap(services.ErrProviderRejected, client.Name(), "await", reason, nil)
		}
		timer.Reset(policy.Interval)
	}
}
