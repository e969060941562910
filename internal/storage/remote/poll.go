package remote

import (
	"context"
	"time"
)

// Outcome is the terminal result of waiting for a server-side copy.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "timed_out"
	}
}

// PollResult describes how a copy wait ended.
type PollResult struct {
	Outcome     Outcome
	Polls       int
	Description string // server status description on failure
}

// PollCopy polls the copy state of name in dir every interval until the
// server reports a terminal state or timeout elapses. A non-positive
// timeout waits until ctx is done. Errors from the share or ctx end the
// wait early and are returned as is.
func PollCopy(ctx context.Context, client ShareClient, dir, name string, interval, timeout time.Duration) (PollResult, error) {
	var res PollResult

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		props, err := client.FileProperties(ctx, dir, name)
		res.Polls++
		if err != nil {
			return res, err
		}

		switch props.CopyState {
		case CopyStateSuccess, CopyStateNone:
			res.Outcome = OutcomeSuccess
			return res, nil
		case CopyStateFailed:
			res.Outcome = OutcomeFailed
			res.Description = props.CopyStatusDescription
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline:
			res.Outcome = OutcomeTimedOut
			return res, nil
		case <-ticker.C:
		}
	}
}
