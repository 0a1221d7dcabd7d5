// Package executor applies a batch of confirmed actions against external
// services. One item's failure never blocks the remaining items; failures are
// collected and reported in a summary at the end.
package executor

import (
	"context"
	"fmt"
)

// Action is a single confirmed operation on a named item
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// Result records the outcome of one action
type Result struct {
	Label string
	Err   error
}

// Summary aggregates the outcomes of a batch
type Summary struct {
	Results []Result
}

// Succeeded returns the count of successful actions
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the failed results in execution order
func (s Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err returns nil when every action succeeded, otherwise an error naming the
// failure count.
func (s Summary) Err() error {
	failed := len(s.Failed())
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d actions failed", failed, len(s.Results))
}

// Apply runs every action in order. Failures are recorded, never fatal to the
// batch; only context cancellation stops execution early.
func Apply(ctx context.Context, actions []Action) Summary {
	summary := Summary{Results: make([]Result, 0, len(actions))}
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			summary.Results = append(summary.Results, Result{Label: action.Label, Err: err})
			continue
		}
		summary.Results = append(summary.Results, Result{
			Label: action.Label,
			Err:   action.Run(ctx),
		})
	}
	return summary
}
