package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyContinuesPastFailures(t *testing.T) {
	var deleted []string
	actions := make([]Action, 0, 5)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("acme-dwh.marts.orphan_%d", i)
		fail := i == 2
		actions = append(actions, Action{
			Label: name,
			Run: func(ctx context.Context) error {
				if fail {
					return errors.New("permission denied")
				}
				deleted = append(deleted, name)
				return nil
			},
		})
	}

	summary := Apply(context.Background(), actions)

	// One failed delete among five still allows the other four to complete.
	assert.Len(t, deleted, 4)
	assert.Equal(t, 4, summary.Succeeded())
	require.Len(t, summary.Failed(), 1)
	assert.Equal(t, "acme-dwh.marts.orphan_2", summary.Failed()[0].Label)
	assert.EqualError(t, summary.Err(), "1 of 5 actions failed")
}

func TestApplyAllSucceed(t *testing.T) {
	ran := 0
	actions := []Action{
		{Label: "a", Run: func(ctx context.Context) error { ran++; return nil }},
		{Label: "b", Run: func(ctx context.Context) error { ran++; return nil }},
	}

	summary := Apply(context.Background(), actions)
	assert.Equal(t, 2, ran)
	assert.NoError(t, summary.Err())
	assert.Empty(t, summary.Failed())
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	summary := Apply(context.Background(), nil)
	assert.NoError(t, summary.Err())
	assert.Empty(t, summary.Results)
}

func TestApplyStopsRunningOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := 0
	actions := []Action{
		{Label: "first", Run: func(ctx context.Context) error { ran++; cancel(); return nil }},
		{Label: "second", Run: func(ctx context.Context) error { ran++; return nil }},
	}

	summary := Apply(ctx, actions)
	assert.Equal(t, 1, ran)
	require.Len(t, summary.Results, 2)
	assert.NoError(t, summary.Results[0].Err)
	assert.ErrorIs(t, summary.Results[1].Err, context.Canceled)
}
