package dataerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindNetwork, classified.Kind)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return &ResponseError{
			Message:    "duplicate key value violates unique constraint",
			Extensions: map[string]interface{}{"code": sqlstateUniqueViolation},
		}
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindUniqueViolation, classified.Kind)
}

func TestWithRetrySucceedsMidway(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("request timed out")
		}
		return nil
	}, 3, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, func(context.Context) error {
		calls++
		return errors.New("connection reset")
	}, 3, time.Hour)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
