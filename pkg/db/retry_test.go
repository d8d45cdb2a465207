package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryReadRetriesTransientErrors(t *testing.T) {
	calls := 0
	out, err := RetryRead(context.Background(), ReadRetry{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("database is locked")
		}
		return 7, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 3, calls)
}

func TestRetryReadStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryRead(context.Background(), ReadRetry{Attempts: 5, BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("syntax error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryReadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryRead(ctx, ReadRetry{Attempts: 3, BaseDelay: time.Second}, func(context.Context) (int, error) {
		return 0, errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
