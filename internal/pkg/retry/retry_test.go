package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func Test_Do_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	}, isConflict)

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func Test_Do_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	}, isConflict,
		WithBaseDelay(time.Millisecond),
		WithOnRetry(func(attempt int, err error) {
			assert.ErrorIs(t, err, errConflict)
			retried = append(retried, attempt)
		}),
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func Test_Do_FailsFastOnPermanentError(t *testing.T) {
	permanent := errors.New("boom")
	calls := 0

	err := Do(context.Background(), func(_ context.Context) error {
		calls++
		return permanent
	}, isConflict)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func Test_Do_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0

	err := Do(context.Background(), func(_ context.Context) error {
		calls++
		return errConflict
	}, isConflict, WithMaxAttempts(4), WithBaseDelay(0))

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 4, calls)
}

func Test_Do_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, func(_ context.Context) error {
		calls++
		cancel()
		return errConflict
	}, isConflict, WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func Test_Do_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	assert.ErrorIs(t, Do(context.Background(), fn, isConflict, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, Do(context.Background(), fn, isConflict, WithBaseDelay(-1)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, Do(context.Background(), fn, isConflict, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
}
