package delegate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
)

func testExecutor(d Dispatcher, sleeps *[]time.Duration) *Executor {
	return NewExecutor(d, logging.New(false, true), WithSleep(func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}))
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	fake := NewFakeDispatcher()
	fake.Handle(OpValidateConfig, func(req Request) (*Response, error) {
		return &Response{Data: map[string]interface{}{"ok": "yes"}}, nil
	})
	var sleeps []time.Duration
	e := testExecutor(fake, &sleeps)

	resp, err := e.Execute(context.Background(), Request{Operation: OpValidateConfig})
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.String("ok"))
	assert.Equal(t, 1, fake.CallCount(OpValidateConfig))
	assert.Empty(t, sleeps, "no retry delay on success")
}

func TestExecuteRetriesExactlyThreeTimes(t *testing.T) {
	fake := NewFakeDispatcher()
	fake.Err = errors.New("connection refused")
	var sleeps []time.Duration
	e := testExecutor(fake, &sleeps)

	_, err := e.Execute(context.Background(), Request{Operation: OpFetchSecret})
	require.Error(t, err)

	var opErr smerrors.DelegateOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, string(OpFetchSecret), opErr.Operation)
	assert.Equal(t, 3, opErr.Attempts)

	assert.Equal(t, 3, fake.CallCount(OpFetchSecret), "exactly 3 attempts, never a 4th")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps, "fixed 1s delay between attempts only")
}

func TestExecuteRecoversOnSecondAttempt(t *testing.T) {
	fake := NewFakeDispatcher()
	calls := 0
	fake.Handle(OpAppRoleLogin, func(req Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("temporarily sealed")
		}
		return &Response{Data: map[string]interface{}{"token": "t0k"}}, nil
	})
	var sleeps []time.Duration
	e := testExecutor(fake, &sleeps)

	resp, err := e.Execute(context.Background(), Request{Operation: OpAppRoleLogin, Timeout: AppRoleLoginTimeout})
	require.NoError(t, err)
	assert.Equal(t, "t0k", resp.String("token"))
	assert.Equal(t, 2, calls)
	assert.Len(t, sleeps, 1)
}

func TestExecuteDefaultsTimeoutAndCorrelationID(t *testing.T) {
	fake := NewFakeDispatcher()
	var seen Request
	fake.Handle(OpCreateSecret, func(req Request) (*Response, error) {
		seen = req
		return &Response{}, nil
	})
	var sleeps []time.Duration
	e := testExecutor(fake, &sleeps)

	_, err := e.Execute(context.Background(), Request{Operation: OpCreateSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncTimeout, seen.Timeout)
	assert.NotEmpty(t, seen.CorrelationID)
}
