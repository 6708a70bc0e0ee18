// Package delegate dispatches backend operations to a remote execution
// agent with a bounded timeout and a fixed retry policy. The retry
// count (3 attempts) and the 1-second fixed delay between attempts are
// behavioral contracts, not tunables.
package delegate

import (
	"context"
	"time"

	"github.com/google/uuid"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Operation names a remote backend operation.
type Operation string

const (
	OpAppRoleLogin      Operation = "appRoleLogin"
	OpRenewToken        Operation = "renewToken"
	OpListSecretEngines Operation = "listSecretEngines"
	OpValidateConfig    Operation = "validateConfig"
	OpCreateSecret      Operation = "createSecret"
	OpFetchSecret       Operation = "fetchSecret"
	OpDeleteSecret      Operation = "deleteSecret"
	OpSignPublicKey     Operation = "signPublicKey"
	OpGetChangeLogs     Operation = "getChangeLogs"
)

// Operation timeouts used by the adapters.
const (
	AppRoleLoginTimeout = 5 * time.Second
	ValidationTimeout   = 10 * time.Second
	DefaultSyncTimeout  = 60 * time.Second
)

const (
	retryAttempts = 3
	retryDelay    = time.Second
)

// Request describes one remote operation. Config carries the manager
// configuration with credential fields already decrypted to plaintext;
// it never leaves the process except through the dispatcher.
type Request struct {
	Operation     Operation
	AccountID     string
	Config        secretmanager.Config
	Payload       map[string]interface{}
	Timeout       time.Duration
	CorrelationID string
}

// Response carries operation results keyed by name (token,
// leaseDuration, engines, encryptedValue, ...).
type Response struct {
	Data map[string]interface{}
}

// String returns the string value under key, or "".
func (r *Response) String(key string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	s, _ := r.Data[key].(string)
	return s
}

// Dispatcher is the downstream transport that runs an operation on a
// selected agent. Agent selection is the dispatcher's concern.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

// Executor wraps a Dispatcher with the core's retry policy.
type Executor struct {
	dispatcher Dispatcher
	logger     *logging.Logger
	sleep      func(time.Duration)
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the inter-attempt sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// NewExecutor creates an executor over the given dispatcher.
func NewExecutor(d Dispatcher, logger *logging.Logger, opts ...Option) *Executor {
	e := &Executor{
		dispatcher: d,
		logger:     logger,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the operation, retrying up to 3 attempts with a fixed
// 1-second delay between them. After the third failure the last error
// is surfaced wrapped in a DelegateOperationError. Each attempt is
// bounded by the request timeout.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout <= 0 {
		req.Timeout = DefaultSyncTimeout
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		resp, err := e.dispatcher.Dispatch(attemptCtx, req)
		cancel()

		if err == nil {
			recordOperation(req.Operation, "success")
			return resp, nil
		}
		lastErr = err
		e.logger.Warn("delegate operation %s failed (attempt %d/%d): %v",
			req.Operation, attempt, retryAttempts, err)
		if attempt < retryAttempts {
			recordRetry(req.Operation)
			e.sleep(retryDelay)
		}
	}

	recordOperation(req.Operation, "failure")
	return nil, smerrors.DelegateOperationError{
		Operation: string(req.Operation),
		Attempts:  retryAttempts,
		Err:       lastErr,
	}
}
