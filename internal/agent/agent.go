// Package agent is an in-process delegate dispatcher: it runs backend
// operations directly against the vendor SDKs instead of shipping them
// to a remote execution agent. The CLI and tests run on it; a deployed
// service substitutes its own transport behind the same interface.
package agent

import (
	"context"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Agent routes each operation to the handler for the config's type.
type Agent struct {
	logger *logging.Logger
}

// New creates an in-process agent.
func New(logger *logging.Logger) *Agent {
	return &Agent{logger: logger}
}

// Dispatch implements delegate.Dispatcher.
func (a *Agent) Dispatch(ctx context.Context, req delegate.Request) (*delegate.Response, error) {
	switch cfg := req.Config.(type) {
	case *secretmanager.VaultConfig:
		return a.vaultOp(ctx, req, cfg)
	case *secretmanager.SSHVaultConfig:
		return a.sshVaultOp(ctx, req, cfg)
	case *secretmanager.KMSConfig:
		return a.kmsOp(ctx, req, cfg)
	case *secretmanager.AWSSecretsManagerConfig:
		return a.awsSecretsManagerOp(ctx, req, cfg)
	case *secretmanager.GCPKMSConfig:
		return a.gcpKMSOp(ctx, req, cfg)
	case *secretmanager.GCPSecretsManagerConfig:
		return a.gcpSecretsManagerOp(ctx, req, cfg)
	case *secretmanager.AzureVaultConfig:
		return a.azureOp(ctx, req, cfg)
	case *secretmanager.CyberArkConfig:
		return a.cyberArkOp(ctx, req, cfg)
	case *secretmanager.CustomConfig:
		return nil, smerrors.SecretManagementError{
			Message:    "custom secret manager templates require a remote execution agent",
			Suggestion: "configure a delegate dispatcher that can run shell templates",
		}
	default:
		return nil, smerrors.ProgrammingError{Message: "no agent handler for operation " + string(req.Operation)}
	}
}

func unsupported(op delegate.Operation, backend string) error {
	return smerrors.SecretManagementError{
		Message: string(op) + " is not supported on " + backend + " managers",
	}
}

func payloadString(req delegate.Request, key string) string {
	s, _ := req.Payload[key].(string)
	return s
}

func respond(kv map[string]interface{}) *delegate.Response {
	return &delegate.Response{Data: kv}
}
