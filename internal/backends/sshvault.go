package backends

import (
	"context"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// SSHVaultAdapter manages Vault SSH secret engine backends used for
// signing SSH public keys.
type SSHVaultAdapter struct {
	base
}

// NewSSHVaultAdapter creates the adapter.
func NewSSHVaultAdapter(deps *Deps) *SSHVaultAdapter {
	return &SSHVaultAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeSSHVault)}}
}

func (a *SSHVaultAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	sc, err := asSSHVault(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, sc, func() error { return validateSSHVaultFields(sc) })
}

func (a *SSHVaultAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	sc, err := asSSHVault(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, sc, func() error { return validateSSHVaultFields(sc) })
}

func (a *SSHVaultAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	sc, err := asSSHVault(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, sc, maskSecrets)
}

func (a *SSHVaultAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	sc, err := asSSHVault(cfg)
	if err != nil {
		return err
	}
	if err := validateSSHVaultFields(sc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, sc)
}

func (a *SSHVaultAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

// SignPublicKey asks the SSH engine to sign the given public key for
// the configured role, returning the signed certificate.
func (a *SSHVaultAdapter) SignPublicKey(ctx context.Context, sc *secretmanager.SSHVaultConfig, publicKey string) (string, error) {
	resp, err := a.Delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpSignPublicKey,
		AccountID: sc.GetAccountID(),
		Config:    sc,
		Payload:   map[string]interface{}{"publicKey": publicKey},
		Timeout:   delegate.DefaultSyncTimeout,
	})
	if err != nil {
		return "", err
	}
	signed := resp.String("signedKey")
	if signed == "" {
		return "", smerrors.SecretManagementError{
			Message:    "SSH engine returned no signed key",
			Suggestion: "check the SSH role and the engine mount path",
		}
	}
	return signed, nil
}

func validateSSHVaultFields(sc *secretmanager.SSHVaultConfig) error {
	if err := validation.ManagerName(sc.GetName()); err != nil {
		return err
	}
	if err := validation.Required("url", sc.URL); err != nil {
		return err
	}
	if err := validation.Required("sshRole", sc.SSHRole); err != nil {
		return err
	}
	if !sc.UsesAppRole() && sc.AuthToken == "" {
		return smerrors.ValidationError{
			Field:      "authToken",
			Message:    "either an auth token or an AppRole id is required",
			Suggestion: "provide authToken, or appRoleId with secretId",
		}
	}
	return validation.TemplatizedFields(sc)
}

func asSSHVault(cfg secretmanager.Config) (*secretmanager.SSHVaultConfig, error) {
	sc, ok := cfg.(*secretmanager.SSHVaultConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not an SSH_VAULT secret manager"}
	}
	return sc, nil
}
