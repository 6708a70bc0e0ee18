package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// AzureVaultAdapter manages Azure Key Vault backends.
type AzureVaultAdapter struct {
	base
}

// NewAzureVaultAdapter creates the adapter.
func NewAzureVaultAdapter(deps *Deps) *AzureVaultAdapter {
	return &AzureVaultAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeAzureVault)}}
}

func (a *AzureVaultAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	ac, err := asAzureVault(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, ac, func() error { return validateAzureVaultFields(ac) })
}

func (a *AzureVaultAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	ac, err := asAzureVault(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, ac, func() error { return validateAzureVaultFields(ac) })
}

func (a *AzureVaultAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	ac, err := asAzureVault(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, ac, maskSecrets)
}

func (a *AzureVaultAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	ac, err := asAzureVault(cfg)
	if err != nil {
		return err
	}
	if err := validateAzureVaultFields(ac); err != nil {
		return err
	}
	return a.remoteValidate(ctx, ac)
}

func (a *AzureVaultAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateAzureVaultFields(ac *secretmanager.AzureVaultConfig) error {
	if err := validation.ManagerName(ac.GetName()); err != nil {
		return err
	}
	if err := validation.Required("clientId", ac.ClientID); err != nil {
		return err
	}
	if err := validation.Required("tenantId", ac.TenantID); err != nil {
		return err
	}
	if err := validation.Required("secretKey", ac.SecretKey); err != nil {
		return err
	}
	if err := validation.Required("subscriptionId", ac.SubscriptionID); err != nil {
		return err
	}
	if err := validation.Required("vaultName", ac.VaultName); err != nil {
		return err
	}
	return validation.TemplatizedFields(ac)
}

func asAzureVault(cfg secretmanager.Config) (*secretmanager.AzureVaultConfig, error) {
	ac, ok := cfg.(*secretmanager.AzureVaultConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not an AZURE_VAULT secret manager"}
	}
	return ac, nil
}
