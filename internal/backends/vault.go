package backends

import (
	"context"

	"github.com/systmms/secretmgr/internal/alerts"
	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// VaultAdapter manages HashiCorp Vault KV backends, authenticated by a
// static token or by AppRole login through the delegate.
type VaultAdapter struct {
	base
}

// NewVaultAdapter creates the adapter.
func NewVaultAdapter(deps *Deps) *VaultAdapter {
	return &VaultAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeVault)}}
}

// SecretEngine describes one mounted secret engine, as reported by the
// delegate's listSecretEngines operation.
type SecretEngine struct {
	Name    string
	Type    string
	Version int
}

func (a *VaultAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	vc, err := asVault(cfg)
	if err != nil {
		return "", err
	}
	if err := a.checkCreate(ctx, vc); err != nil {
		return "", err
	}
	if err := validateVaultFields(vc); err != nil {
		return "", err
	}
	if vc.UsesAppRole() {
		token, err := a.appRoleLogin(ctx, vc)
		if err != nil {
			return "", err
		}
		vc.AuthToken = token
	}
	if err := a.remoteValidate(ctx, vc); err != nil {
		return "", err
	}
	ensureID(vc)
	if _, err := a.resolveCredentials(ctx, vc, nil); err != nil {
		return "", err
	}
	id, err := a.persist(ctx, vc)
	if err != nil {
		return "", err
	}
	if err := a.Audit.ReportForAuditing(ctx, vc.GetAccountID(), nil, vc, audit.ChangeTypeCreate); err != nil {
		a.Logger.Warn("audit report failed for manager %s: %v", vc.GetName(), err)
	}
	return id, nil
}

func (a *VaultAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	vc, err := asVault(cfg)
	if err != nil {
		return "", err
	}
	prevCfg, err := a.loadConfig(ctx, vc.GetID())
	if err != nil {
		return "", err
	}
	prev, err := asVault(prevCfg)
	if err != nil {
		return "", err
	}
	snapshot := prev.Clone()
	if err := a.checkUpdate(ctx, vc, prev); err != nil {
		return "", err
	}
	if err := validateVaultFields(vc); err != nil {
		return "", err
	}

	credChanged, err := a.anyCredentialChanged(ctx, vc, prev)
	if err != nil {
		return "", err
	}
	if vc.AppRoleID != prev.AppRoleID {
		credChanged = true
	}
	if credChanged {
		// Re-login and re-validate only when the credential actually
		// changed; metadata-only updates skip the remote round trips.
		// Both run on a resolved working copy so the backend sees the
		// effective credentials, never the mask sentinel.
		eff, err := a.effectiveConfig(ctx, vc, prev)
		if err != nil {
			return "", err
		}
		effVault, err := asVault(eff)
		if err != nil {
			return "", err
		}
		if effVault.UsesAppRole() {
			token, err := a.appRoleLogin(ctx, effVault)
			if err != nil {
				return "", err
			}
			effVault.AuthToken = token
			vc.AuthToken = token
		}
		if err := a.remoteValidate(ctx, effVault); err != nil {
			return "", err
		}
	}

	if _, err := a.resolveCredentials(ctx, vc, prev); err != nil {
		return "", err
	}
	id, err := a.persist(ctx, vc)
	if err != nil {
		return "", err
	}
	if err := a.Audit.ReportForAuditing(ctx, vc.GetAccountID(), snapshot, vc, audit.ChangeTypeUpdate); err != nil {
		a.Logger.Warn("audit report failed for manager %s: %v", vc.GetName(), err)
	}
	return id, nil
}

func (a *VaultAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	vc, err := asVault(cfg)
	if err != nil {
		return err
	}
	if err := a.decryptCredentials(ctx, vc, maskSecrets); err != nil {
		return err
	}
	if !maskSecrets && vc.AuthToken == "" && vc.UsesAppRole() {
		// No static token stored: obtain a live one via AppRole.
		token, err := a.appRoleLogin(ctx, vc)
		if err != nil {
			return err
		}
		vc.AuthToken = token
	}
	return nil
}

func (a *VaultAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	vc, err := asVault(cfg)
	if err != nil {
		return err
	}
	if err := validateVaultFields(vc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, vc)
}

func (a *VaultAdapter) Delete(ctx context.Context, accountID, configID string) error {
	if err := a.deleteConfig(ctx, accountID, configID); err != nil {
		return err
	}
	return a.Alerts.CloseAlert(ctx, accountID, alerts.TypeVaultRenewalFailure, configID)
}

// ListSecretEngines reports the engines mounted on the target Vault.
// The config must carry plaintext credentials.
func (a *VaultAdapter) ListSecretEngines(ctx context.Context, vc *secretmanager.VaultConfig) ([]SecretEngine, error) {
	resp, err := a.Delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpListSecretEngines,
		AccountID: vc.GetAccountID(),
		Config:    vc,
		Timeout:   delegate.ValidationTimeout,
	})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.Data["engines"].([]map[string]interface{})
	engines := make([]SecretEngine, 0, len(raw))
	for _, e := range raw {
		engine := SecretEngine{}
		engine.Name, _ = e["name"].(string)
		engine.Type, _ = e["type"].(string)
		if v, ok := e["version"].(int); ok {
			engine.Version = v
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

// RenewToken renews the configured token's lease. On success any open
// renewal-failure alert is closed; on exhaustion the delegate error is
// surfaced for the caller's alerting.
func (a *VaultAdapter) RenewToken(ctx context.Context, vc *secretmanager.VaultConfig) error {
	_, err := a.Delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpRenewToken,
		AccountID: vc.GetAccountID(),
		Config:    vc,
		Timeout:   delegate.ValidationTimeout,
	})
	if err != nil {
		return err
	}
	return a.Alerts.CloseAlert(ctx, vc.GetAccountID(), alerts.TypeVaultRenewalFailure, vc.GetID())
}

// appRoleLogin obtains a client token through the delegate. The
// executor's retry policy gives the contractual 3 attempts with 1s
// between them.
func (a *VaultAdapter) appRoleLogin(ctx context.Context, vc *secretmanager.VaultConfig) (string, error) {
	resp, err := a.Delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpAppRoleLogin,
		AccountID: vc.GetAccountID(),
		Config:    vc,
		Timeout:   delegate.AppRoleLoginTimeout,
	})
	if err != nil {
		return "", err
	}
	token := resp.String("token")
	if token == "" {
		return "", smerrors.SecretManagementError{
			Message:    "AppRole login returned no client token",
			Suggestion: "check the AppRole role id and secret id",
		}
	}
	return token, nil
}

func validateVaultFields(vc *secretmanager.VaultConfig) error {
	if err := validation.ManagerName(vc.GetName()); err != nil {
		return err
	}
	if err := validation.Required("url", vc.URL); err != nil {
		return err
	}
	if err := validation.Required("secretEngineName", vc.SecretEngineName); err != nil {
		return err
	}
	if vc.SecretEngineVersion < 1 || vc.SecretEngineVersion > 2 {
		return smerrors.ValidationError{
			Field:      "secretEngineVersion",
			Message:    "secret engine version must be 1 or 2",
			Suggestion: "use 2 for versioned KV engines",
		}
	}
	if vc.RenewalInterval < 0 {
		return smerrors.ValidationError{Field: "renewalIntervalMinutes", Message: "renewal interval cannot be negative"}
	}
	if !vc.UsesAppRole() && vc.AuthToken == "" && !vc.UseVaultAgent {
		return smerrors.ValidationError{
			Field:      "authToken",
			Message:    "either an auth token or an AppRole id is required",
			Suggestion: "provide authToken, or appRoleId with secretId",
		}
	}
	if vc.ReadOnly && vc.IsDefault() {
		return smerrors.ValidationError{
			Field:   "isDefault",
			Message: "a read-only vault cannot be the default secret manager",
		}
	}
	if err := validation.TemplatizedFields(vc); err != nil {
		return err
	}
	return nil
}

func asVault(cfg secretmanager.Config) (*secretmanager.VaultConfig, error) {
	vc, ok := cfg.(*secretmanager.VaultConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a VAULT secret manager"}
	}
	return vc, nil
}
