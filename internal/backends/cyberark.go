package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// CyberArkAdapter manages CyberArk central credential provider
// backends. CyberArk is read-only from this service's point of view:
// secrets are fetched by query, never written, so the adapter never
// participates in secret transitions.
type CyberArkAdapter struct {
	base
}

// NewCyberArkAdapter creates the adapter.
func NewCyberArkAdapter(deps *Deps) *CyberArkAdapter {
	return &CyberArkAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeCyberArk)}}
}

func (a *CyberArkAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	cc, err := asCyberArk(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, cc, func() error { return validateCyberArkFields(cc) })
}

func (a *CyberArkAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	cc, err := asCyberArk(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, cc, func() error { return validateCyberArkFields(cc) })
}

func (a *CyberArkAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	cc, err := asCyberArk(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, cc, maskSecrets)
}

func (a *CyberArkAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	cc, err := asCyberArk(cfg)
	if err != nil {
		return err
	}
	if err := validateCyberArkFields(cc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, cc)
}

func (a *CyberArkAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateCyberArkFields(cc *secretmanager.CyberArkConfig) error {
	if err := validation.ManagerName(cc.GetName()); err != nil {
		return err
	}
	if err := validation.Required("appId", cc.AppID); err != nil {
		return err
	}
	if err := validation.Required("url", cc.URL); err != nil {
		return err
	}
	if cc.IsDefault() {
		// A read-only store cannot receive newly created secrets.
		return smerrors.ValidationError{
			Field:   "isDefault",
			Message: "a CyberArk manager cannot be the default secret manager",
		}
	}
	return validation.TemplatizedFields(cc)
}

func asCyberArk(cfg secretmanager.Config) (*secretmanager.CyberArkConfig, error) {
	cc, ok := cfg.(*secretmanager.CyberArkConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a CYBERARK secret manager"}
	}
	return cc, nil
}
