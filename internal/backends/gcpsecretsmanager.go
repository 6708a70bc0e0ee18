package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// GCPSecretsManagerAdapter manages Google Cloud Secret Manager backends.
type GCPSecretsManagerAdapter struct {
	base
}

// NewGCPSecretsManagerAdapter creates the adapter.
func NewGCPSecretsManagerAdapter(deps *Deps) *GCPSecretsManagerAdapter {
	return &GCPSecretsManagerAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeGCPSecretsManager)}}
}

func (a *GCPSecretsManagerAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	gc, err := asGCPSecretsManager(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, gc, func() error { return validateGCPSMFields(gc) })
}

func (a *GCPSecretsManagerAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	gc, err := asGCPSecretsManager(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, gc, func() error { return validateGCPSMFields(gc) })
}

func (a *GCPSecretsManagerAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	gc, err := asGCPSecretsManager(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, gc, maskSecrets)
}

func (a *GCPSecretsManagerAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	gc, err := asGCPSecretsManager(cfg)
	if err != nil {
		return err
	}
	if err := validateGCPSMFields(gc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, gc)
}

func (a *GCPSecretsManagerAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateGCPSMFields(gc *secretmanager.GCPSecretsManagerConfig) error {
	if err := validation.ManagerName(gc.GetName()); err != nil {
		return err
	}
	if err := validation.GCPCredentials(gc.Credentials); err != nil {
		return err
	}
	return validation.TemplatizedFields(gc)
}

func asGCPSecretsManager(cfg secretmanager.Config) (*secretmanager.GCPSecretsManagerConfig, error) {
	gc, ok := cfg.(*secretmanager.GCPSecretsManagerConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a GCP_SECRETS_MANAGER secret manager"}
	}
	return gc, nil
}
