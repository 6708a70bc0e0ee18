package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// GCPKMSAdapter manages Google Cloud KMS backends.
type GCPKMSAdapter struct {
	base
}

// NewGCPKMSAdapter creates the adapter.
func NewGCPKMSAdapter(deps *Deps) *GCPKMSAdapter {
	return &GCPKMSAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeGCPKMS)}}
}

func (a *GCPKMSAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	gc, err := asGCPKMS(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, gc, func() error { return validateGCPKMSFields(gc) })
}

func (a *GCPKMSAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	gc, err := asGCPKMS(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, gc, func() error { return validateGCPKMSFields(gc) })
}

func (a *GCPKMSAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	gc, err := asGCPKMS(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, gc, maskSecrets)
}

func (a *GCPKMSAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	gc, err := asGCPKMS(cfg)
	if err != nil {
		return err
	}
	if err := validateGCPKMSFields(gc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, gc)
}

func (a *GCPKMSAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateGCPKMSFields(gc *secretmanager.GCPKMSConfig) error {
	if err := validation.ManagerName(gc.GetName()); err != nil {
		return err
	}
	if err := validation.GCPResource("projectId", gc.ProjectID); err != nil {
		return err
	}
	if err := validation.GCPResource("region", gc.Region); err != nil {
		return err
	}
	if err := validation.GCPResource("keyRing", gc.KeyRing); err != nil {
		return err
	}
	if err := validation.GCPResource("keyName", gc.KeyName); err != nil {
		return err
	}
	if err := validation.GCPCredentials(gc.Credentials); err != nil {
		return err
	}
	return validation.TemplatizedFields(gc)
}

func asGCPKMS(cfg secretmanager.Config) (*secretmanager.GCPKMSConfig, error) {
	gc, ok := cfg.(*secretmanager.GCPKMSConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a GCP_KMS secret manager"}
	}
	return gc, nil
}
