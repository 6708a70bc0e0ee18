package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// KMSAdapter manages AWS KMS envelope-encryption backends.
type KMSAdapter struct {
	base
}

// NewKMSAdapter creates the adapter.
func NewKMSAdapter(deps *Deps) *KMSAdapter {
	return &KMSAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeKMS)}}
}

func (a *KMSAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	kc, err := asKMS(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, kc, func() error { return validateKMSFields(kc) })
}

func (a *KMSAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	kc, err := asKMS(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, kc, func() error { return validateKMSFields(kc) })
}

func (a *KMSAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	kc, err := asKMS(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, kc, maskSecrets)
}

func (a *KMSAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	kc, err := asKMS(cfg)
	if err != nil {
		return err
	}
	if err := validateKMSFields(kc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, kc)
}

func (a *KMSAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateKMSFields(kc *secretmanager.KMSConfig) error {
	if err := validation.ManagerName(kc.GetName()); err != nil {
		return err
	}
	if err := validation.AWSRegion(kc.Region); err != nil {
		return err
	}
	if kc.KmsArn == "" {
		return smerrors.ValidationError{Field: "kmsArn", Message: "the KMS key ARN is required"}
	}
	if err := validation.TemplatizedFields(kc); err != nil {
		return err
	}
	return nil
}

func asKMS(cfg secretmanager.Config) (*secretmanager.KMSConfig, error) {
	kc, ok := cfg.(*secretmanager.KMSConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a KMS secret manager"}
	}
	return kc, nil
}
