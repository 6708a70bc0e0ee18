package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// AWSSecretsManagerAdapter manages AWS Secrets Manager backends.
type AWSSecretsManagerAdapter struct {
	base
}

// NewAWSSecretsManagerAdapter creates the adapter.
func NewAWSSecretsManagerAdapter(deps *Deps) *AWSSecretsManagerAdapter {
	return &AWSSecretsManagerAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeAWSSecretsManager)}}
}

func (a *AWSSecretsManagerAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	sc, err := asAWSSecretsManager(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, sc, func() error { return validateAWSSMFields(sc) })
}

func (a *AWSSecretsManagerAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	sc, err := asAWSSecretsManager(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, sc, func() error { return validateAWSSMFields(sc) })
}

func (a *AWSSecretsManagerAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	sc, err := asAWSSecretsManager(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, sc, maskSecrets)
}

func (a *AWSSecretsManagerAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	sc, err := asAWSSecretsManager(cfg)
	if err != nil {
		return err
	}
	if err := validateAWSSMFields(sc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, sc)
}

func (a *AWSSecretsManagerAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateAWSSMFields(sc *secretmanager.AWSSecretsManagerConfig) error {
	if err := validation.ManagerName(sc.GetName()); err != nil {
		return err
	}
	if err := validation.AWSRegion(sc.Region); err != nil {
		return err
	}
	if sc.AssumeIAMRole {
		if err := validation.Required("roleArn", sc.RoleARN); err != nil {
			return err
		}
	} else {
		if err := validation.Required("accessKey", sc.AccessKey); err != nil {
			return err
		}
		if err := validation.Required("secretKey", sc.SecretKey); err != nil {
			return err
		}
	}
	return validation.TemplatizedFields(sc)
}

func asAWSSecretsManager(cfg secretmanager.Config) (*secretmanager.AWSSecretsManagerConfig, error) {
	sc, ok := cfg.(*secretmanager.AWSSecretsManagerConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not an AWS_SECRETS_MANAGER secret manager"}
	}
	return sc, nil
}
