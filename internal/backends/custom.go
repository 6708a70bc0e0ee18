package backends

import (
	"context"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// CustomAdapter manages shell-template-driven custom backends. The
// template runs on the delegate; parameters flagged secret are stored
// as encrypted records like any other credential.
type CustomAdapter struct {
	base
}

// NewCustomAdapter creates the adapter.
func NewCustomAdapter(deps *Deps) *CustomAdapter {
	return &CustomAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeCustom)}}
}

func (a *CustomAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	cc, err := asCustom(cfg)
	if err != nil {
		return "", err
	}
	return a.saveFlow(ctx, cc, func() error { return validateCustomFields(cc) })
}

func (a *CustomAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	cc, err := asCustom(cfg)
	if err != nil {
		return "", err
	}
	return a.updateFlow(ctx, cc, func() error { return validateCustomFields(cc) })
}

func (a *CustomAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	cc, err := asCustom(cfg)
	if err != nil {
		return err
	}
	return a.decryptCredentials(ctx, cc, maskSecrets)
}

func (a *CustomAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	cc, err := asCustom(cfg)
	if err != nil {
		return err
	}
	if err := validateCustomFields(cc); err != nil {
		return err
	}
	return a.remoteValidate(ctx, cc)
}

func (a *CustomAdapter) Delete(ctx context.Context, accountID, configID string) error {
	return a.deleteConfig(ctx, accountID, configID)
}

func validateCustomFields(cc *secretmanager.CustomConfig) error {
	if err := validation.ManagerName(cc.GetName()); err != nil {
		return err
	}
	if err := validation.Required("templateId", cc.TemplateID); err != nil {
		return err
	}
	if cc.IsDefault() {
		return smerrors.ValidationError{
			Field:   "isDefault",
			Message: "a custom manager cannot be the default secret manager",
		}
	}
	seen := make(map[string]struct{}, len(cc.Params))
	for _, p := range cc.Params {
		if p.Name == "" {
			return smerrors.ValidationError{Field: "params", Message: "parameter names cannot be empty"}
		}
		if _, dup := seen[p.Name]; dup {
			return smerrors.ValidationError{Field: "params", Message: "duplicate parameter name " + p.Name}
		}
		seen[p.Name] = struct{}{}
	}
	return validation.TemplatizedFields(cc)
}

func asCustom(cfg secretmanager.Config) (*secretmanager.CustomConfig, error) {
	cc, ok := cfg.(*secretmanager.CustomConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a CUSTOM secret manager"}
	}
	return cc, nil
}
