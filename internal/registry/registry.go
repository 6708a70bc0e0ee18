// Package registry resolves secret manager configs: per-type adapter
// dispatch, default-manager resolution with the global fallback chain,
// and account listings with secret-count annotation.
package registry

import (
	"context"
	"errors"

	"github.com/systmms/secretmgr/internal/accounts"
	"github.com/systmms/secretmgr/internal/backends"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/internal/recordstore"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Registry dispatches config operations to the adapter for the
// config's encryption type and answers default-manager queries.
type Registry struct {
	adapters map[secretmanager.EncryptionType]backends.Adapter
	docs     docstore.Store
	records  *recordstore.Store
	accounts accounts.Service
	logger   *logging.Logger
}

// New builds a registry with one adapter per supported encryption type.
func New(deps *backends.Deps) *Registry {
	return &Registry{
		adapters: map[secretmanager.EncryptionType]backends.Adapter{
			secretmanager.TypeLocal:             backends.NewLocalAdapter(deps),
			secretmanager.TypeVault:             backends.NewVaultAdapter(deps),
			secretmanager.TypeSSHVault:          backends.NewSSHVaultAdapter(deps),
			secretmanager.TypeKMS:               backends.NewKMSAdapter(deps),
			secretmanager.TypeGCPKMS:            backends.NewGCPKMSAdapter(deps),
			secretmanager.TypeGCPSecretsManager: backends.NewGCPSecretsManagerAdapter(deps),
			secretmanager.TypeAWSSecretsManager: backends.NewAWSSecretsManagerAdapter(deps),
			secretmanager.TypeAzureVault:        backends.NewAzureVaultAdapter(deps),
			secretmanager.TypeCyberArk:          backends.NewCyberArkAdapter(deps),
			secretmanager.TypeCustom:            backends.NewCustomAdapter(deps),
		},
		docs:     deps.Docs,
		records:  deps.Records,
		accounts: deps.Accounts,
		logger:   deps.Logger,
	}
}

// AdapterFor returns the adapter for the given encryption type.
func (r *Registry) AdapterFor(t secretmanager.EncryptionType) (backends.Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "no adapter registered for encryption type " + string(t)}
	}
	return a, nil
}

// Save dispatches creation to the config's adapter.
func (r *Registry) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return "", err
	}
	return a.Save(ctx, cfg)
}

// Update dispatches modification to the config's adapter.
func (r *Registry) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return "", err
	}
	return a.Update(ctx, cfg)
}

// Delete loads the config to learn its type, then dispatches the
// guarded delete to the matching adapter.
func (r *Registry) Delete(ctx context.Context, accountID, configID string) error {
	cfg, err := r.load(ctx, configID)
	if err != nil {
		return err
	}
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return err
	}
	return a.Delete(ctx, accountID, configID)
}

// DecryptConfig resolves the config's credential references to
// plaintext in place, or masks them when maskSecrets is set.
func (r *Registry) DecryptConfig(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return err
	}
	return a.DecryptConfigSecrets(ctx, cfg, maskSecrets)
}

// ValidateConfig dispatches the connectivity check.
func (r *Registry) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return err
	}
	return a.ValidateConfig(ctx, cfg)
}

// GetByID returns the config with credentials decrypted, or masked when
// maskSecrets is set. The implicit local manager materializes on demand.
func (r *Registry) GetByID(ctx context.Context, accountID, configID string, maskSecrets bool) (secretmanager.Config, error) {
	if configID == accountID {
		return r.implicitLocal(ctx, accountID)
	}
	stored, err := r.load(ctx, configID)
	if err != nil {
		return nil, err
	}
	// Work on a copy: decrypting in place would leak plaintext into the
	// stored document.
	cfg := stored.Clone()
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return nil, err
	}
	if err := a.DecryptConfigSecrets(ctx, cfg, maskSecrets); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetByName returns the account's config with the given name.
func (r *Registry) GetByName(ctx context.Context, accountID, name string, maskSecrets bool) (secretmanager.Config, error) {
	doc, err := r.docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", accountID).
		Filter("name", name).
		Get(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := asConfig(doc)
	if err != nil {
		return nil, err
	}
	cfg := stored.Clone()
	a, err := r.AdapterFor(cfg.EncryptionType())
	if err != nil {
		return nil, err
	}
	if err := a.DecryptConfigSecrets(ctx, cfg, maskSecrets); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefault resolves the manager new secrets go to. An account with
// local encryption forced always gets the implicit local manager.
// Otherwise the account's own default wins; with none set, the global
// defaults apply, GCP KMS ahead of AWS KMS; with no global manager
// either, the implicit local manager is the final fallback.
func (r *Registry) GetDefault(ctx context.Context, accountID string) (secretmanager.Config, error) {
	acct, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.LocalEncryptionEnabled {
		return r.implicitLocal(ctx, accountID)
	}

	doc, err := r.docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", accountID).
		Filter("isDefault", true).
		Filter("ng", false).
		Get(ctx)
	if err == nil {
		cfg, err := asConfig(doc)
		if err != nil {
			return nil, err
		}
		return cfg.Clone(), nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	if cfg, err := r.globalDefault(ctx); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}
	return r.implicitLocal(ctx, accountID)
}

// GetEncryptionType reports the encryption type of the account's
// effective default manager.
func (r *Registry) GetEncryptionType(ctx context.Context, accountID string) (secretmanager.EncryptionType, error) {
	cfg, err := r.GetDefault(ctx, accountID)
	if err != nil {
		return "", err
	}
	return cfg.EncryptionType(), nil
}

// List returns the account's managers plus the global ones, credentials
// masked or decrypted per maskSecrets, each annotated with the number of
// secrets it holds. NG-scoped managers are excluded, and the implicit
// local manager is hidden even when it is the effective default. When
// the account forces local encryption only the implicit local manager
// is returned.
func (r *Registry) List(ctx context.Context, accountID string, maskSecrets bool) ([]secretmanager.Config, error) {
	acct, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.LocalEncryptionEnabled {
		cfg, err := r.implicitLocal(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return []secretmanager.Config{cfg}, nil
	}

	var out []secretmanager.Config
	for _, owner := range []string{accountID, secretmanager.GlobalAccountID} {
		docs, err := r.docs.Query(secretmanager.KindSecretManagerConfig).
			Filter("accountId", owner).
			Filter("ng", false).
			List(ctx)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			cfg, err := asConfig(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, cfg.Clone())
		}
	}

	hasDefault := false
	for _, cfg := range out {
		a, err := r.AdapterFor(cfg.EncryptionType())
		if err != nil {
			return nil, err
		}
		if err := a.DecryptConfigSecrets(ctx, cfg, maskSecrets); err != nil {
			return nil, err
		}
		if err := r.annotateNumSecrets(ctx, accountID, cfg); err != nil {
			return nil, err
		}
		if cfg.IsDefault() {
			hasDefault = true
		}
	}

	if !hasDefault {
		// No explicit default anywhere: mark the effective one so at most
		// one listed manager carries the flag. The implicit local manager
		// stays out of the listing even when it is the effective default.
		def, err := r.GetDefault(ctx, accountID)
		if err != nil {
			return nil, err
		}
		for _, cfg := range out {
			if cfg.GetID() == def.GetID() {
				cfg.SetDefault(true)
				break
			}
		}
	}
	return out, nil
}

// ClearDefaultFlags unsets the default flag on every non-ng manager of
// the account, dropping it back to the global fallback chain.
func (r *Registry) ClearDefaultFlags(ctx context.Context, accountID string) error {
	docs, err := r.docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", accountID).
		Filter("isDefault", true).
		Filter("ng", false).
		List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := r.docs.UpdateFields(ctx, secretmanager.KindSecretManagerConfig, doc.GetID(),
			map[string]interface{}{"isDefault": false}); err != nil {
			return err
		}
	}
	return nil
}

// globalDefault picks among the global pseudo-account's managers,
// preferring GCP KMS over AWS KMS. Returns nil with no error when no
// global manager exists.
func (r *Registry) globalDefault(ctx context.Context) (secretmanager.Config, error) {
	docs, err := r.docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", secretmanager.GlobalAccountID).
		List(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var kms secretmanager.Config
	for _, doc := range docs {
		cfg, err := asConfig(doc)
		if err != nil {
			return nil, err
		}
		switch cfg.EncryptionType() {
		case secretmanager.TypeGCPKMS:
			return cfg.Clone(), nil
		case secretmanager.TypeKMS:
			kms = cfg
		}
	}
	if kms != nil {
		return kms.Clone(), nil
	}
	return nil, nil
}

// implicitLocal returns the account's stored local manager, or
// materializes the implicit one with id equal to the account id.
func (r *Registry) implicitLocal(ctx context.Context, accountID string) (secretmanager.Config, error) {
	doc, err := r.docs.Get(ctx, secretmanager.KindSecretManagerConfig, accountID)
	if err == nil {
		cfg, err := asConfig(doc)
		if err != nil {
			return nil, err
		}
		return cfg.Clone(), nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return secretmanager.NewLocalConfig(accountID), nil
}

func (r *Registry) annotateNumSecrets(ctx context.Context, accountID string, cfg secretmanager.Config) error {
	count, err := r.records.CountByManager(ctx, accountID, cfg.GetID(), cfg.EncryptionType())
	if err != nil {
		return err
	}
	cfg.SetNumSecrets(count)
	return nil
}

func (r *Registry) load(ctx context.Context, id string) (secretmanager.Config, error) {
	doc, err := r.docs.Get(ctx, secretmanager.KindSecretManagerConfig, id)
	if err != nil {
		return nil, err
	}
	return asConfig(doc)
}

func asConfig(doc docstore.Doc) (secretmanager.Config, error) {
	cfg, ok := doc.(secretmanager.Config)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "stored document is not a secret manager config"}
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	var notFound smerrors.NotFoundError
	return errors.As(err, &notFound)
}
