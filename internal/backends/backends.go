// Package backends implements one adapter per secret manager backend.
// Each adapter validates its variant's config, encrypts credential
// sub-fields into EncryptedData references, decrypts or masks them on
// read, checks connectivity through the delegate, and guards deletion
// behind the reference count.
package backends

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/systmms/secretmgr/internal/accounts"
	"github.com/systmms/secretmgr/internal/alerts"
	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/delegate"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/internal/rbac"
	"github.com/systmms/secretmgr/internal/recordstore"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Adapter is the per-backend contract: save, update, decrypt-or-mask,
// connectivity validation, and guarded delete.
type Adapter interface {
	// Save validates and persists a new manager config, returning its id.
	Save(ctx context.Context, cfg secretmanager.Config) (string, error)

	// Update modifies an existing config. Credentials submitted as the
	// Mask sentinel keep their stored references; remote validation is
	// skipped when no credential actually changed.
	Update(ctx context.Context, cfg secretmanager.Config) (string, error)

	// DecryptConfigSecrets resolves credential references to plaintext,
	// or replaces them with the Mask sentinel when maskSecrets is set.
	DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error

	// ValidateConfig performs a lightweight connectivity/auth check
	// through the delegate.
	ValidateConfig(ctx context.Context, cfg secretmanager.Config) error

	// Delete removes the config after the reference-count guard passes.
	Delete(ctx context.Context, accountID, configID string) error
}

// Deps carries the collaborators shared by every adapter.
type Deps struct {
	Docs     docstore.Store
	Codec    *codec.Codec
	Records  *recordstore.Store
	Delegate *delegate.Executor
	RBAC     rbac.Checker
	Audit    audit.Recorder
	Alerts   alerts.Service
	Accounts accounts.Service
	Logger   *logging.Logger
}

// base bundles the save/update/delete mechanics shared by all variants.
type base struct {
	*Deps
	settingType string
}

// loadConfig fetches a stored manager config by id.
func (b *base) loadConfig(ctx context.Context, id string) (secretmanager.Config, error) {
	doc, err := b.Docs.Get(ctx, secretmanager.KindSecretManagerConfig, id)
	if err != nil {
		return nil, err
	}
	cfg, ok := doc.(secretmanager.Config)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "stored document is not a secret manager config"}
	}
	return cfg, nil
}

// checkCreate runs the checks common to every save: RBAC, name rule,
// templatized-field completeness, duplicate name, and the
// templatized-default and global-scope invariants.
func (b *base) checkCreate(ctx context.Context, cfg secretmanager.Config) error {
	ok, err := b.RBAC.CanSetPermissions(ctx, cfg.GetAccountID(), cfg)
	if err != nil {
		return err
	}
	if !ok {
		return smerrors.AuthorizationError{AccountID: cfg.GetAccountID(), Action: "create a secret manager"}
	}
	if err := checkCommonInvariants(cfg); err != nil {
		return err
	}
	return b.checkDuplicateName(ctx, cfg)
}

func (b *base) checkUpdate(ctx context.Context, newCfg, oldCfg secretmanager.Config) error {
	ok, err := b.RBAC.CanChangePermissions(ctx, newCfg.GetAccountID(), newCfg, oldCfg)
	if err != nil {
		return err
	}
	if !ok {
		return smerrors.AuthorizationError{AccountID: newCfg.GetAccountID(), Action: "update the secret manager"}
	}
	return checkCommonInvariants(newCfg)
}

func (b *base) checkDuplicateName(ctx context.Context, cfg secretmanager.Config) error {
	_, err := b.Docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", cfg.GetAccountID()).
		Filter("name", cfg.GetName()).
		Get(ctx)
	if err == nil {
		return smerrors.ConflictError{Resource: "secret manager", Name: cfg.GetName()}
	}
	var notFound smerrors.NotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// resolveCredentials encrypts every plaintext credential field into an
// EncryptedData reference. Mask keeps the previous reference (update
// only). Returns whether any credential actually changed; the config is
// only safe to persist afterwards.
func (b *base) resolveCredentials(ctx context.Context, cfg, prev secretmanager.Config) (bool, error) {
	prevRefs := map[string]string{}
	if prev != nil {
		for _, f := range prev.CredentialFields() {
			prevRefs[f.Name] = *f.Ref
		}
	}

	changed := false
	for _, f := range cfg.CredentialFields() {
		value := *f.Ref
		if value == secretmanager.Mask {
			prevRef, ok := prevRefs[f.Name]
			if !ok || prevRef == "" {
				return false, smerrors.ValidationError{
					Field:   f.Name,
					Message: "masked credential has no stored value to keep",
				}
			}
			*f.Ref = prevRef
			continue
		}
		if value == "" {
			// Optional credential left empty; nothing to store.
			continue
		}
		if prev != nil {
			if same, err := b.credentialUnchanged(ctx, prevRefs[f.Name], value); err == nil && same {
				*f.Ref = prevRefs[f.Name]
				continue
			}
		}
		parent := secretmanager.ParentRef{
			OwnerID:     cfg.GetID(),
			OwnerType:   "SECRET_MANAGER",
			FieldName:   f.Name,
			SettingType: b.settingType,
		}
		recordID, err := b.Records.UpsertByOwnerName(ctx, cfg.GetAccountID(), cfg.GetID(), "_"+f.Name, []byte(value), parent, cfg.GetID())
		if err != nil {
			return false, err
		}
		*f.Ref = recordID
		changed = true
	}
	return changed, nil
}

// credentialUnchanged decrypts a stored credential and compares it to
// the incoming plaintext, so an unchanged value submitted in the clear
// does not trigger re-encryption or remote validation.
func (b *base) credentialUnchanged(ctx context.Context, prevRef, plaintext string) (bool, error) {
	if prevRef == "" || prevRef == secretmanager.Mask {
		return false, nil
	}
	rec, err := b.Records.GetByID(ctx, prevRef)
	if err != nil {
		return false, err
	}
	stored, err := b.Records.Decrypt(rec)
	if err != nil {
		return false, err
	}
	return string(stored) == plaintext, nil
}

// anyCredentialChanged compares incoming credential values against the
// stored ones after mask substitution. Used on update to decide whether
// remote validation (and for Vault, AppRole re-login) is needed at all.
func (b *base) anyCredentialChanged(ctx context.Context, cfg, prev secretmanager.Config) (bool, error) {
	prevRefs := map[string]string{}
	for _, f := range prev.CredentialFields() {
		prevRefs[f.Name] = *f.Ref
	}
	for _, f := range cfg.CredentialFields() {
		value := *f.Ref
		if value == secretmanager.Mask {
			continue
		}
		if value == "" {
			if prevRefs[f.Name] != "" {
				return true, nil
			}
			continue
		}
		same, err := b.credentialUnchanged(ctx, prevRefs[f.Name], value)
		if err != nil {
			return false, err
		}
		if !same {
			return true, nil
		}
	}
	return false, nil
}

// decryptCredentials resolves every credential reference to plaintext,
// or masks all fields without touching the store.
func (b *base) decryptCredentials(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	for _, f := range cfg.CredentialFields() {
		if maskSecrets {
			if *f.Ref != "" {
				*f.Ref = secretmanager.Mask
			}
			continue
		}
		if *f.Ref == "" {
			continue
		}
		rec, err := b.Records.GetByID(ctx, *f.Ref)
		if err != nil {
			return smerrors.DecryptionError{RecordName: f.Name, Err: err}
		}
		plaintext, err := b.Records.Decrypt(rec)
		if err != nil {
			return err
		}
		*f.Ref = string(plaintext)
	}
	return nil
}

// effectiveConfig clones cfg and substitutes the stored plaintext for
// every masked credential field, yielding the config a remote
// validation round trip must see.
func (b *base) effectiveConfig(ctx context.Context, cfg, prev secretmanager.Config) (secretmanager.Config, error) {
	prevRefs := map[string]string{}
	for _, f := range prev.CredentialFields() {
		prevRefs[f.Name] = *f.Ref
	}
	eff := cfg.Clone()
	for _, f := range eff.CredentialFields() {
		if *f.Ref != secretmanager.Mask {
			continue
		}
		ref := prevRefs[f.Name]
		if ref == "" {
			return nil, smerrors.ValidationError{
				Field:   f.Name,
				Message: "masked credential has no stored value to keep",
			}
		}
		rec, err := b.Records.GetByID(ctx, ref)
		if err != nil {
			return nil, smerrors.DecryptionError{RecordName: f.Name, Err: err}
		}
		plaintext, err := b.Records.Decrypt(rec)
		if err != nil {
			return nil, err
		}
		*f.Ref = string(plaintext)
	}
	return eff, nil
}

// persist saves the config, clearing the default flag on every other
// non-ng manager of the account first when this one claims default.
// Credential fields must already be record references.
func (b *base) persist(ctx context.Context, cfg secretmanager.Config) (string, error) {
	if cfg.IsDefault() {
		if err := b.clearOtherDefaults(ctx, cfg.GetAccountID(), cfg.GetID()); err != nil {
			return "", err
		}
	}
	return b.Docs.Save(ctx, cfg)
}

func (b *base) clearOtherDefaults(ctx context.Context, accountID, exceptID string) error {
	docs, err := b.Docs.Query(secretmanager.KindSecretManagerConfig).
		Filter("accountId", accountID).
		Filter("isDefault", true).
		Filter("ng", false).
		List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.GetID() == exceptID {
			continue
		}
		if err := b.Docs.UpdateFields(ctx, secretmanager.KindSecretManagerConfig, doc.GetID(),
			map[string]interface{}{"isDefault": false}); err != nil {
			return err
		}
	}
	return nil
}

// remoteValidate asks the delegate to run the backend's connectivity
// check with the plaintext config.
func (b *base) remoteValidate(ctx context.Context, cfg secretmanager.Config) error {
	_, err := b.Delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpValidateConfig,
		AccountID: cfg.GetAccountID(),
		Config:    cfg,
		Timeout:   delegate.ValidationTimeout,
	})
	if err != nil {
		return smerrors.SecretManagementError{
			Message:    "could not validate " + string(cfg.EncryptionType()) + " configuration",
			Suggestion: "check the endpoint, credentials and network reachability",
			Err:        err,
		}
	}
	return nil
}

// guardDelete refuses deletion while encrypted records still reference
// the manager.
func (b *base) guardDelete(ctx context.Context, cfg secretmanager.Config) error {
	count, err := b.Records.CountByManager(ctx, cfg.GetAccountID(), cfg.GetID(), cfg.EncryptionType())
	if err != nil {
		return err
	}
	if count > 0 {
		return smerrors.ReferentialIntegrityError{ManagerName: cfg.GetName(), Count: count}
	}
	return nil
}

// deleteConfig runs the full guarded delete sequence: RBAC, reference
// count, owned credential fragments, the config itself, audit, and
// closing any open renewal-failure alert.
func (b *base) deleteConfig(ctx context.Context, accountID, configID string) error {
	cfg, err := b.loadConfig(ctx, configID)
	if err != nil {
		return err
	}
	ok, err := b.RBAC.HasAccessToEditSM(ctx, accountID, cfg)
	if err != nil {
		return err
	}
	if !ok {
		return smerrors.AuthorizationError{AccountID: accountID, Action: "delete the secret manager"}
	}
	if err := b.guardDelete(ctx, cfg); err != nil {
		return err
	}
	if err := b.Records.DeleteOwnedBy(ctx, accountID, configID); err != nil {
		return err
	}
	if err := b.Docs.Delete(ctx, secretmanager.KindSecretManagerConfig, configID); err != nil {
		return err
	}
	if err := b.Audit.ReportDeleteForAuditing(ctx, accountID, cfg); err != nil {
		b.Logger.Warn("audit report failed for deleted manager %s: %v", cfg.GetName(), err)
	}
	return b.Alerts.CloseAlert(ctx, accountID, alerts.TypeInvalidKMS, configID)
}

// saveFlow runs the create sequence shared by the adapters without
// variant-specific pre-steps: policy checks, field validation, remote
// connectivity validation, credential resolution, persistence, audit.
// Credential fields are durably stored before the config document is.
func (b *base) saveFlow(ctx context.Context, cfg secretmanager.Config, validate func() error) (string, error) {
	if err := b.checkCreate(ctx, cfg); err != nil {
		return "", err
	}
	if err := validate(); err != nil {
		return "", err
	}
	if err := b.remoteValidate(ctx, cfg); err != nil {
		return "", err
	}
	ensureID(cfg)
	if _, err := b.resolveCredentials(ctx, cfg, nil); err != nil {
		return "", err
	}
	id, err := b.persist(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := b.Audit.ReportForAuditing(ctx, cfg.GetAccountID(), nil, cfg, audit.ChangeTypeCreate); err != nil {
		b.Logger.Warn("audit report failed for manager %s: %v", cfg.GetName(), err)
	}
	return id, nil
}

// updateFlow runs the shared update sequence. Remote validation only
// happens when a credential actually changed after mask substitution.
func (b *base) updateFlow(ctx context.Context, cfg secretmanager.Config, validate func() error) (string, error) {
	prev, err := b.loadConfig(ctx, cfg.GetID())
	if err != nil {
		return "", err
	}
	snapshot := prev.Clone()
	if err := b.checkUpdate(ctx, cfg, prev); err != nil {
		return "", err
	}
	if err := validate(); err != nil {
		return "", err
	}
	credChanged, err := b.anyCredentialChanged(ctx, cfg, prev)
	if err != nil {
		return "", err
	}
	if credChanged {
		// Validation must see the effective credentials, not the mask
		// sentinel, so it runs on a resolved working copy.
		eff, err := b.effectiveConfig(ctx, cfg, prev)
		if err != nil {
			return "", err
		}
		if err := b.remoteValidate(ctx, eff); err != nil {
			return "", err
		}
	}
	if _, err := b.resolveCredentials(ctx, cfg, prev); err != nil {
		return "", err
	}
	id, err := b.persist(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := b.Audit.ReportForAuditing(ctx, cfg.GetAccountID(), snapshot, cfg, audit.ChangeTypeUpdate); err != nil {
		b.Logger.Warn("audit report failed for manager %s: %v", cfg.GetName(), err)
	}
	return id, nil
}

// checkCommonInvariants enforces the rules shared by every variant.
func checkCommonInvariants(cfg secretmanager.Config) error {
	if cfg.IsTemplatized() && cfg.IsDefault() {
		return smerrors.ValidationError{
			Field:   "isDefault",
			Message: "a templatized secret manager cannot be the default",
		}
	}
	if cfg.IsGlobal() && !cfg.EncryptionType().SupportsGlobal() {
		return smerrors.ValidationError{
			Field:   "accountId",
			Message: string(cfg.EncryptionType()) + " managers cannot be global",
		}
	}
	return nil
}

// ensureID assigns a uuid before credential fragments are named after
// the owning config.
func ensureID(cfg secretmanager.Config) {
	if cfg.GetID() == "" {
		cfg.SetID(uuid.NewString())
	}
}
