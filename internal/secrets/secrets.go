// Package secrets is the account-facing facade over encrypted records:
// create, read, update, delete and bulk migration of secrets, routed
// through the account's effective default manager, plus usage and
// change history.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/delegate"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/internal/rbac"
	"github.com/systmms/secretmgr/internal/recordstore"
	"github.com/systmms/secretmgr/internal/registry"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Service implements the secret lifecycle over the registry and the
// record store.
type Service struct {
	docs     docstore.Store
	records  *recordstore.Store
	codec    *codec.Codec
	registry *registry.Registry
	delegate *delegate.Executor
	rbac     rbac.Checker
	logger   *logging.Logger
}

// New creates the facade.
func New(docs docstore.Store, records *recordstore.Store, c *codec.Codec, reg *registry.Registry, exec *delegate.Executor, checker rbac.Checker, logger *logging.Logger) *Service {
	return &Service{
		docs:     docs,
		records:  records,
		codec:    c,
		registry: reg,
		delegate: exec,
		rbac:     checker,
		logger:   logger,
	}
}

// Details pairs a resolved record with its owning manager config, the
// config's credentials already decrypted for a remote fetch.
type Details struct {
	Record *secretmanager.EncryptedData
	Config secretmanager.Config
}

// EncryptedDataDetails resolves a secret reference for consumption.
// The reference is tried as a record id first, then as a record name.
// A record owned by a global KMS manager is re-encrypted under the
// account's local manager on the way out, so global-manager secrets
// migrate off shared infrastructure lazily; the original is kept when
// re-encryption fails. When a workflow-execution id is supplied a
// usage-log row is written best-effort.
func (s *Service) EncryptedDataDetails(ctx context.Context, accountID, ref, workflowExecutionID string) (*Details, error) {
	rec, err := s.resolveRecord(ctx, accountID, ref)
	if err != nil {
		return nil, err
	}
	cfg, err := s.managerFor(ctx, accountID, rec)
	if err != nil {
		return nil, err
	}

	if cfg.IsGlobal() && (rec.EncryptionType == secretmanager.TypeKMS || rec.EncryptionType == secretmanager.TypeGCPKMS) {
		if migrated, merr := s.reencryptLocally(ctx, accountID, rec, cfg); merr != nil {
			s.logger.Warn("could not re-encrypt secret '%s' off the global manager: %v", rec.Name, merr)
		} else {
			rec = migrated
			cfg, err = s.managerFor(ctx, accountID, rec)
			if err != nil {
				return nil, err
			}
		}
	}

	s.recordUsage(ctx, accountID, rec.ID, workflowExecutionID)
	return &Details{Record: rec, Config: cfg}, nil
}

// FetchSecretValue resolves and decrypts a secret to plaintext.
func (s *Service) FetchSecretValue(ctx context.Context, accountID, ref string) ([]byte, error) {
	details, err := s.EncryptedDataDetails(ctx, accountID, ref, "")
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, details)
}

// SaveSecretText stores a new text secret through the account's
// effective default manager and returns the record id.
func (s *Service) SaveSecretText(ctx context.Context, accountID, name, value string, usageScopes []string) (string, error) {
	return s.saveSecret(ctx, accountID, name, []byte(value), usageScopes, "SECRET_TEXT")
}

// SaveSecretFile stores a new file secret. File content always stays
// locally encrypted regardless of the default manager, so binary
// payloads never round-trip through path-addressed backends.
func (s *Service) SaveSecretFile(ctx context.Context, accountID, name string, content []byte, usageScopes []string) (string, error) {
	if err := validation.SecretName(name); err != nil {
		return "", err
	}
	if err := s.checkDuplicate(ctx, accountID, name, ""); err != nil {
		return "", err
	}
	rec, err := s.codec.EncryptLocal(accountID, content)
	if err != nil {
		return "", err
	}
	rec.Name = name
	rec.Type = "CONFIG_FILE"
	rec.KmsID = accountID
	rec.UsageScopes = usageScopes
	id, err := s.records.Save(ctx, rec)
	if err != nil {
		return "", err
	}
	s.recordChange(ctx, accountID, id, name, audit.ChangeTypeCreate, "secret file created")
	return id, nil
}

// UpdateSecretText renames and/or re-values an existing secret. A
// masked value keeps the stored ciphertext; on path-addressed backends
// a rename moves the remote entry.
func (s *Service) UpdateSecretText(ctx context.Context, accountID, recordID, name, value string) error {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.AccountID != accountID {
		return smerrors.NotFoundError{Resource: "secret", ID: recordID}
	}
	if err := validation.SecretName(name); err != nil {
		return err
	}
	if name != rec.Name {
		if err := s.checkDuplicate(ctx, accountID, name, recordID); err != nil {
			return err
		}
	}

	if value != secretmanager.Mask {
		cfg, err := s.managerFor(ctx, accountID, rec)
		if err != nil {
			return err
		}
		if rec.EncryptionType == secretmanager.TypeLocal {
			fresh, err := s.codec.EncryptLocal(accountID, []byte(value))
			if err != nil {
				return err
			}
			rec.EncryptionKey = fresh.EncryptionKey
			rec.EncryptedValue = fresh.EncryptedValue
		} else {
			oldPath := rec.Path
			path, err := s.remoteCreate(ctx, cfg, name, []byte(value))
			if err != nil {
				return err
			}
			rec.Path = path
			if oldPath != "" && oldPath != path {
				s.remoteDeleteBestEffort(ctx, cfg, oldPath, rec.Name)
			}
		}
	} else if name != rec.Name && rec.Path != "" {
		cfg, err := s.managerFor(ctx, accountID, rec)
		if err != nil {
			return err
		}
		value, err := s.fetch(ctx, &Details{Record: rec, Config: cfg})
		if err != nil {
			return err
		}
		oldPath := rec.Path
		path, err := s.remoteCreate(ctx, cfg, name, value)
		if err != nil {
			return err
		}
		rec.Path = path
		s.remoteDeleteBestEffort(ctx, cfg, oldPath, rec.Name)
	}

	rec.Name = name
	if _, err := s.records.Save(ctx, rec); err != nil {
		return err
	}
	s.recordChange(ctx, accountID, rec.ID, rec.Name, audit.ChangeTypeUpdate, "secret updated")
	return nil
}

// DeleteSecret removes a secret. Deletion is refused while any config
// field still references the record.
func (s *Service) DeleteSecret(ctx context.Context, accountID, recordID string) error {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.AccountID != accountID {
		return smerrors.NotFoundError{Resource: "secret", ID: recordID}
	}
	if len(rec.Parents) > 0 {
		return smerrors.SecretManagementError{
			Message:    fmt.Sprintf("secret '%s' is still referenced by %d configuration(s)", rec.Name, len(rec.Parents)),
			Suggestion: "remove the references before deleting the secret",
		}
	}
	if rec.Path != "" {
		cfg, err := s.managerFor(ctx, accountID, rec)
		if err != nil {
			return err
		}
		s.remoteDeleteBestEffort(ctx, cfg, rec.Path, rec.Name)
	}
	if err := s.records.DeleteByID(ctx, recordID); err != nil {
		return err
	}
	s.recordChange(ctx, accountID, recordID, rec.Name, audit.ChangeTypeDelete, "secret deleted")
	return nil
}

// DeleteByAccountID removes every record the account owns, for account
// teardown. Remote entries are deleted best-effort.
func (s *Service) DeleteByAccountID(ctx context.Context, accountID string) error {
	recs, err := s.records.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.Path != "" {
			if cfg, err := s.managerFor(ctx, accountID, rec); err == nil {
				s.remoteDeleteBestEffort(ctx, cfg, rec.Path, rec.Name)
			}
		}
		if err := s.records.DeleteByID(ctx, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveSecret(ctx context.Context, accountID, name string, value []byte, usageScopes []string, secretType string) (string, error) {
	if err := validation.SecretName(name); err != nil {
		return "", err
	}
	if err := s.checkDuplicate(ctx, accountID, name, ""); err != nil {
		return "", err
	}
	cfg, err := s.registry.GetDefault(ctx, accountID)
	if err != nil {
		return "", err
	}

	var rec *secretmanager.EncryptedData
	if cfg.EncryptionType() == secretmanager.TypeLocal {
		rec, err = s.codec.EncryptLocal(accountID, value)
		if err != nil {
			return "", err
		}
	} else {
		if err := s.registry.DecryptConfig(ctx, cfg, false); err != nil {
			return "", err
		}
		path, err := s.remoteCreate(ctx, cfg, name, value)
		if err != nil {
			return "", err
		}
		rec = &secretmanager.EncryptedData{
			AccountID:      accountID,
			EncryptionType: cfg.EncryptionType(),
			Path:           path,
		}
	}
	rec.Name = name
	rec.Type = secretType
	rec.KmsID = cfg.GetID()
	rec.UsageScopes = usageScopes
	id, err := s.records.Save(ctx, rec)
	if err != nil {
		return "", err
	}
	s.recordChange(ctx, accountID, id, name, audit.ChangeTypeCreate, "secret created")
	return id, nil
}

// fetch recovers plaintext: inline decryption for local records, a
// delegate fetch for everything else.
func (s *Service) fetch(ctx context.Context, details *Details) ([]byte, error) {
	rec := details.Record
	if rec.EncryptionType == secretmanager.TypeLocal {
		return s.records.Decrypt(rec)
	}
	resp, err := s.delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpFetchSecret,
		AccountID: rec.AccountID,
		Config:    details.Config,
		Payload:   map[string]interface{}{"name": rec.Name, "path": rec.Path},
	})
	if err != nil {
		return nil, err
	}
	value := resp.String("value")
	if value == "" {
		return nil, smerrors.DecryptionError{RecordName: rec.Name, Err: errors.New("backend returned no value")}
	}
	return []byte(value), nil
}

func (s *Service) remoteCreate(ctx context.Context, cfg secretmanager.Config, name string, value []byte) (string, error) {
	resp, err := s.delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpCreateSecret,
		AccountID: cfg.GetAccountID(),
		Config:    cfg,
		Payload:   map[string]interface{}{"name": name, "value": string(value)},
	})
	if err != nil {
		return "", err
	}
	path := resp.String("path")
	if path == "" {
		path = name
	}
	return path, nil
}

func (s *Service) remoteDeleteBestEffort(ctx context.Context, cfg secretmanager.Config, path, name string) {
	_, err := s.delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpDeleteSecret,
		AccountID: cfg.GetAccountID(),
		Config:    cfg,
		Payload:   map[string]interface{}{"path": path},
	})
	if err != nil {
		s.logger.Warn("could not delete remote entry for secret '%s': %v", name, err)
	}
}

// reencryptLocally moves one record off its global KMS manager onto the
// account's implicit local manager, preserving the record id so stored
// references stay valid.
func (s *Service) reencryptLocally(ctx context.Context, accountID string, rec *secretmanager.EncryptedData, cfg secretmanager.Config) (*secretmanager.EncryptedData, error) {
	plaintext, err := s.fetch(ctx, &Details{Record: rec, Config: cfg})
	if err != nil {
		return nil, err
	}
	fresh, err := s.codec.EncryptLocal(accountID, plaintext)
	if err != nil {
		return nil, err
	}
	rec.EncryptionType = secretmanager.TypeLocal
	rec.EncryptionKey = fresh.EncryptionKey
	rec.EncryptedValue = fresh.EncryptedValue
	rec.KmsID = accountID
	rec.Path = ""
	if _, err := s.records.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("re-encrypted secret '%s' under the local manager", rec.Name)
	return rec, nil
}

func (s *Service) resolveRecord(ctx context.Context, accountID, ref string) (*secretmanager.EncryptedData, error) {
	rec, err := s.records.GetByID(ctx, ref)
	if err == nil {
		if rec.AccountID != accountID {
			return nil, smerrors.NotFoundError{Resource: "secret", ID: ref}
		}
		return rec, nil
	}
	var notFound smerrors.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}
	return s.records.GetByName(ctx, accountID, ref)
}

// managerFor loads the record's owning manager with credentials
// decrypted, ready for a delegate round trip.
func (s *Service) managerFor(ctx context.Context, accountID string, rec *secretmanager.EncryptedData) (secretmanager.Config, error) {
	if rec.EncryptionType == secretmanager.TypeLocal || rec.KmsID == "" {
		return s.registry.GetByID(ctx, accountID, accountID, false)
	}
	return s.registry.GetByID(ctx, accountID, rec.KmsID, false)
}

func (s *Service) checkDuplicate(ctx context.Context, accountID, name, selfID string) error {
	existing, err := s.records.GetByName(ctx, accountID, name)
	if err == nil {
		if existing.ID != selfID {
			return smerrors.ConflictError{Resource: "secret", Name: name}
		}
		return nil
	}
	var notFound smerrors.NotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

func (s *Service) recordChange(ctx context.Context, accountID, recordID, name, changeType, desc string) {
	row := &audit.ChangeLog{
		AccountID:   accountID,
		EntityID:    recordID,
		EntityName:  name,
		ChangeType:  changeType,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.docs.Save(ctx, row); err != nil {
		s.logger.Warn("could not record change log for secret '%s': %v", name, err)
	}
}
