// Package recordstore persists EncryptedData fragments: CRUD with
// lookup by id and by {accountId, name}, parent-reference bookkeeping,
// and per-manager usage counting for the delete-safety guard.
package recordstore

import (
	"context"
	"errors"
	"time"

	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Store provides EncryptedData persistence over the document store.
type Store struct {
	docs   docstore.Store
	codec  *codec.Codec
	logger *logging.Logger
}

// New creates a record store.
func New(docs docstore.Store, c *codec.Codec, logger *logging.Logger) *Store {
	return &Store{docs: docs, codec: c, logger: logger}
}

// GetByID returns the record with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*secretmanager.EncryptedData, error) {
	doc, err := s.docs.Get(ctx, secretmanager.KindEncryptedData, id)
	if err != nil {
		return nil, err
	}
	return asRecord(doc)
}

// GetByName returns the account's record with the given name.
func (s *Store) GetByName(ctx context.Context, accountID, name string) (*secretmanager.EncryptedData, error) {
	doc, err := s.docs.Query(secretmanager.KindEncryptedData).
		Filter("accountId", accountID).
		Filter("name", name).
		Get(ctx)
	if err != nil {
		return nil, err
	}
	return asRecord(doc)
}

// Save persists a record and returns its id.
func (s *Store) Save(ctx context.Context, rec *secretmanager.EncryptedData) (string, error) {
	rec.UpdatedAt = time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	id, err := s.docs.Save(ctx, rec)
	if err != nil {
		return "", err
	}
	s.logger.Info("saved encrypted record '%s' (manager %s)", rec.Name, rec.KmsID)
	return id, nil
}

// UpsertByOwnerName finds or creates the credential fragment named
// ownerID+suffix and encrypts plaintext into it. An existing fragment
// has its key and ciphertext rotated in place so its id, and therefore
// the owning config's stored reference, never changes on edit.
func (s *Store) UpsertByOwnerName(ctx context.Context, accountID, ownerID, suffix string, plaintext []byte, parent secretmanager.ParentRef, kmsID string) (string, error) {
	fresh, err := s.codec.EncryptLocal(accountID, plaintext)
	if err != nil {
		return "", err
	}

	name := ownerID + suffix
	existing, err := s.GetByName(ctx, accountID, name)
	var notFound smerrors.NotFoundError
	switch {
	case err == nil:
		existing.EncryptionKey = fresh.EncryptionKey
		existing.EncryptedValue = fresh.EncryptedValue
		existing.KmsID = kmsID
		existing.AddParent(parent)
		return s.Save(ctx, existing)
	case errors.As(err, &notFound):
		fresh.Name = name
		fresh.Type = parent.SettingType
		fresh.KmsID = kmsID
		fresh.AddParent(parent)
		return s.Save(ctx, fresh)
	default:
		return "", err
	}
}

// Decrypt recovers the plaintext of a locally encrypted record.
func (s *Store) Decrypt(rec *secretmanager.EncryptedData) ([]byte, error) {
	return s.codec.DecryptLocal(rec)
}

// CountByManager reports how many records of the given encryption type
// still name the manager as their owner. Every backend's delete guard
// runs through here.
func (s *Store) CountByManager(ctx context.Context, accountID, kmsID string, t secretmanager.EncryptionType) (int, error) {
	return s.docs.Query(secretmanager.KindEncryptedData).
		Filter("accountId", accountID).
		Filter("kmsId", kmsID).
		Filter("encryptionType", string(t)).
		Count(ctx)
}

// ListByManager returns the account's records owned by the manager.
func (s *Store) ListByManager(ctx context.Context, accountID, kmsID string, t secretmanager.EncryptionType) ([]*secretmanager.EncryptedData, error) {
	docs, err := s.docs.Query(secretmanager.KindEncryptedData).
		Filter("accountId", accountID).
		Filter("kmsId", kmsID).
		Filter("encryptionType", string(t)).
		List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*secretmanager.EncryptedData, 0, len(docs))
	for _, doc := range docs {
		rec, err := asRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListByAccount returns every record in the account.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]*secretmanager.EncryptedData, error) {
	docs, err := s.docs.Query(secretmanager.KindEncryptedData).
		Filter("accountId", accountID).
		List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*secretmanager.EncryptedData, 0, len(docs))
	for _, doc := range docs {
		rec, err := asRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteByID removes a record.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, secretmanager.KindEncryptedData, id)
}

// DeleteOwnedBy removes every credential fragment a config owns,
// called after the config's own delete guard has passed.
func (s *Store) DeleteOwnedBy(ctx context.Context, accountID, ownerID string) error {
	recs, err := s.docs.Query(secretmanager.KindEncryptedData).
		Filter("accountId", accountID).
		List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range recs {
		rec, err := asRecord(doc)
		if err != nil {
			return err
		}
		for _, p := range rec.Parents {
			if p.OwnerID == ownerID {
				if err := s.DeleteByID(ctx, rec.ID); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func asRecord(doc docstore.Doc) (*secretmanager.EncryptedData, error) {
	rec, ok := doc.(*secretmanager.EncryptedData)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "document is not an encrypted record"}
	}
	return rec, nil
}
