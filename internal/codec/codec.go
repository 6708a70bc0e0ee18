// Package codec implements the local symmetric credential codec:
// AES-256-GCM with a fresh random key per record. Every backend's
// credential sub-fields are wrapped with this codec before storage,
// regardless of which backend ultimately encrypts user secrets.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/secure"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

const keyLength = 32

// Codec encrypts and decrypts small secret payloads.
type Codec struct{}

// New creates a codec.
func New() *Codec {
	return &Codec{}
}

// EncryptLocal encrypts plaintext under a fresh random key and returns
// a new record carrying the key reference and ciphertext. Two calls on
// the same plaintext always produce different ciphertext and different
// key references; callers that need a stable record id must fetch and
// update the existing record instead of re-encrypting.
func (c *Codec) EncryptLocal(accountID string, plaintext []byte) (*secretmanager.EncryptedData, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	// NewBuffer wipes its source slice, so stage a copy: the raw key is
	// still needed for sealing and for the stored key reference.
	keyBuf := secure.NewBuffer(append([]byte(nil), key...))
	defer keyBuf.Destroy()

	sealed, err := seal(key, plaintext)
	keyRef := base64.StdEncoding.EncodeToString(key)
	secure.Wipe(key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &secretmanager.EncryptedData{
		AccountID:      accountID,
		EncryptionType: secretmanager.TypeLocal,
		EncryptionKey:  keyRef,
		EncryptedValue: sealed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DecryptLocal recovers the plaintext of a locally encrypted record.
// A malformed record or key yields a DecryptionError.
func (c *Codec) DecryptLocal(rec *secretmanager.EncryptedData) ([]byte, error) {
	if rec == nil {
		return nil, smerrors.DecryptionError{Err: errors.New("nil record")}
	}
	if rec.EncryptionType != secretmanager.TypeLocal {
		return nil, smerrors.DecryptionError{
			RecordName: rec.Name,
			Err:        errors.New("record is not locally encrypted"),
		}
	}
	key, err := base64.StdEncoding.DecodeString(rec.EncryptionKey)
	if err != nil || len(key) != keyLength {
		return nil, smerrors.DecryptionError{RecordName: rec.Name, Err: errors.New("malformed encryption key")}
	}
	defer secure.Wipe(key)

	plaintext, err := open(key, rec.EncryptedValue)
	if err != nil {
		return nil, smerrors.DecryptionError{RecordName: rec.Name, Err: err}
	}
	return plaintext, nil
}

// seal encrypts with AES-256-GCM, prepending the nonce to the ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
