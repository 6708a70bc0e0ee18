package statefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/secrets"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")
	docs := docstore.NewMemoryStore()

	vault := &secretmanager.VaultConfig{
		URL:                 "https://vault.example.com:8200",
		AuthToken:           "record-ref-1",
		SecretEngineName:    "secret",
		SecretEngineVersion: 2,
	}
	vault.ID = "mgr1"
	vault.AccountID = "acct1"
	vault.Name = "team-vault"
	vault.Default = true
	_, err := docs.Save(ctx, vault)
	require.NoError(t, err)

	kms := &secretmanager.KMSConfig{
		AccessKey: "record-ref-2",
		SecretKey: "record-ref-3",
		KmsArn:    "arn:aws:kms:us-east-1:1:key/k",
		Region:    "us-east-1",
	}
	kms.ID = "mgr2"
	kms.AccountID = "acct1"
	kms.Name = "prod-kms"
	_, err = docs.Save(ctx, kms)
	require.NoError(t, err)

	rec := &secretmanager.EncryptedData{
		ID:             "rec1",
		AccountID:      "acct1",
		Name:           "db-password",
		EncryptionType: secretmanager.TypeLocal,
		KmsID:          "acct1",
		EncryptionKey:  "a2V5",
		EncryptedValue: []byte{0x01, 0x02},
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	_, err = docs.Save(ctx, rec)
	require.NoError(t, err)

	_, err = docs.Save(ctx, &audit.ChangeLog{
		AccountID:  "acct1",
		EntityID:   "rec1",
		EntityName: "db-password",
		ChangeType: audit.ChangeTypeCreate,
	})
	require.NoError(t, err)
	_, err = docs.Save(ctx, &secrets.UsageLog{
		AccountID:       "acct1",
		EncryptedDataID: "rec1",
	})
	require.NoError(t, err)

	require.NoError(t, Save(ctx, path, docs))

	fresh := docstore.NewMemoryStore()
	require.NoError(t, Load(ctx, path, fresh))

	doc, err := fresh.Get(ctx, secretmanager.KindSecretManagerConfig, "mgr1")
	require.NoError(t, err)
	loadedVault, ok := doc.(*secretmanager.VaultConfig)
	require.True(t, ok, "the envelope restores the concrete config type")
	assert.Equal(t, "team-vault", loadedVault.Name)
	assert.Equal(t, 2, loadedVault.SecretEngineVersion)
	assert.True(t, loadedVault.IsDefault())
	assert.Equal(t, "record-ref-1", loadedVault.AuthToken)

	doc, err = fresh.Get(ctx, secretmanager.KindSecretManagerConfig, "mgr2")
	require.NoError(t, err)
	loadedKMS, ok := doc.(*secretmanager.KMSConfig)
	require.True(t, ok)
	assert.Equal(t, secretmanager.TypeKMS, loadedKMS.EncryptionType())
	assert.Equal(t, "us-east-1", loadedKMS.Region)

	doc, err = fresh.Get(ctx, secretmanager.KindEncryptedData, "rec1")
	require.NoError(t, err)
	loadedRec := doc.(*secretmanager.EncryptedData)
	assert.Equal(t, []byte{0x01, 0x02}, loadedRec.EncryptedValue)
	assert.Equal(t, rec.CreatedAt, loadedRec.CreatedAt)

	changeDocs, err := fresh.Query(audit.KindChangeLog).Filter("entityId", "rec1").List(ctx)
	require.NoError(t, err)
	assert.Len(t, changeDocs, 1)
	usageDocs, err := fresh.Query(secrets.KindUsageLog).Filter("encryptedDataId", "rec1").List(ctx)
	require.NoError(t, err)
	assert.Len(t, usageDocs, 1)
}

func TestLoadMissingFileIsEmptyState(t *testing.T) {
	docs := docstore.NewMemoryStore()
	err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), docs)
	assert.NoError(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	err := Load(context.Background(), path, docstore.NewMemoryStore())
	var valErr smerrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestDecodeManagerUnknownType(t *testing.T) {
	var spec yaml.Node
	require.NoError(t, spec.Encode(map[string]string{"name": "x"}))

	_, err := DecodeManager(secretmanager.EncryptionType("NOT_A_TYPE"), &spec)
	var valErr smerrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}
