package backends

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newTestDeps(t *testing.T) (*Deps, *delegate.FakeDispatcher) {
	t.Helper()
	logger := logging.New(false, true)
	docs := docstore.NewMemoryStore()
	c := codec.New()
	fake := delegate.NewFakeDispatcher()
	fake.Handle(delegate.OpAppRoleLogin, func(req delegate.Request) (*delegate.Response, error) {
		return &delegate.Response{Data: map[string]interface{}{"token": "live-token"}}, nil
	})
	return &Deps{
		Docs:     docs,
		Codec:    c,
		Records:  recordstore.New(docs, c, logger),
		Delegate: delegate.NewExecutor(fake, logger, delegate.WithSleep(func(time.Duration) {})),
		RBAC:     rbac.AllowAll{},
		Audit:    audit.NewLogRecorder(docs, logger),
		Alerts:   alerts.NewLogService(logger),
		Accounts: accounts.NewMemoryService(),
		Logger:   logger,
	}, fake
}

func testVaultConfig(accountID, name string) *secretmanager.VaultConfig {
	cfg := &secretmanager.VaultConfig{
		URL:                 "https://vault.example.com:8200",
		AuthToken:           "tok1",
		SecretEngineName:    "secret",
		SecretEngineVersion: 2,
	}
	cfg.AccountID = accountID
	cfg.Name = name
	return cfg
}

func TestVaultSaveEncryptsCredentials(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "team-vault")
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.NotEqual(t, "tok1", cfg.AuthToken, "plaintext never persists on the config")

	rec, err := deps.Records.GetByID(ctx, cfg.AuthToken)
	require.NoError(t, err)
	plaintext, err := deps.Records.Decrypt(rec)
	require.NoError(t, err)
	assert.Equal(t, "tok1", string(plaintext))
}

func TestVaultMaskedUpdateKeepsStoredToken(t *testing.T) {
	ctx := context.Background()
	deps, fake := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "team-vault")
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)
	storedRef := cfg.AuthToken
	validations := fake.CallCount(delegate.OpValidateConfig)

	update := testVaultConfig("acct1", "team-vault-renamed")
	update.ID = id
	update.AuthToken = secretmanager.Mask
	_, err = a.Update(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, storedRef, update.AuthToken, "masked credential keeps its stored reference")

	rec, err := deps.Records.GetByID(ctx, storedRef)
	require.NoError(t, err)
	plaintext, err := deps.Records.Decrypt(rec)
	require.NoError(t, err)
	assert.Equal(t, "tok1", string(plaintext))

	assert.Equal(t, validations, fake.CallCount(delegate.OpValidateConfig),
		"metadata-only update skips remote validation")
}

func TestVaultUnchangedPlaintextSkipsRemoteValidation(t *testing.T) {
	ctx := context.Background()
	deps, fake := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "team-vault")
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)
	validations := fake.CallCount(delegate.OpValidateConfig)

	update := testVaultConfig("acct1", "team-vault")
	update.ID = id
	// Same plaintext token as stored: no credential change.
	_, err = a.Update(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, validations, fake.CallCount(delegate.OpValidateConfig))
}

func TestVaultReadOnlyCannotBeDefault(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "ro-vault")
	cfg.ReadOnly = true
	cfg.Default = true
	_, err := a.Save(ctx, cfg)

	var valErr smerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "isDefault", valErr.Field)
}

func TestVaultAppRoleLoginOnSave(t *testing.T) {
	ctx := context.Background()
	deps, fake := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "approle-vault")
	cfg.AuthToken = ""
	cfg.AppRoleID = "role1"
	cfg.SecretID = "secret1"
	_, err := a.Save(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.CallCount(delegate.OpAppRoleLogin))
}

func TestUpdateValidatesWithEffectiveCredentials(t *testing.T) {
	ctx := context.Background()
	deps, fake := newTestDeps(t)
	a := NewKMSAdapter(deps)

	cfg := &secretmanager.KMSConfig{
		AccessKey: "AKIA123", SecretKey: "shh",
		KmsArn: "arn:aws:kms:us-east-1:1:key/k", Region: "us-east-1",
	}
	cfg.AccountID = "acct1"
	cfg.Name = "prod-kms"
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)

	var seen *secretmanager.KMSConfig
	fake.Handle(delegate.OpValidateConfig, func(req delegate.Request) (*delegate.Response, error) {
		seen, _ = req.Config.(*secretmanager.KMSConfig)
		return &delegate.Response{}, nil
	})

	update := &secretmanager.KMSConfig{
		AccessKey: "AKIA456",
		SecretKey: secretmanager.Mask,
		KmsArn:    secretmanager.Mask,
		Region:    "us-east-1",
	}
	update.ID = id
	update.AccountID = "acct1"
	update.Name = "prod-kms"
	_, err = a.Update(ctx, update)
	require.NoError(t, err)

	require.NotNil(t, seen, "a changed credential forces remote validation")
	assert.Equal(t, "AKIA456", seen.AccessKey)
	assert.Equal(t, "shh", seen.SecretKey, "validation sees the stored secret key, not the mask")
	assert.Equal(t, "arn:aws:kms:us-east-1:1:key/k", seen.KmsArn)
	assert.NotEqual(t, secretmanager.Mask, update.SecretKey,
		"masked fields still resolve to their stored references on persist")
}

func TestVaultAppRoleChangeRevalidatesWithStoredSecretID(t *testing.T) {
	ctx := context.Background()
	deps, fake := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "approle-vault")
	cfg.AuthToken = ""
	cfg.AppRoleID = "role1"
	cfg.SecretID = "secret1"
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)

	var seen *secretmanager.VaultConfig
	fake.Handle(delegate.OpValidateConfig, func(req delegate.Request) (*delegate.Response, error) {
		seen, _ = req.Config.(*secretmanager.VaultConfig)
		return &delegate.Response{}, nil
	})

	update := testVaultConfig("acct1", "approle-vault")
	update.ID = id
	update.AuthToken = secretmanager.Mask
	update.AppRoleID = "role2"
	update.SecretID = secretmanager.Mask
	_, err = a.Update(ctx, update)
	require.NoError(t, err)

	require.NotNil(t, seen, "changing the AppRole id forces re-validation")
	assert.Equal(t, "secret1", seen.SecretID, "re-login and validation see the stored secret id, not the mask")
	assert.Equal(t, "live-token", seen.AuthToken)
}

func TestDuplicateNameConflict(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	_, err := a.Save(ctx, testVaultConfig("acct1", "team-vault"))
	require.NoError(t, err)

	_, err = a.Save(ctx, testVaultConfig("acct1", "team-vault"))
	var conflict smerrors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	// Same name in a different account is fine.
	_, err = a.Save(ctx, testVaultConfig("acct2", "team-vault"))
	assert.NoError(t, err)
}

func TestDeleteBlockedWhileSecretsRemain(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewKMSAdapter(deps)

	cfg := &secretmanager.KMSConfig{
		AccessKey: "AKIA123", SecretKey: "shh",
		KmsArn: "arn:aws:kms:us-east-1:1:key/k", Region: "us-east-1",
	}
	cfg.AccountID = "acct1"
	cfg.Name = "prod-kms"
	id, err := a.Save(ctx, cfg)
	require.NoError(t, err)

	// A user secret owned by the manager, beyond the credential fragments.
	rec := &secretmanager.EncryptedData{
		AccountID:      "acct1",
		Name:           "db-password",
		EncryptionType: secretmanager.TypeKMS,
		KmsID:          id,
	}
	_, err = deps.Records.Save(ctx, rec)
	require.NoError(t, err)

	err = a.Delete(ctx, "acct1", id)
	var refErr smerrors.ReferentialIntegrityError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "prod-kms", refErr.ManagerName)
	assert.Equal(t, 1, refErr.Count)

	// After the secret is gone the manager deletes cleanly, taking its
	// credential fragments with it.
	require.NoError(t, deps.Records.DeleteByID(ctx, rec.ID))
	require.NoError(t, a.Delete(ctx, "acct1", id))
	_, err = deps.Docs.Get(ctx, secretmanager.KindSecretManagerConfig, id)
	assert.Error(t, err)
}

func TestDecryptConfigSecretsMasks(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "team-vault")
	_, err := a.Save(ctx, cfg)
	require.NoError(t, err)

	masked := cfg.Clone().(*secretmanager.VaultConfig)
	require.NoError(t, a.DecryptConfigSecrets(ctx, masked, true))
	assert.Equal(t, secretmanager.Mask, masked.AuthToken)

	decrypted := cfg.Clone().(*secretmanager.VaultConfig)
	require.NoError(t, a.DecryptConfigSecrets(ctx, decrypted, false))
	assert.Equal(t, "tok1", decrypted.AuthToken)
}

func TestLocalImplicitManagerCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewLocalAdapter(deps)

	err := a.Delete(ctx, "acct1", "acct1")
	var valErr smerrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestTemplatizedDefaultRejected(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig("acct1", "tmpl-vault")
	cfg.TemplatizedList = []string{"authToken"}
	cfg.Default = true
	_, err := a.Save(ctx, cfg)
	var valErr smerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "isDefault", valErr.Field)
}

func TestGlobalScopeRestrictedToKMSTypes(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(t)
	a := NewVaultAdapter(deps)

	cfg := testVaultConfig(secretmanager.GlobalAccountID, "global-vault")
	_, err := a.Save(ctx, cfg)
	var valErr smerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "accountId", valErr.Field)
}
