package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretmgr/internal/accounts"
	"github.com/systmms/secretmgr/internal/alerts"
	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/backends"
	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/delegate"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/internal/rbac"
	"github.com/systmms/secretmgr/internal/recordstore"
	"github.com/systmms/secretmgr/internal/registry"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

type fixture struct {
	svc     *Service
	reg     *registry.Registry
	records *recordstore.Store
	docs    *docstore.MemoryStore
	fake    *delegate.FakeDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.New(false, true)
	docs := docstore.NewMemoryStore()
	c := codec.New()
	records := recordstore.New(docs, c, logger)
	fake := delegate.NewFakeDispatcher()
	exec := delegate.NewExecutor(fake, logger, delegate.WithSleep(func(time.Duration) {}))
	deps := &backends.Deps{
		Docs:     docs,
		Codec:    c,
		Records:  records,
		Delegate: exec,
		RBAC:     rbac.AllowAll{},
		Audit:    audit.NewLogRecorder(docs, logger),
		Alerts:   alerts.NewLogService(logger),
		Accounts: accounts.NewMemoryService(),
		Logger:   logger,
	}
	reg := registry.New(deps)
	return &fixture{
		svc:     New(docs, records, c, reg, exec, rbac.AllowAll{}, logger),
		reg:     reg,
		records: records,
		docs:    docs,
		fake:    fake,
	}
}

// saveVaultManager stores a vault manager whose remote side the fake
// dispatcher plays: create returns a deterministic path, fetch echoes
// the values created so far.
func (f *fixture) saveVaultManager(t *testing.T, accountID string, isDefault bool) string {
	t.Helper()
	remote := map[string]string{}
	f.fake.Handle(delegate.OpCreateSecret, func(req delegate.Request) (*delegate.Response, error) {
		name, _ := req.Payload["name"].(string)
		value, _ := req.Payload["value"].(string)
		path := "secretmgr/" + name
		remote[path] = value
		return &delegate.Response{Data: map[string]interface{}{"path": path}}, nil
	})
	f.fake.Handle(delegate.OpFetchSecret, func(req delegate.Request) (*delegate.Response, error) {
		path, _ := req.Payload["path"].(string)
		return &delegate.Response{Data: map[string]interface{}{"value": remote[path]}}, nil
	})

	cfg := &secretmanager.VaultConfig{
		URL:                 "https://vault.example.com:8200",
		AuthToken:           "tok1",
		SecretEngineName:    "secret",
		SecretEngineVersion: 2,
	}
	cfg.AccountID = accountID
	cfg.Name = "team-vault"
	cfg.Default = isDefault
	id, err := f.reg.Save(context.Background(), cfg)
	require.NoError(t, err)
	return id
}

func TestSaveAndFetchLocalDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.SaveSecretText(ctx, "acct1", "db-password", "hunter2", []string{"prod"})
	require.NoError(t, err)

	rec, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, secretmanager.TypeLocal, rec.EncryptionType)
	assert.Equal(t, "acct1", rec.KmsID, "implicit local manager owns the record")
	assert.Equal(t, []string{"prod"}, rec.UsageScopes)

	value, err := f.svc.FetchSecretValue(ctx, "acct1", id)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(value))

	// The name resolves too.
	value, err = f.svc.FetchSecretValue(ctx, "acct1", "db-password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(value))

	logs, err := f.svc.GetChangeLogs(ctx, "acct1", id)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.ChangeTypeCreate, logs[0].ChangeType)
}

func TestSaveDuplicateNameRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SaveSecretText(ctx, "acct1", "db-password", "one", nil)
	require.NoError(t, err)

	_, err = f.svc.SaveSecretText(ctx, "acct1", "db-password", "two", nil)
	var conflict smerrors.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSaveThroughVaultDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	vaultID := f.saveVaultManager(t, "acct1", true)

	id, err := f.svc.SaveSecretText(ctx, "acct1", "api-key", "k3y", nil)
	require.NoError(t, err)

	rec, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, secretmanager.TypeVault, rec.EncryptionType)
	assert.Equal(t, vaultID, rec.KmsID)
	assert.Equal(t, "secretmgr/api-key", rec.Path)
	assert.Empty(t, rec.EncryptedValue, "remote secrets hold no local ciphertext")

	// The fetch goes through the delegate with plaintext credentials.
	var fetchCfg secretmanager.Config
	f.fake.Handle(delegate.OpFetchSecret, func(req delegate.Request) (*delegate.Response, error) {
		fetchCfg = req.Config
		return &delegate.Response{Data: map[string]interface{}{"value": "k3y"}}, nil
	})
	value, err := f.svc.FetchSecretValue(ctx, "acct1", id)
	require.NoError(t, err)
	assert.Equal(t, "k3y", string(value))

	vc, ok := fetchCfg.(*secretmanager.VaultConfig)
	require.True(t, ok)
	assert.Equal(t, "tok1", vc.AuthToken, "delegate sees the decrypted token")
}

func TestUpdateMaskedValueKeepsCiphertext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.SaveSecretText(ctx, "acct1", "db-password", "hunter2", nil)
	require.NoError(t, err)
	before, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	key := before.EncryptionKey

	require.NoError(t, f.svc.UpdateSecretText(ctx, "acct1", id, "db-password-v2", secretmanager.Mask))

	after, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "db-password-v2", after.Name)
	assert.Equal(t, key, after.EncryptionKey, "masked update never touches the ciphertext")

	value, err := f.svc.FetchSecretValue(ctx, "acct1", id)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(value))
}

func TestDeleteRefusedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.SaveSecretText(ctx, "acct1", "vault-token", "tok", nil)
	require.NoError(t, err)
	rec, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	rec.AddParent(secretmanager.ParentRef{OwnerID: "mgr1", OwnerType: "SECRET_MANAGER", FieldName: "authToken"})
	_, err = f.records.Save(ctx, rec)
	require.NoError(t, err)

	err = f.svc.DeleteSecret(ctx, "acct1", id)
	var smErr smerrors.SecretManagementError
	require.ErrorAs(t, err, &smErr)

	rec.RemoveParent("mgr1", "authToken")
	_, err = f.records.Save(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSecret(ctx, "acct1", id))

	_, err = f.records.GetByID(ctx, id)
	assert.Error(t, err)
}

func TestUsageLogWrittenOnRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.SaveSecretText(ctx, "acct1", "db-password", "hunter2", nil)
	require.NoError(t, err)

	_, err = f.svc.EncryptedDataDetails(ctx, "acct1", id, "exec-42")
	require.NoError(t, err)

	logs, err := f.svc.GetUsageLogs(ctx, "acct1", id)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "exec-42", logs[0].WorkflowExecutionID)

	// Reads outside a workflow execution leave no usage row.
	_, err = f.svc.FetchSecretValue(ctx, "acct1", id)
	require.NoError(t, err)
	logs, err = f.svc.GetUsageLogs(ctx, "acct1", id)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestGlobalKMSSecretReencryptsLocallyOnRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	gcp := &secretmanager.GCPKMSConfig{
		ProjectID:   "proj",
		Region:      "us",
		KeyRing:     "ring",
		KeyName:     "key",
		Credentials: `{"type":"service_account","project_id":"proj","private_key":"k","client_email":"e@proj.iam"}`,
	}
	gcp.AccountID = secretmanager.GlobalAccountID
	gcp.Name = "global-gcp"
	globalID, err := f.reg.Save(ctx, gcp)
	require.NoError(t, err)

	rec := &secretmanager.EncryptedData{
		AccountID:      "acct1",
		Name:           "legacy-secret",
		EncryptionType: secretmanager.TypeGCPKMS,
		KmsID:          globalID,
		Path:           "Y2lwaGVydGV4dA==",
	}
	id, err := f.records.Save(ctx, rec)
	require.NoError(t, err)

	f.fake.Handle(delegate.OpFetchSecret, func(req delegate.Request) (*delegate.Response, error) {
		return &delegate.Response{Data: map[string]interface{}{"value": "legacy-value"}}, nil
	})

	details, err := f.svc.EncryptedDataDetails(ctx, "acct1", id, "")
	require.NoError(t, err)
	assert.Equal(t, secretmanager.TypeLocal, details.Record.EncryptionType,
		"a read moves the secret off the global manager")
	assert.Equal(t, "acct1", details.Record.KmsID)
	assert.Empty(t, details.Record.Path)
	assert.Equal(t, id, details.Record.ID, "the record id survives re-encryption")

	value, err := f.records.Decrypt(details.Record)
	require.NoError(t, err)
	assert.Equal(t, "legacy-value", string(value))

	// The stored row moved too.
	stored, err := f.records.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, secretmanager.TypeLocal, stored.EncryptionType)
}

func TestGlobalKMSReencryptionFailureKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	gcp := &secretmanager.GCPKMSConfig{
		ProjectID:   "proj",
		Region:      "us",
		KeyRing:     "ring",
		KeyName:     "key",
		Credentials: `{"type":"service_account","project_id":"proj","private_key":"k","client_email":"e@proj.iam"}`,
	}
	gcp.AccountID = secretmanager.GlobalAccountID
	gcp.Name = "global-gcp"
	globalID, err := f.reg.Save(ctx, gcp)
	require.NoError(t, err)

	rec := &secretmanager.EncryptedData{
		AccountID:      "acct1",
		Name:           "legacy-secret",
		EncryptionType: secretmanager.TypeGCPKMS,
		KmsID:          globalID,
		Path:           "Y2lwaGVydGV4dA==",
	}
	id, err := f.records.Save(ctx, rec)
	require.NoError(t, err)

	f.fake.Handle(delegate.OpFetchSecret, func(req delegate.Request) (*delegate.Response, error) {
		return nil, assert.AnError
	})

	details, err := f.svc.EncryptedDataDetails(ctx, "acct1", id, "")
	require.NoError(t, err, "a failed migration must not fail the read path")
	assert.Equal(t, secretmanager.TypeGCPKMS, details.Record.EncryptionType)
	assert.Equal(t, globalID, details.Record.KmsID)
}

func TestTransitionSecretsLocalToVault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SaveSecretText(ctx, "acct1", "alpha", "a-value", nil)
	require.NoError(t, err)
	_, err = f.svc.SaveSecretText(ctx, "acct1", "beta", "b-value", nil)
	require.NoError(t, err)

	vaultID := f.saveVaultManager(t, "acct1", false)

	summary, err := f.svc.TransitionSecrets(ctx, "acct1", "acct1", vaultID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Migrated)
	assert.Zero(t, summary.Failed)

	migrated, err := f.records.ListByManager(ctx, "acct1", vaultID, secretmanager.TypeVault)
	require.NoError(t, err)
	require.Len(t, migrated, 2)
	for _, rec := range migrated {
		assert.Empty(t, rec.EncryptedValue)
		assert.NotEmpty(t, rec.Path)
	}

	value, err := f.svc.FetchSecretValue(ctx, "acct1", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "a-value", string(value))
}

func TestTransitionSameManagerRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.TransitionSecrets(ctx, "acct1", "acct1", "acct1")
	var valErr smerrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestTransitionContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SaveSecretText(ctx, "acct1", "alpha", "a-value", nil)
	require.NoError(t, err)
	_, err = f.svc.SaveSecretText(ctx, "acct1", "beta", "b-value", nil)
	require.NoError(t, err)

	vaultID := f.saveVaultManager(t, "acct1", false)
	f.fake.Handle(delegate.OpCreateSecret, func(req delegate.Request) (*delegate.Response, error) {
		name, _ := req.Payload["name"].(string)
		if name == "alpha" {
			// Fails every retry attempt: alpha stays on the source manager.
			return nil, assert.AnError
		}
		return &delegate.Response{Data: map[string]interface{}{"path": "secretmgr/" + name}}, nil
	})

	summary, err := f.svc.TransitionSecrets(ctx, "acct1", "acct1", vaultID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Migrated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "alpha")

	// The failed secret stays readable on its original manager.
	value, err := f.svc.FetchSecretValue(ctx, "acct1", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "a-value", string(value))
}

func TestTransitionErrorsRedactManagerCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SaveSecretText(ctx, "acct1", "alpha", "a-value", nil)
	require.NoError(t, err)

	vaultID := f.saveVaultManager(t, "acct1", false)
	f.fake.Handle(delegate.OpCreateSecret, func(req delegate.Request) (*delegate.Response, error) {
		// Backends tend to echo the request, credentials included.
		return nil, errors.New("vault: write with token tok1 denied")
	})

	summary, err := f.svc.TransitionSecrets(ctx, "acct1", "acct1", vaultID)
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
	assert.NotContains(t, summary.Errors[0], "tok1", "reported errors must not leak the manager's token")
	assert.Contains(t, summary.Errors[0], logging.Redacted)
}
