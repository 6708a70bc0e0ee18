package secretmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependent(t *testing.T) {
	orig := &VaultConfig{
		URL:              "https://vault.example.com",
		AuthToken:        "ref1",
		SecretEngineName: "secret",
	}
	orig.AccountID = "acct1"
	orig.Name = "team-vault"
	orig.UsageScopes = []string{"prod"}
	orig.NGMetadata = &NGMetadata{Identifier: "team_vault"}

	copied := orig.Clone().(*VaultConfig)
	copied.AuthToken = "ref2"
	copied.UsageScopes[0] = "dev"
	copied.NGMetadata.Identifier = "changed"
	copied.SetName("renamed")

	assert.Equal(t, "ref1", orig.AuthToken)
	assert.Equal(t, []string{"prod"}, orig.UsageScopes)
	assert.Equal(t, "team_vault", orig.NGMetadata.Identifier)
	assert.Equal(t, "team-vault", orig.GetName())
}

func TestCustomConfigCredentialFields(t *testing.T) {
	cfg := &CustomConfig{
		TemplateID: "tmpl1",
		Params: []NameValue{
			{Name: "endpoint", Value: "https://x"},
			{Name: "apiKey", Value: "ref1", Secret: true},
		},
	}

	fields := cfg.CredentialFields()
	require.Len(t, fields, 1, "only secret params are credentials")
	assert.Equal(t, "apiKey", fields[0].Name)

	// The ref points into the live params slice.
	*fields[0].Ref = "ref2"
	assert.Equal(t, "ref2", cfg.Params[1].Value)

	copied := cfg.Clone().(*CustomConfig)
	copied.Params[1].Value = "ref3"
	assert.Equal(t, "ref2", cfg.Params[1].Value, "clone params are detached")
}

func TestEncryptionTypeCapabilities(t *testing.T) {
	assert.True(t, TypeGCPKMS.SupportsGlobal())
	assert.True(t, TypeKMS.SupportsGlobal())
	assert.True(t, TypeLocal.SupportsGlobal())
	assert.False(t, TypeVault.SupportsGlobal())
	assert.False(t, TypeAzureVault.SupportsGlobal())

	for _, typ := range []EncryptionType{TypeCyberArk, TypeCustom} {
		assert.False(t, typ.CanTransitionFrom(), "%s is read-only for migration", typ)
		assert.False(t, typ.CanTransitionTo(), "%s cannot receive migrated secrets", typ)
	}
	assert.True(t, TypeLocal.CanTransitionFrom())
	assert.True(t, TypeVault.CanTransitionTo())
}

func TestNewLocalConfig(t *testing.T) {
	cfg := NewLocalConfig("acct1")
	assert.Equal(t, "acct1", cfg.GetID(), "the implicit manager shares the account id")
	assert.Equal(t, "acct1", cfg.GetAccountID())
	assert.Equal(t, TypeLocal, cfg.EncryptionType())
	assert.Empty(t, cfg.CredentialFields())
	assert.False(t, cfg.IsGlobal())
}

func TestAddParentReplacesSameOwnerField(t *testing.T) {
	rec := &EncryptedData{}

	rec.AddParent(ParentRef{OwnerID: "mgr1", FieldName: "authToken", SettingType: "VAULT"})
	rec.AddParent(ParentRef{OwnerID: "mgr1", FieldName: "secretId", SettingType: "VAULT"})
	rec.AddParent(ParentRef{OwnerID: "mgr1", FieldName: "authToken", SettingType: "VAULT"})
	require.Len(t, rec.Parents, 2, "same owner and field never duplicates")

	rec.AddParent(ParentRef{OwnerID: "mgr2", FieldName: "authToken", SettingType: "VAULT"})
	assert.Len(t, rec.Parents, 3)

	rec.RemoveParent("mgr1", "authToken")
	assert.Len(t, rec.Parents, 2)
	rec.RemoveParent("mgr1", "nonexistent")
	assert.Len(t, rec.Parents, 2, "removing an absent reference is a no-op")
}

func TestEncryptedDataCloneIsIndependent(t *testing.T) {
	rec := &EncryptedData{
		ID:             "rec1",
		AccountID:      "acct1",
		Name:           "db-password",
		EncryptionType: TypeLocal,
		EncryptedValue: []byte{0x01, 0x02},
		Parents:        []ParentRef{{OwnerID: "mgr1", FieldName: "authToken"}},
		UsageScopes:    []string{"prod"},
	}

	copied := rec.Clone()
	copied.EncryptedValue[0] = 0xff
	copied.Parents[0].OwnerID = "other"
	copied.UsageScopes[0] = "dev"

	assert.Equal(t, byte(0x01), rec.EncryptedValue[0])
	assert.Equal(t, "mgr1", rec.Parents[0].OwnerID)
	assert.Equal(t, []string{"prod"}, rec.UsageScopes)
}

func TestConfigBaseFieldLookup(t *testing.T) {
	cfg := &VaultConfig{}
	cfg.AccountID = "acct1"
	cfg.Name = "team-vault"
	cfg.Default = true

	v, ok := cfg.Field("accountId")
	require.True(t, ok)
	assert.Equal(t, "acct1", v)
	v, ok = cfg.Field("ng")
	require.True(t, ok)
	assert.Equal(t, false, v)
	_, ok = cfg.Field("unknown")
	assert.False(t, ok)
}
