package recordstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/docstore"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

func newTestStore() *Store {
	return New(docstore.NewMemoryStore(), codec.New(), logging.New(false, true))
}

func TestUpsertByOwnerNameKeepsRecordID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	parent := secretmanager.ParentRef{
		OwnerID:     "mgr1",
		OwnerType:   "SECRET_MANAGER",
		FieldName:   "authToken",
		SettingType: string(secretmanager.TypeVault),
	}

	id1, err := s.UpsertByOwnerName(ctx, "acct1", "mgr1", "_authToken", []byte("first"), parent, "mgr1")
	require.NoError(t, err)

	rec1, err := s.GetByID(ctx, id1)
	require.NoError(t, err)
	firstKey := rec1.EncryptionKey

	id2, err := s.UpsertByOwnerName(ctx, "acct1", "mgr1", "_authToken", []byte("second"), parent, "mgr1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "re-encrypting a credential must not change its record id")

	rec2, err := s.GetByID(ctx, id2)
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, rec2.EncryptionKey, "key rotates on every write")

	out, err := s.Decrypt(rec2)
	require.NoError(t, err)
	assert.Equal(t, "second", string(out))
}

func TestCountByManager(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	parent := secretmanager.ParentRef{OwnerID: "mgr1", OwnerType: "SECRET_MANAGER", FieldName: "f", SettingType: string(secretmanager.TypeVault)}

	for _, name := range []string{"_a", "_b"} {
		_, err := s.UpsertByOwnerName(ctx, "acct1", "mgr1", name, []byte("v"), parent, "mgr1")
		require.NoError(t, err)
	}
	_, err := s.UpsertByOwnerName(ctx, "acct1", "mgr2", "_c", []byte("v"), parent, "mgr2")
	require.NoError(t, err)

	count, err := s.CountByManager(ctx, "acct1", "mgr1", secretmanager.TypeLocal)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountByManager(ctx, "acct1", "mgr2", secretmanager.TypeLocal)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.CountByManager(ctx, "other", "mgr1", secretmanager.TypeLocal)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteOwnedBy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	parent := secretmanager.ParentRef{OwnerID: "mgr1", OwnerType: "SECRET_MANAGER", FieldName: "f", SettingType: string(secretmanager.TypeVault)}

	id, err := s.UpsertByOwnerName(ctx, "acct1", "mgr1", "_a", []byte("v"), parent, "mgr1")
	require.NoError(t, err)
	other := secretmanager.ParentRef{OwnerID: "mgr2", OwnerType: "SECRET_MANAGER", FieldName: "f", SettingType: string(secretmanager.TypeVault)}
	keep, err := s.UpsertByOwnerName(ctx, "acct1", "mgr2", "_b", []byte("v"), other, "mgr2")
	require.NoError(t, err)

	require.NoError(t, s.DeleteOwnedBy(ctx, "acct1", "mgr1"))

	_, err = s.GetByID(ctx, id)
	assert.Error(t, err, "owned fragment is gone")
	_, err = s.GetByID(ctx, keep)
	assert.NoError(t, err, "other manager's fragment survives")
}

func TestGetByNameScopedToAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	parent := secretmanager.ParentRef{OwnerID: "mgr1", OwnerType: "SECRET_MANAGER", FieldName: "f", SettingType: string(secretmanager.TypeVault)}

	_, err := s.UpsertByOwnerName(ctx, "acct1", "mgr1", "_a", []byte("v"), parent, "mgr1")
	require.NoError(t, err)

	_, err = s.GetByName(ctx, "acct1", "mgr1_a")
	assert.NoError(t, err)
	_, err = s.GetByName(ctx, "acct2", "mgr1_a")
	assert.Error(t, err, "records are account-scoped")
}
