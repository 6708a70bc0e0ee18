package backends

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/validation"
	"github.com/systmms/secretmgr/pkg/secretmanager"

	"github.com/systmms/secretmgr/internal/audit"
)

// LocalAdapter manages the symmetric local-encryption backend. Every
// account carries an implicit local manager with id equal to the
// account id; explicit local managers can additionally be created.
type LocalAdapter struct {
	base
}

// NewLocalAdapter creates the adapter.
func NewLocalAdapter(deps *Deps) *LocalAdapter {
	return &LocalAdapter{base: base{Deps: deps, settingType: string(secretmanager.TypeLocal)}}
}

func (a *LocalAdapter) Save(ctx context.Context, cfg secretmanager.Config) (string, error) {
	lc, err := asLocal(cfg)
	if err != nil {
		return "", err
	}
	if err := a.checkCreate(ctx, lc); err != nil {
		return "", err
	}
	if err := validation.ManagerName(lc.GetName()); err != nil {
		return "", err
	}
	if err := a.ValidateConfig(ctx, lc); err != nil {
		return "", err
	}
	ensureID(lc)
	id, err := a.persist(ctx, lc)
	if err != nil {
		return "", err
	}
	if err := a.Audit.ReportForAuditing(ctx, lc.GetAccountID(), nil, lc, audit.ChangeTypeCreate); err != nil {
		a.Logger.Warn("audit report failed for manager %s: %v", lc.GetName(), err)
	}
	return id, nil
}

func (a *LocalAdapter) Update(ctx context.Context, cfg secretmanager.Config) (string, error) {
	lc, err := asLocal(cfg)
	if err != nil {
		return "", err
	}
	prev, err := a.loadConfig(ctx, lc.GetID())
	if err != nil {
		return "", err
	}
	snapshot := prev.Clone()
	if err := a.checkUpdate(ctx, lc, prev); err != nil {
		return "", err
	}
	if err := validation.ManagerName(lc.GetName()); err != nil {
		return "", err
	}
	id, err := a.persist(ctx, lc)
	if err != nil {
		return "", err
	}
	if err := a.Audit.ReportForAuditing(ctx, lc.GetAccountID(), snapshot, lc, audit.ChangeTypeUpdate); err != nil {
		a.Logger.Warn("audit report failed for manager %s: %v", lc.GetName(), err)
	}
	return id, nil
}

// DecryptConfigSecrets is a no-op: the local manager holds no
// credential sub-fields.
func (a *LocalAdapter) DecryptConfigSecrets(ctx context.Context, cfg secretmanager.Config, maskSecrets bool) error {
	_, err := asLocal(cfg)
	return err
}

// ValidateConfig round-trips a random throwaway value through the codec.
func (a *LocalAdapter) ValidateConfig(ctx context.Context, cfg secretmanager.Config) error {
	lc, err := asLocal(cfg)
	if err != nil {
		return err
	}
	probe := make([]byte, 16)
	if _, err := rand.Read(probe); err != nil {
		return err
	}
	plaintext := hex.EncodeToString(probe)
	rec, err := a.Codec.EncryptLocal(lc.GetAccountID(), []byte(plaintext))
	if err != nil {
		return smerrors.SecretManagementError{Message: "local encryption check failed", Err: err}
	}
	out, err := a.Codec.DecryptLocal(rec)
	if err != nil || string(out) != plaintext {
		return smerrors.SecretManagementError{Message: "local encryption check failed", Err: err}
	}
	return nil
}

func (a *LocalAdapter) Delete(ctx context.Context, accountID, configID string) error {
	if configID == accountID {
		return smerrors.ValidationError{
			Field:   "id",
			Message: "the account's implicit local secret manager cannot be deleted",
		}
	}
	return a.deleteConfig(ctx, accountID, configID)
}

func asLocal(cfg secretmanager.Config) (*secretmanager.LocalConfig, error) {
	lc, ok := cfg.(*secretmanager.LocalConfig)
	if !ok {
		return nil, smerrors.ProgrammingError{Message: "config is not a LOCAL secret manager"}
	}
	return lc, nil
}
