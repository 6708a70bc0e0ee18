package secrets

import (
	"context"

	"github.com/systmms/secretmgr/internal/audit"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// TransitionSummary reports the outcome of a bulk secret migration.
// Failed secrets keep their original manager; Errors carries one line
// per failure.
type TransitionSummary struct {
	Total    int
	Migrated int
	Failed   int
	Errors   []string
}

// TransitionSecrets migrates every secret owned by one manager to
// another, best-effort per secret: a failure leaves that secret on the
// source manager and the migration continues. The source and target
// types must both support transition, and the target's usage scopes
// must cover the source's.
func (s *Service) TransitionSecrets(ctx context.Context, accountID, fromID, toID string) (*TransitionSummary, error) {
	if fromID == toID {
		return nil, smerrors.ValidationError{
			Field:   "toSecretManagerId",
			Message: "source and target secret managers are the same",
		}
	}
	from, err := s.registry.GetByID(ctx, accountID, fromID, false)
	if err != nil {
		return nil, err
	}
	to, err := s.registry.GetByID(ctx, accountID, toID, false)
	if err != nil {
		return nil, err
	}
	if !from.EncryptionType().CanTransitionFrom() {
		return nil, smerrors.ValidationError{
			Field:   "fromSecretManagerId",
			Message: "secrets cannot be migrated away from a " + string(from.EncryptionType()) + " manager",
		}
	}
	if !to.EncryptionType().CanTransitionTo() {
		return nil, smerrors.ValidationError{
			Field:   "toSecretManagerId",
			Message: "secrets cannot be migrated into a " + string(to.EncryptionType()) + " manager",
		}
	}
	ok, err := s.rbac.AreUsageScopesSubset(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, smerrors.AuthorizationError{
			AccountID: accountID,
			Action:    "migrate secrets to a manager with narrower usage scopes",
		}
	}

	recs, err := s.records.ListByManager(ctx, accountID, fromID, from.EncryptionType())
	if err != nil {
		return nil, err
	}

	// Both configs hold decrypted credentials here, and backend errors
	// tend to echo the request; scrub them out of anything we report.
	creds := credentialValues(from, to)

	summary := &TransitionSummary{Total: len(recs)}
	for _, rec := range recs {
		if err := s.transitionOne(ctx, accountID, rec, from, to); err != nil {
			reason := logging.Redact(err.Error(), creds)
			summary.Failed++
			summary.Errors = append(summary.Errors, rec.Name+": "+reason)
			s.logger.Warn("could not migrate secret '%s': %s", rec.Name, reason)
			continue
		}
		summary.Migrated++
	}
	s.logger.Info("migrated %d/%d secrets from %s to %s",
		summary.Migrated, summary.Total, from.GetName(), to.GetName())
	return summary, nil
}

// credentialValues collects the decrypted credential values of the
// given configs, for scrubbing messages that echo them.
func credentialValues(cfgs ...secretmanager.Config) []string {
	var vals []string
	for _, cfg := range cfgs {
		for _, f := range cfg.CredentialFields() {
			vals = append(vals, *f.Ref)
		}
	}
	return vals
}

// transitionOne moves one record, preserving its id so references held
// by configuration fields stay valid.
func (s *Service) transitionOne(ctx context.Context, accountID string, rec *secretmanager.EncryptedData, from, to secretmanager.Config) error {
	plaintext, err := s.fetch(ctx, &Details{Record: rec, Config: from})
	if err != nil {
		return err
	}

	oldPath := rec.Path
	if to.EncryptionType() == secretmanager.TypeLocal {
		fresh, err := s.codec.EncryptLocal(accountID, plaintext)
		if err != nil {
			return err
		}
		rec.EncryptionKey = fresh.EncryptionKey
		rec.EncryptedValue = fresh.EncryptedValue
		rec.Path = ""
	} else {
		path, err := s.remoteCreate(ctx, to, rec.Name, plaintext)
		if err != nil {
			return err
		}
		rec.Path = path
		rec.EncryptionKey = ""
		rec.EncryptedValue = nil
	}
	rec.EncryptionType = to.EncryptionType()
	rec.KmsID = to.GetID()
	if _, err := s.records.Save(ctx, rec); err != nil {
		return err
	}

	if oldPath != "" {
		s.remoteDeleteBestEffort(ctx, from, oldPath, rec.Name)
	}
	s.recordChange(ctx, accountID, rec.ID, rec.Name, audit.ChangeTypeUpdate,
		"secret migrated from "+from.GetName()+" to "+to.GetName())
	return nil
}
