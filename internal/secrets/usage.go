package secrets

import (
	"context"
	"time"

	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/delegate"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// KindUsageLog is the document-store kind for usage rows.
const KindUsageLog = "secretUsageLogs"

// UsageLog records one read of a secret, with the workflow execution
// that triggered it when known.
type UsageLog struct {
	ID                  string    `yaml:"id"`
	AccountID           string    `yaml:"accountId"`
	EncryptedDataID     string    `yaml:"encryptedDataId"`
	WorkflowExecutionID string    `yaml:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `yaml:"createdAt"`
}

func (u *UsageLog) Kind() string    { return KindUsageLog }
func (u *UsageLog) GetID() string   { return u.ID }
func (u *UsageLog) SetID(id string) { u.ID = id }

func (u *UsageLog) Field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return u.ID, true
	case "accountId":
		return u.AccountID, true
	case "encryptedDataId":
		return u.EncryptedDataID, true
	}
	return nil, false
}

// recordUsage writes a usage row best-effort: a failed write never
// fails the read that triggered it. Reads outside a workflow execution
// leave no row.
func (s *Service) recordUsage(ctx context.Context, accountID, recordID, workflowExecutionID string) {
	if workflowExecutionID == "" {
		return
	}
	row := &UsageLog{
		AccountID:           accountID,
		EncryptedDataID:     recordID,
		WorkflowExecutionID: workflowExecutionID,
		CreatedAt:           time.Now().UTC(),
	}
	if _, err := s.docs.Save(ctx, row); err != nil {
		s.logger.Warn("could not record usage log for secret %s: %v", recordID, err)
	}
}

// GetUsageLogs returns the usage history of one secret.
func (s *Service) GetUsageLogs(ctx context.Context, accountID, recordID string) ([]*UsageLog, error) {
	docs, err := s.docs.Query(KindUsageLog).
		Filter("accountId", accountID).
		Filter("encryptedDataId", recordID).
		List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UsageLog, 0, len(docs))
	for _, doc := range docs {
		if row, ok := doc.(*UsageLog); ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// GetChangeLogs returns the change history of one secret. For
// Vault-backed secrets the backend's own version history is appended
// after the locally recorded rows.
func (s *Service) GetChangeLogs(ctx context.Context, accountID, recordID string) ([]*audit.ChangeLog, error) {
	docs, err := s.docs.Query(audit.KindChangeLog).
		Filter("accountId", accountID).
		Filter("entityId", recordID).
		List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*audit.ChangeLog, 0, len(docs))
	for _, doc := range docs {
		if row, ok := doc.(*audit.ChangeLog); ok {
			out = append(out, row)
		}
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return out, nil
	}
	if rec.EncryptionType != secretmanager.TypeVault {
		return out, nil
	}
	cfg, err := s.managerFor(ctx, accountID, rec)
	if err != nil {
		s.logger.Warn("could not load manager for change history of '%s': %v", rec.Name, err)
		return out, nil
	}
	resp, err := s.delegate.Execute(ctx, delegate.Request{
		Operation: delegate.OpGetChangeLogs,
		AccountID: accountID,
		Config:    cfg,
		Payload:   map[string]interface{}{"path": rec.Path, "name": rec.Name},
	})
	if err != nil {
		s.logger.Warn("could not fetch backend change history of '%s': %v", rec.Name, err)
		return out, nil
	}
	raw, _ := resp.Data["changeLogs"].([]map[string]interface{})
	for _, e := range raw {
		row := &audit.ChangeLog{
			AccountID:  accountID,
			EntityID:   recordID,
			EntityName: rec.Name,
			ChangeType: audit.ChangeTypeUpdate,
		}
		row.Description, _ = e["description"].(string)
		if ts, ok := e["createdAt"].(time.Time); ok {
			row.CreatedAt = ts
		}
		out = append(out, row)
	}
	return out, nil
}
