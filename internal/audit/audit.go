// Package audit records configuration change events. The interface
// follows the collaborator contract; the default Recorder writes
// change-log documents and an informational log line.
package audit

import (
	"context"
	"time"

	"github.com/systmms/secretmgr/internal/docstore"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Change types reported for manager configs.
const (
	ChangeTypeCreate = "CREATE"
	ChangeTypeUpdate = "UPDATE"
	ChangeTypeDelete = "DELETE"
)

// KindChangeLog is the document-store kind for change-log rows.
const KindChangeLog = "secretChangeLogs"

// ChangeLog is one audit row for a manager or secret mutation.
type ChangeLog struct {
	ID          string    `yaml:"id"`
	AccountID   string    `yaml:"accountId"`
	EntityID    string    `yaml:"entityId"`
	EntityName  string    `yaml:"entityName"`
	ChangeType  string    `yaml:"changeType"`
	Description string    `yaml:"description"`
	CreatedAt   time.Time `yaml:"createdAt"`
}

func (c *ChangeLog) Kind() string    { return KindChangeLog }
func (c *ChangeLog) GetID() string   { return c.ID }
func (c *ChangeLog) SetID(id string) { c.ID = id }

func (c *ChangeLog) Field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "accountId":
		return c.AccountID, true
	case "entityId":
		return c.EntityID, true
	}
	return nil, false
}

// Recorder is the audit collaborator interface.
type Recorder interface {
	// ReportForAuditing records a create or update, with the pre-change
	// snapshot for updates.
	ReportForAuditing(ctx context.Context, accountID string, oldCfg, newCfg secretmanager.Config, changeType string) error

	// ReportDeleteForAuditing records a deletion.
	ReportDeleteForAuditing(ctx context.Context, accountID string, cfg secretmanager.Config) error
}

// LogRecorder persists change-log rows to the document store.
type LogRecorder struct {
	docs   docstore.Store
	logger *logging.Logger
}

// NewLogRecorder creates the default recorder.
func NewLogRecorder(docs docstore.Store, logger *logging.Logger) *LogRecorder {
	return &LogRecorder{docs: docs, logger: logger}
}

func (r *LogRecorder) ReportForAuditing(ctx context.Context, accountID string, oldCfg, newCfg secretmanager.Config, changeType string) error {
	desc := "secret manager " + newCfg.GetName()
	if oldCfg != nil && oldCfg.GetName() != newCfg.GetName() {
		desc = "secret manager renamed from " + oldCfg.GetName() + " to " + newCfg.GetName()
	}
	row := &ChangeLog{
		AccountID:   accountID,
		EntityID:    newCfg.GetID(),
		EntityName:  newCfg.GetName(),
		ChangeType:  changeType,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.docs.Save(ctx, row); err != nil {
		return err
	}
	r.logger.Info("audit: %s %s (%s)", changeType, newCfg.GetName(), accountID)
	return nil
}

func (r *LogRecorder) ReportDeleteForAuditing(ctx context.Context, accountID string, cfg secretmanager.Config) error {
	row := &ChangeLog{
		AccountID:   accountID,
		EntityID:    cfg.GetID(),
		EntityName:  cfg.GetName(),
		ChangeType:  ChangeTypeDelete,
		Description: "secret manager " + cfg.GetName() + " deleted",
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.docs.Save(ctx, row); err != nil {
		return err
	}
	r.logger.Info("audit: DELETE %s (%s)", cfg.GetName(), accountID)
	return nil
}
