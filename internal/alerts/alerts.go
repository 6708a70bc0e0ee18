// Package alerts is the alerting collaborator: the core only ever
// closes open renewal-failure alerts when a manager is deleted or its
// credentials are fixed.
package alerts

import (
	"context"

	"github.com/systmms/secretmgr/internal/logging"
)

// Alert types the core interacts with.
const (
	TypeInvalidKMS          = "InvalidKMS"
	TypeVaultRenewalFailure = "VaultRenewalFailure"
)

// Service is the alert collaborator interface.
type Service interface {
	// CloseAlert closes an open alert of the given type for the manager,
	// if one exists.
	CloseAlert(ctx context.Context, accountID, alertType, managerID string) error
}

// LogService logs alert closures without an alerting backend.
type LogService struct {
	logger *logging.Logger
}

// NewLogService creates the default service.
func NewLogService(logger *logging.Logger) *LogService {
	return &LogService{logger: logger}
}

func (s *LogService) CloseAlert(ctx context.Context, accountID, alertType, managerID string) error {
	s.logger.Debug("closing %s alert for manager %s (%s)", alertType, managerID, accountID)
	return nil
}
