// Package rbac defines the permission checks the core consults before
// mutating manager configurations. The encompassing application
// supplies a real implementation; AllowAll backs tests and the CLI.
package rbac

import (
	"context"

	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// Checker is the RBAC collaborator interface.
type Checker interface {
	// CanSetPermissions checks whether the acting user may set usage
	// scopes on a new manager config.
	CanSetPermissions(ctx context.Context, accountID string, cfg secretmanager.Config) (bool, error)

	// CanChangePermissions checks whether the acting user may change
	// usage scopes between the old and new config.
	CanChangePermissions(ctx context.Context, accountID string, newCfg, oldCfg secretmanager.Config) (bool, error)

	// HasAccessToEditSM checks edit access on a manager.
	HasAccessToEditSM(ctx context.Context, accountID string, cfg secretmanager.Config) (bool, error)

	// HasAccessToReadSM checks read access on a manager in an
	// app/environment context.
	HasAccessToReadSM(ctx context.Context, accountID string, cfg secretmanager.Config, appID, envID string) (bool, error)

	// AreUsageScopesSubset reports whether from's usage scopes are a
	// subset of to's, the precondition for secret transition.
	AreUsageScopesSubset(ctx context.Context, accountID string, from, to secretmanager.Config) (bool, error)
}

// AllowAll grants every permission.
type AllowAll struct{}

func (AllowAll) CanSetPermissions(ctx context.Context, accountID string, cfg secretmanager.Config) (bool, error) {
	return true, nil
}

func (AllowAll) CanChangePermissions(ctx context.Context, accountID string, newCfg, oldCfg secretmanager.Config) (bool, error) {
	return true, nil
}

func (AllowAll) HasAccessToEditSM(ctx context.Context, accountID string, cfg secretmanager.Config) (bool, error) {
	return true, nil
}

func (AllowAll) HasAccessToReadSM(ctx context.Context, accountID string, cfg secretmanager.Config, appID, envID string) (bool, error) {
	return true, nil
}

func (AllowAll) AreUsageScopesSubset(ctx context.Context, accountID string, from, to secretmanager.Config) (bool, error) {
	return scopeSet(to).containsAll(scopeSet(from)), nil
}

type set map[string]struct{}

func scopeSet(cfg secretmanager.Config) set {
	s := make(set)
	for _, scope := range cfg.UsageScopeList() {
		s[scope] = struct{}{}
	}
	return s
}

func (s set) containsAll(other set) bool {
	// An empty scope list means "unrestricted": a superset of anything.
	if len(s) == 0 {
		return true
	}
	for scope := range other {
		if _, ok := s[scope]; !ok {
			return false
		}
	}
	return true
}
