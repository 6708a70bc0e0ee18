package commands

import (
	"context"

	"github.com/systmms/secretmgr/internal/accounts"
	"github.com/systmms/secretmgr/internal/agent"
	"github.com/systmms/secretmgr/internal/alerts"
	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/backends"
	"github.com/systmms/secretmgr/internal/codec"
	"github.com/systmms/secretmgr/internal/config"
	"github.com/systmms/secretmgr/internal/delegate"
	"github.com/systmms/secretmgr/internal/docstore"
	"github.com/systmms/secretmgr/internal/rbac"
	"github.com/systmms/secretmgr/internal/recordstore"
	"github.com/systmms/secretmgr/internal/registry"
	"github.com/systmms/secretmgr/internal/secrets"
	"github.com/systmms/secretmgr/internal/statefile"
)

// app wires the full stack for one command invocation: in-memory
// document store hydrated from the state file, in-process agent as the
// delegate transport, permissive RBAC.
type app struct {
	cfg       *config.Config
	docs      *docstore.MemoryStore
	registry  *registry.Registry
	secrets   *secrets.Service
	accountID string
	statePath string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	logger := cfg.Logger

	docs := docstore.NewMemoryStore()
	if err := statefile.Load(ctx, cfg.Definition.StateFile, docs); err != nil {
		return nil, err
	}

	acctSvc := accounts.NewMemoryService()
	for _, a := range cfg.Definition.Accounts {
		acctSvc.Put(accounts.Account{
			ID:                     a.ID,
			LocalEncryptionEnabled: a.LocalEncryptionEnabled,
			CertValidationRequired: a.CertValidationRequired,
		})
	}

	c := codec.New()
	records := recordstore.New(docs, c, logger)
	exec := delegate.NewExecutor(agent.New(logger), logger)

	deps := &backends.Deps{
		Docs:     docs,
		Codec:    c,
		Records:  records,
		Delegate: exec,
		RBAC:     rbac.AllowAll{},
		Audit:    audit.NewLogRecorder(docs, logger),
		Alerts:   alerts.NewLogService(logger),
		Accounts: acctSvc,
		Logger:   logger,
	}
	reg := registry.New(deps)

	return &app{
		cfg:       cfg,
		docs:      docs,
		registry:  reg,
		secrets:   secrets.New(docs, records, c, reg, exec, rbac.AllowAll{}, logger),
		accountID: cfg.AccountID(),
		statePath: cfg.Definition.StateFile,
	}, nil
}

// persist writes the store back to the state file.
func (a *app) persist(ctx context.Context) error {
	return statefile.Save(ctx, a.statePath, a.docs)
}
