// Package statefile persists the document store to a YAML file between
// CLI invocations. Manager configs are polymorphic, so each one is
// wrapped in an envelope naming its encryption type; everything else
// round-trips as plain documents.
package statefile

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/systmms/secretmgr/internal/audit"
	"github.com/systmms/secretmgr/internal/docstore"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/secrets"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

type state struct {
	SecretManagers []managerEnvelope              `yaml:"secretManagers,omitempty"`
	Records        []*secretmanager.EncryptedData `yaml:"encryptedRecords,omitempty"`
	ChangeLogs     []*audit.ChangeLog             `yaml:"secretChangeLogs,omitempty"`
	UsageLogs      []*secrets.UsageLog            `yaml:"secretUsageLogs,omitempty"`
}

type managerEnvelope struct {
	Type secretmanager.EncryptionType `yaml:"type"`
	Spec yaml.Node                    `yaml:"spec"`
}

// DecodeManager builds the typed config for an envelope's encryption
// type and unmarshals the spec into it. Also used to parse the manager
// definition files the CLI applies.
func DecodeManager(t secretmanager.EncryptionType, spec *yaml.Node) (secretmanager.Config, error) {
	cfg := emptyConfig(t)
	if cfg == nil {
		return nil, smerrors.ValidationError{
			Field:   "type",
			Message: "unknown secret manager type " + string(t),
		}
	}
	if err := spec.Decode(cfg); err != nil {
		return nil, smerrors.ValidationError{
			Field:   "spec",
			Message: "manager definition does not parse: " + err.Error(),
		}
	}
	return cfg, nil
}

func emptyConfig(t secretmanager.EncryptionType) secretmanager.Config {
	switch t {
	case secretmanager.TypeLocal:
		return &secretmanager.LocalConfig{}
	case secretmanager.TypeVault:
		return &secretmanager.VaultConfig{}
	case secretmanager.TypeSSHVault:
		return &secretmanager.SSHVaultConfig{}
	case secretmanager.TypeKMS:
		return &secretmanager.KMSConfig{}
	case secretmanager.TypeGCPKMS:
		return &secretmanager.GCPKMSConfig{}
	case secretmanager.TypeGCPSecretsManager:
		return &secretmanager.GCPSecretsManagerConfig{}
	case secretmanager.TypeAWSSecretsManager:
		return &secretmanager.AWSSecretsManagerConfig{}
	case secretmanager.TypeAzureVault:
		return &secretmanager.AzureVaultConfig{}
	case secretmanager.TypeCyberArk:
		return &secretmanager.CyberArkConfig{}
	case secretmanager.TypeCustom:
		return &secretmanager.CustomConfig{}
	}
	return nil
}

// Load reads the state file into the store. A missing file is an empty
// state, not an error.
func Load(ctx context.Context, path string, docs docstore.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return smerrors.ValidationError{
			Field:   "stateFile",
			Message: "state file is not valid YAML: " + err.Error(),
		}
	}
	for i := range st.SecretManagers {
		cfg, err := DecodeManager(st.SecretManagers[i].Type, &st.SecretManagers[i].Spec)
		if err != nil {
			return err
		}
		if _, err := docs.Save(ctx, cfg); err != nil {
			return err
		}
	}
	for _, rec := range st.Records {
		if _, err := docs.Save(ctx, rec); err != nil {
			return err
		}
	}
	for _, row := range st.ChangeLogs {
		if _, err := docs.Save(ctx, row); err != nil {
			return err
		}
	}
	for _, row := range st.UsageLogs {
		if _, err := docs.Save(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Save snapshots the store back to the state file.
func Save(ctx context.Context, path string, docs docstore.Store) error {
	var st state

	managerDocs, err := docs.Query(secretmanager.KindSecretManagerConfig).List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range managerDocs {
		cfg, ok := doc.(secretmanager.Config)
		if !ok {
			return smerrors.ProgrammingError{Message: "stored document is not a secret manager config"}
		}
		var spec yaml.Node
		if err := spec.Encode(cfg); err != nil {
			return err
		}
		st.SecretManagers = append(st.SecretManagers, managerEnvelope{
			Type: cfg.EncryptionType(),
			Spec: spec,
		})
	}

	recordDocs, err := docs.Query(secretmanager.KindEncryptedData).List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range recordDocs {
		if rec, ok := doc.(*secretmanager.EncryptedData); ok {
			st.Records = append(st.Records, rec)
		}
	}

	changeDocs, err := docs.Query(audit.KindChangeLog).List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range changeDocs {
		if row, ok := doc.(*audit.ChangeLog); ok {
			st.ChangeLogs = append(st.ChangeLogs, row)
		}
	}

	usageDocs, err := docs.Query(secrets.KindUsageLog).List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range usageDocs {
		if row, ok := doc.(*secrets.UsageLog); ok {
			st.UsageLogs = append(st.UsageLogs, row)
		}
	}

	data, err := yaml.Marshal(&st)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
