// Package config loads the CLI's runtime configuration from
// secretmgr.yaml: the acting account, the state file location, and
// account flag seeds.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
)

// Config holds the runtime configuration shared by every command.
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition is the secretmgr.yaml structure.
type Definition struct {
	Version int `yaml:"version"`

	// AccountID is the account every command acts as.
	AccountID string `yaml:"accountId"`

	// StateFile is where managers, records and logs persist between
	// invocations. Defaults to secretmgr.state.yaml next to the config.
	StateFile string `yaml:"stateFile,omitempty"`

	// Accounts seeds account-level flags.
	Accounts []AccountDef `yaml:"accounts,omitempty"`
}

// AccountDef seeds one account's flags.
type AccountDef struct {
	ID                     string `yaml:"id"`
	LocalEncryptionEnabled bool   `yaml:"localEncryptionEnabled,omitempty"`
	CertValidationRequired bool   `yaml:"certValidationRequired,omitempty"`
}

// Load reads and parses the configuration file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return smerrors.ValidationError{
				Field:      "config",
				Message:    "configuration file " + c.Path + " not found",
				Suggestion: "create a secretmgr.yaml with at least an accountId",
			}
		}
		return err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return smerrors.ValidationError{
			Field:      "config",
			Message:    "configuration file is not valid YAML: " + err.Error(),
			Suggestion: "check the file against the documented format",
		}
	}
	if def.AccountID == "" {
		return smerrors.ValidationError{
			Field:      "accountId",
			Message:    "the configuration must name the acting account",
			Suggestion: "set accountId in " + c.Path,
		}
	}
	if def.StateFile == "" {
		def.StateFile = "secretmgr.state.yaml"
	}
	c.Definition = &def
	return nil
}

// AccountID returns the acting account.
func (c *Config) AccountID() string {
	if c.Definition == nil {
		return ""
	}
	return c.Definition.AccountID
}
