package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/secretmgr/internal/config"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/statefile"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// NewManagersCommand groups the secret manager configuration commands.
func NewManagersCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "managers",
		Short: "Manage secret manager configurations",
	}
	cmd.AddCommand(
		newManagersListCommand(cfg),
		newManagersApplyCommand(cfg),
		newManagersValidateCommand(cfg),
		newManagersDeleteCommand(cfg),
		newManagersGetDefaultCommand(cfg),
		newManagersSetDefaultCommand(cfg),
		newManagersClearDefaultCommand(cfg),
	)
	return cmd
}

func newManagersListCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the account's secret managers",
		Long: `List the account's secret managers plus the global ones, with the
number of secrets each holds. Credentials are always masked here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			managers, err := a.registry.List(ctx, a.accountID, true)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tDEFAULT\tSECRETS")
			for _, m := range managers {
				def := ""
				if m.IsDefault() {
					def = "yes"
				}
				count := ""
				if base, ok := m.(interface{ GetNumSecrets() int }); ok {
					count = strconv.Itoa(base.GetNumSecrets())
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.GetID(), m.GetName(), m.EncryptionType(), def, count)
			}
			return w.Flush()
		},
	}
}

// managerFile is the definition format `managers apply` reads: the
// encryption type plus the type's own spec fields.
type managerFile struct {
	Type secretmanager.EncryptionType `yaml:"type"`
	Spec yaml.Node                    `yaml:"spec"`
}

func newManagersApplyCommand(cfg *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update a secret manager from a definition file",
		Long: `Create a secret manager from a YAML definition, or update it when the
definition carries an id. Credential fields given as ***** keep their
stored values on update.

Example definition:

  type: VAULT
  spec:
    name: team-vault
    url: https://vault.example.com:8200
    secretEngineName: secret
    secretEngineVersion: 2
    appRoleId: my-role
    secretId: s3cr3t`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var mf managerFile
			if err := yaml.Unmarshal(data, &mf); err != nil {
				return smerrors.ValidationError{
					Field:   "file",
					Message: "manager definition is not valid YAML: " + err.Error(),
				}
			}
			mgr, err := statefile.DecodeManager(mf.Type, &mf.Spec)
			if err != nil {
				return err
			}
			if mgr.GetAccountID() == "" {
				if base, ok := mgr.(interface{ SetAccountID(string) }); ok {
					base.SetAccountID(a.accountID)
				}
			}

			var id string
			if mgr.GetID() == "" {
				id, err = a.registry.Save(ctx, mgr)
			} else {
				id, err = a.registry.Update(ctx, mgr)
			}
			if err != nil {
				return err
			}
			if err := a.persist(ctx); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Manager definition file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newManagersValidateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manager-id>",
		Short: "Check a manager's connectivity and credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			mgr, err := a.registry.GetByID(ctx, a.accountID, args[0], false)
			if err != nil {
				return err
			}
			if err := a.registry.ValidateConfig(ctx, mgr); err != nil {
				return err
			}
			fmt.Printf("%s is reachable\n", mgr.GetName())
			return nil
		},
	}
}

func newManagersDeleteCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <manager-id>",
		Short: "Delete a secret manager",
		Long: `Delete a secret manager configuration. Deletion is refused while the
manager still holds secrets; migrate them first with 'secrets transition'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			if err := a.registry.Delete(ctx, a.accountID, args[0]); err != nil {
				return err
			}
			return a.persist(ctx)
		},
	}
}

func newManagersGetDefaultCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get-default",
		Short: "Show the account's effective default manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			mgr, err := a.registry.GetDefault(ctx, a.accountID)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", mgr.GetID(), mgr.GetName(), mgr.EncryptionType())
			return nil
		},
	}
}

func newManagersSetDefaultCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <manager-id>",
		Short: "Make a manager the account default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			mgr, err := a.registry.GetByID(ctx, a.accountID, args[0], true)
			if err != nil {
				return err
			}
			if mgr.IsTemplatized() {
				return smerrors.ValidationError{
					Field:   "isDefault",
					Message: "a templatized secret manager cannot be the default",
				}
			}
			if err := a.registry.ClearDefaultFlags(ctx, a.accountID); err != nil {
				return err
			}
			if err := a.docs.UpdateFields(ctx, secretmanager.KindSecretManagerConfig, mgr.GetID(),
				map[string]interface{}{"isDefault": true}); err != nil {
				return err
			}
			return a.persist(ctx)
		},
	}
}

func newManagersClearDefaultCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-default",
		Short: "Drop the account default back to the global fallback chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			if err := a.registry.ClearDefaultFlags(ctx, a.accountID); err != nil {
				return err
			}
			return a.persist(ctx)
		},
	}
}
