package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/systmms/secretmgr/internal/config"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// NewSecretsCommand groups the secret lifecycle commands.
func NewSecretsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Create, read, migrate and delete secrets",
	}
	cmd.AddCommand(
		newSecretsPutCommand(cfg),
		newSecretsPutFileCommand(cfg),
		newSecretsGetCommand(cfg),
		newSecretsUpdateCommand(cfg),
		newSecretsDeleteCommand(cfg),
		newSecretsTransitionCommand(cfg),
		newSecretsHistoryCommand(cfg),
		newSecretsUsageCommand(cfg),
	)
	return cmd
}

func newSecretsPutCommand(cfg *config.Config) *cobra.Command {
	var (
		name   string
		value  string
		scopes []string
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store a new text secret",
		Long: `Store a new text secret through the account's effective default
manager. With a remote default (Vault, AWS, GCP, Azure) the value is
written to the backend and only a reference is kept locally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			id, err := a.secrets.SaveSecretText(ctx, a.accountID, name, value, scopes)
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

	cmd.Flags().StringVar(&name, "name", "", "Secret name (required)")
	cmd.Flags().StringVar(&value, "value", "", "Secret value (required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Usage scope, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newSecretsPutFileCommand(cfg *config.Config) *cobra.Command {
	var (
		name string
		path string
	)

	cmd := &cobra.Command{
		Use:   "put-file",
		Short: "Store a new file secret",
		Long: `Store a file's contents as a secret. File secrets always stay locally
encrypted, whatever the default manager is.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(path)
			}
			id, err := a.secrets.SaveSecretFile(ctx, a.accountID, name, content, nil)
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

	cmd.Flags().StringVar(&name, "name", "", "Secret name (defaults to the file name)")
	cmd.Flags().StringVar(&path, "path", "", "File to store (required)")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newSecretsGetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Print a secret's value",
		Long: `Resolve a secret by record id or name and print its plaintext to
stdout, suitable for scripting:

  export DB_PASSWORD=$(secretmgr secrets get db-password)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			value, err := a.secrets.FetchSecretValue(ctx, a.accountID, args[0])
			if err != nil {
				return err
			}
			// Reads can rewrite records (global-manager re-encryption).
			if err := a.persist(ctx); err != nil {
				return err
			}
			fmt.Print(string(value))
			return nil
		},
	}
}

func newSecretsUpdateCommand(cfg *config.Config) *cobra.Command {
	var (
		name  string
		value string
	)

	cmd := &cobra.Command{
		Use:   "update <record-id>",
		Short: "Rename a secret or change its value",
		Long: `Update a secret. Omitting --value (or passing the ***** sentinel)
keeps the stored value and only renames the record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			if err := a.secrets.UpdateSecretText(ctx, a.accountID, args[0], name, value); err != nil {
				return err
			}
			return a.persist(ctx)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New secret name (required)")
	cmd.Flags().StringVar(&value, "value", secretmanager.Mask, "New value; omit to keep the stored one")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSecretsDeleteCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			if err := a.secrets.DeleteSecret(ctx, a.accountID, args[0]); err != nil {
				return err
			}
			return a.persist(ctx)
		},
	}
}

func newSecretsTransitionCommand(cfg *config.Config) *cobra.Command {
	var (
		fromID string
		toID   string
	)

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Migrate all secrets from one manager to another",
		Long: `Migrate every secret owned by one manager to another, one secret at a
time. A failed secret stays on the source manager and the migration
continues; the summary reports both counts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			summary, err := a.secrets.TransitionSecrets(ctx, a.accountID, fromID, toID)
			if err != nil {
				return err
			}
			if err := a.persist(ctx); err != nil {
				return err
			}
			fmt.Printf("migrated %d of %d secrets (%d failed)\n",
				summary.Migrated, summary.Total, summary.Failed)
			for _, line := range summary.Errors {
				fmt.Printf("  failed: %s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromID, "from", "", "Source manager id (required)")
	cmd.Flags().StringVar(&toID, "to", "", "Target manager id (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newSecretsHistoryCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "history <record-id>",
		Short: "Show a secret's change history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			rows, err := a.secrets.GetChangeLogs(ctx, a.accountID, args[0])
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Printf("%s  %-6s  %s\n",
					row.CreatedAt.Format("2006-01-02 15:04:05"), row.ChangeType, row.Description)
			}
			return nil
		},
	}
}

func newSecretsUsageCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <record-id>",
		Short: "Show when and where a secret was read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			rows, err := a.secrets.GetUsageLogs(ctx, a.accountID, args[0])
			if err != nil {
				return err
			}
			for _, row := range rows {
				workflow := row.WorkflowExecutionID
				if workflow == "" {
					workflow = "-"
				}
				fmt.Printf("%s  workflow=%s\n",
					row.CreatedAt.Format("2006-01-02 15:04:05"), workflow)
			}
			return nil
		},
	}
}
