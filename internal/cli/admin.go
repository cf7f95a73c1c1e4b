package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// SweepCmd runs one escalation sweep on the server.
func SweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run an escalation sweep now (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd.Context())
			defer cancel()

			summary, err := c.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Sweep complete: %d scanned, %d escalated, %d failed\n",
				summary.Scanned, summary.Escalated, summary.Failed)
			return nil
		},
	}
}

// ProvisionCmd runs one provisioning pass on the server.
func ProvisionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the current period's tasks for every pool binding (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd.Context())
			defer cancel()

			summary, err := c.Provision(ctx)
			if err != nil {
				return fmt.Errorf("provisioning failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Provisioning complete: %d scanned, %d created, %d skipped, %d failed\n",
				summary.Scanned, summary.Created, summary.Skipped, summary.Failed)
			return nil
		},
	}
}

// MigrateCmd applies pending schema migrations using the service
// configuration (CONFIG_FILE and DB_* variables).
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := database.New(cmd.Context(), database.Config{DSN: cfg.Database.DSN()})
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := repository.Migrate(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Applied %s\n", name)
			}
			return nil
		},
	}
}

// TokenCmd mints a signed bearer token for an employee.
func TokenCmd() *cobra.Command {
	var (
		secret, issuer, employeeID, role string
		ttl                              time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := auth.NewValidator(secret, issuer)
			if v == nil {
				return fmt.Errorf("--secret (or JWT_SECRET) is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			token, err := v.Issue(employeeID, role, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	f.StringVar(&issuer, "issuer", os.Getenv("JWT_ISSUER"), "token issuer")
	f.StringVar(&employeeID, "for", "", "employee id to issue the token for")
	f.StringVar(&role, "as", "maker", "role claim (maker, checker, admin)")
	f.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("for")
	return cmd
}
