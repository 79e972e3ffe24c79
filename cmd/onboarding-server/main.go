package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/onboarding/internal/config"
	"github.com/ehr/onboarding/internal/domain/assessment"
	"github.com/ehr/onboarding/internal/platform/auth"
	"github.com/ehr/onboarding/internal/platform/db"
	"github.com/ehr/onboarding/migrations"
)

// localIssuer is the issuer of tokens signed with AUTH_SIGNING_KEY.
const localIssuer = "onboarding-server"

func main() {
	rootCmd := &cobra.Command{
		Use:   "onboarding-server",
		Short: "Adaptive health onboarding assessment API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(assessmentCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogPath, _ := cmd.Flags().GetString("catalog")
			return runServer(catalogPath)
		},
	}
	cmd.Flags().String("catalog", "", "Path to a question catalog (YAML); defaults to the built-in catalog")
	return cmd
}

// openPool loads config and connects for one-shot admin commands.
func openPool(ctx context.Context) (*config.Config, func(), *db.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        2,
		MinConns:        1,
		ApplicationName: "onboarding-cli",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pool.Close, db.NewMigrator(pool, migrations.FS), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: "onboarding-cli"})
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage local-mode access tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an HS256 token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, _ := cmd.Flags().GetString("sub")
			tenant, _ := cmd.Flags().GetString("tenant")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.ResolvedAuthMode() != config.AuthModeLocal {
				return fmt.Errorf("tokens can only be issued in %q auth mode, current mode is %q",
					config.AuthModeLocal, cfg.ResolvedAuthMode())
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			token, err := auth.IssueToken([]byte(cfg.AuthSigningKey), localIssuer, sub, tenant, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	issueCmd.Flags().String("sub", "", "Subject (user ID)")
	issueCmd.Flags().String("tenant", "default", "Tenant ID claim")
	issueCmd.Flags().StringSlice("role", []string{auth.RolePatient}, "Roles to grant (repeatable)")
	issueCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")

	cmd.AddCommand(issueCmd)
	return cmd
}

func assessmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assessment",
		Short: "Run assessments offline",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scripted set of answers and print the outcome as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			catalogPath, _ := cmd.Flags().GetString("catalog")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			script, err := assessment.ParseScript(data)
			if err != nil {
				return err
			}

			catalog, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}
			engine, err := assessment.NewEngine(catalog)
			if err != nil {
				return err
			}

			out, err := engine.RunScript(script)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	runCmd.Flags().String("file", "", "YAML script of answers")
	runCmd.Flags().String("catalog", "", "Path to a question catalog (YAML)")

	cmd.AddCommand(runCmd)
	return cmd
}

func loadCatalog(path string) (*assessment.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return assessment.DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return assessment.ParseCatalog(data)
}
