// Package tenantcmd bootstraps tenants from the command line, bypassing the
// HTTP surface. It talks to the database directly with the same services the
// API uses.
package tenantcmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	clientsrepo "github.com/hourledger/hourledger/domains/clients/be/repo"
	clientsservice "github.com/hourledger/hourledger/domains/clients/be/service"
	tenantsrepo "github.com/hourledger/hourledger/domains/tenants/be/repo"
	tenantsservice "github.com/hourledger/hourledger/domains/tenants/be/service"
	usersrepo "github.com/hourledger/hourledger/domains/users/be/repo"
	usersservice "github.com/hourledger/hourledger/domains/users/be/service"
	platformauth "github.com/hourledger/hourledger/platform/go/auth"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// Command groups tenant bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant bootstrap (create/list)",
	}

	cmd.AddCommand(createCommand(), listCommand())
	return cmd
}

type wiring struct {
	pool    *pgxpool.Pool
	tenants *tenantsservice.Service
	users   *usersservice.Service
	clients *clientsservice.Service
}

func wire(ctx context.Context, databaseURL string) (*wiring, error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: "warn"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init tenant store: %w", err)
	}
	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init user store: %w", err)
	}
	clientStore, err := persistence.NewClientStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init client store: %w", err)
	}
	workstreamStore, err := persistence.NewWorkstreamStore(pool)
	if err != nil {
		return nil, fmt.Errorf("init workstream store: %w", err)
	}

	tenants := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore), logger)
	return &wiring{
		pool:    pool,
		tenants: tenants,
		users:   usersservice.New(usersrepo.NewPostgresRepository(userStore)),
		clients: clientsservice.New(clientsrepo.NewPostgresRepository(clientStore, workstreamStore), tenants),
	}, nil
}

func createCommand() *cobra.Command {
	var (
		databaseURL  string
		slug         string
		displayName  string
		adminSubject string
		adminEmail   string
		adminName    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant with its internal client and optional first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer w.pool.Close()

			tenant, err := w.tenants.Create(ctx, tenantsservice.CreateInput{
				Slug:        slug,
				DisplayName: displayName,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s created (id %s)\n", tenant.Slug, tenant.ID)

			internal, err := w.clients.EnsureInternalClient(ctx, tenant.ID)
			if err != nil {
				return fmt.Errorf("ensure internal client: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "internal client ready (id %s)\n", internal.ID)

			if adminSubject != "" {
				admin, err := w.users.Create(ctx, usersservice.CreateInput{
					TenantID: tenant.ID,
					Subject:  adminSubject,
					Email:    adminEmail,
					FullName: adminName,
					Role:     platformauth.RoleFirmAdmin,
				})
				if err != nil {
					return fmt.Errorf("create admin user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "firm admin %s created (id %s)\n", admin.Email, admin.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	cmd.Flags().StringVar(&slug, "slug", "", "tenant slug")
	cmd.Flags().StringVar(&displayName, "name", "", "tenant display name")
	cmd.Flags().StringVar(&adminSubject, "admin-subject", "", "identity subject for the first firm admin")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "email for the first firm admin")
	cmd.Flags().StringVar(&adminName, "admin-name", "", "full name for the first firm admin")

	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func listCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer w.pool.Close()

			tenants, err := w.tenants.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range tenants {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.DisplayName, t.SubscriptionStatus)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	_ = cmd.MarkFlagRequired("database-url")

	return cmd
}
