// Package periodcmd manages accounting period locks from the command line.
package periodcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	periodsrepo "github.com/hourledger/hourledger/domains/periods/be/repo"
	periodsservice "github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// Command groups period lock helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Accounting period locks (lock/unlock/list)",
	}

	cmd.AddCommand(lockCommand(), unlockCommand(), listCommand())
	return cmd
}

func wire(ctx context.Context, databaseURL string) (*persistence.PeriodStore, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	store, err := persistence.NewPeriodStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("init period store: %w", err)
	}
	return store, pool.Close, nil
}

func lockCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
		actorID     string
		year        int
		month       int
	)

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock a month against time entry mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}
			actor := uuid.Nil
			if actorID != "" {
				if actor, err = uuid.Parse(actorID); err != nil {
					return fmt.Errorf("parse actor id: %w", err)
				}
			}

			store, closePool, err := wire(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closePool()

			svc := periodsservice.New(periodsrepo.NewPostgresRepository(store))
			lock, err := svc.Lock(ctx, tenant, year, time.Month(month), actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locked %04d-%02d (lock id %s)\n", lock.Year, lock.Month, lock.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id")
	cmd.Flags().StringVar(&actorID, "actor-id", "", "user id recorded as the locker")
	cmd.Flags().IntVar(&year, "year", 0, "year to lock")
	cmd.Flags().IntVar(&month, "month", 0, "month to lock (1-12)")

	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")

	return cmd
}

func unlockCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
		lockID      string
		actorID     string
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock a previously locked month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}
			lock, err := uuid.Parse(lockID)
			if err != nil {
				return fmt.Errorf("parse lock id: %w", err)
			}
			actor := uuid.Nil
			if actorID != "" {
				if actor, err = uuid.Parse(actorID); err != nil {
					return fmt.Errorf("parse actor id: %w", err)
				}
			}

			store, closePool, err := wire(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closePool()

			svc := periodsservice.New(periodsrepo.NewPostgresRepository(store))
			unlocked, err := svc.Unlock(ctx, tenant, lock, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %04d-%02d\n", unlocked.Year, unlocked.Month)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id")
	cmd.Flags().StringVar(&lockID, "lock-id", "", "lock id to release")
	cmd.Flags().StringVar(&actorID, "actor-id", "", "user id recorded as the unlocker")

	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("lock-id")

	return cmd
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's period locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			store, closePool, err := wire(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closePool()

			svc := periodsservice.New(periodsrepo.NewPostgresRepository(store))
			locks, err := svc.List(ctx, tenant)
			if err != nil {
				return err
			}
			for _, lock := range locks {
				state := "locked"
				if lock.UnlockedAt != nil {
					state = "unlocked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%04d-%02d\t%s\n", lock.ID, lock.Year, lock.Month, state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id")

	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("tenant-id")

	return cmd
}
