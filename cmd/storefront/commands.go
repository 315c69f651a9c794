package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/recovery"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/token"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func recoverCartsCmd() *cobra.Command {
	var (
		storeID   string
		idleHours int
	)
	cmd := &cobra.Command{
		Use:   "recover-carts",
		Short: "Send reminders to shoppers who left a cart behind",
		Long: `Scan customers whose checkout has been idle for at least --idle-hours
and send each eligible one a reminder with a link that restores the cart.

Safe to run on a schedule: a customer gets at most the configured number
of reminders, never two within the minimum interval, and a failed send is
retried on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptible(cmd)
			defer stop()

			a, err := newApp(ctx, kvStore, customers, notifications)
			if err != nil {
				return err
			}
			defer a.Close()

			if storeID == "" {
				storeID = a.cfg.Store.ID
			}
			if !cmd.Flags().Changed("idle-hours") {
				idleHours = a.cfg.Recovery.IdleHours
			}

			svc := recovery.NewService(a.tracker, a.sender, a.kv, a.cfg.Store, recoveryConfig(a), a.log)
			report, err := svc.Run(ctx, storeID, idleHours)
			if err != nil {
				return fmt.Errorf("recovery run: %w", err)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "store id (defaults to STORE_ID)")
	cmd.Flags().IntVar(&idleHours, "idle-hours", 2, "minimum hours since the shopper's last checkout activity")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptible(cmd)
			defer stop()

			cfg, log, err := loadApp()
			if err != nil {
				return err
			}
			defer log.Sync()

			repo, err := repository.NewRepository(ctx, cfg.Postgres.Credentials())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer repo.Close()

			version, err := repo.RunMigrations()
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database migrations completed", zap.Uint("version", version))
			return nil
		},
	}
}

func cleanupTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete expired confirmation tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptible(cmd)
			defer stop()

			a, err := newApp(ctx, kvStore)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			n, err := token.NewManager(a.kv, a.cfg.Checkout.TokenTTL, a.log).CleanupExpired(ctx)
			if err != nil {
				return fmt.Errorf("token cleanup: %w", err)
			}
			a.log.Info("expired tokens removed", zap.Int("removed", n), zap.Duration("took", time.Since(start)))
			return nil
		},
	}
}
