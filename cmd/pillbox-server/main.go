package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pillbox/pillbox/internal/config"
	"github.com/pillbox/pillbox/internal/platform/db"
	"github.com/pillbox/pillbox/pkg/daytime"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pillbox-server",
		Short: "Medication reminder API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			migrator, closeDB, err := openMigrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			fmt.Printf("Running %s migrations\n", cfg.StoreDriver)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			migrator, closeDB, err := openMigrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for %s\n", cfg.StoreDriver)
			fmt.Printf("%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and rebuild scheduled reminders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			reqs, err := a.scheduler.List(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-36s %-4s %-5s %s\n", "ID", "DAY", "TIME", "MEDICATION")
			for _, r := range reqs {
				day, _ := daytime.FromPlatformWeekday(r.Trigger.Weekday)
				fmt.Printf("%-36s %-4s %02d:%02d %s\n",
					r.ID, daytime.ShortDayName(day), r.Trigger.Hour, r.Trigger.Minute, r.Content.Body)
			}
			fmt.Printf("%d reminder(s)\n", len(reqs))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resync",
		Short: "Cancel every reminder and register them again from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.Resync(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %d reminder(s).\n", n)
			return nil
		},
	})

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		boot := bootLogger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()

	if err := a.store.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("initial medication load failed")
	}
	if n, err := a.store.Resync(ctx); err != nil {
		logger.Error().Err(err).Msg("reminder resync failed")
	} else {
		logger.Info().Int("reminders", n).Msg("reminders registered")
	}
	if err := a.scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start notification scheduler")
	}
	defer a.scheduler.Stop()

	e := newServer(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openMigrator connects to the configured store for the migrate commands.
func openMigrator(ctx context.Context, cfg *config.Config) (*db.Migrator, func(), error) {
	if cfg.StoreDriver == config.DriverPostgres {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewPostgresMigrator(pool), pool.Close, nil
	}

	sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return db.NewSQLiteMigrator(sqlDB), func() { sqlDB.Close() }, nil
}
