package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskflow.dev/internal/migrate"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/store/sqlstore"
	"taskflow.dev/migrations"
)

type options struct {
	driver  string
	dsn     string
	path    string
	timeout time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		obs.Logger().WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "migrate",
		Args:          cobra.NoArgs,
		Short:         "Database migration commands",
		Long:          `Apply, roll back and inspect the taskflow schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.driver, "driver", envOr("TASKFLOW_DATABASE_DRIVER", "pgx"), "database driver (pgx or sqlite3)")
	flags.StringVar(&opts.dsn, "dsn", os.Getenv("TASKFLOW_DATABASE_DSN"), "database DSN")
	flags.StringVarP(&opts.path, "path", "p", "", "migrations directory (defaults to the embedded set)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")

	cmd.AddCommand(
		newUpCommand(opts),
		newDownCommand(opts),
		newStatusCommand(opts),
		newPendingCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
				}
				return err
			})
		},
	}
}

func newDownCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
				return nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				history, err := m.Status(ctx)
				for _, item := range history {
					fmt.Fprintln(cmd.OutOrStdout(), item)
				}
				return err
			})
		},
	}
}

func newPendingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List migrations not yet applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				pending, err := m.Pending(ctx)
				for _, name := range pending {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return err
			})
		},
	}
}

func (o *options) run(parent context.Context, fn func(context.Context, *migrate.Manager) error) error {
	if o.dsn == "" {
		return errors.New("missing DSN: provide via --dsn or TASKFLOW_DATABASE_DSN")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	store, err := sqlstore.Open(o.driver, o.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var files fs.FS = migrations.FS
	if o.path != "" {
		files = os.DirFS(o.path)
	}
	return fn(ctx, migrate.NewManager(store.DB(), files))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
