// Package main is the entry point for the sumday server.
//
// main only reads configuration, builds the long-lived dependencies (logger,
// database, identity provider) and hands them to internal/server. All actual
// logic lives in the internal packages.
//
// Commands:
//
//	sumday serve            run the HTTP server (default)
//	sumday migrate up       apply pending migrations
//	sumday migrate down     roll back the latest migration
//	sumday migrate status   list migrations and whether they are applied
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/config"
	"github.com/sakif/sumday/internal/logging"
	"github.com/sakif/sumday/internal/repository/sqldb"
	"github.com/sakif/sumday/internal/server"
	"github.com/sakif/sumday/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "sumday",
		Short:         "Sumday accounts service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment (missing file is ignored)")

	serve := newServeCommand(&envFile)
	// Running the binary without a subcommand serves.
	root.RunE = serve.RunE

	root.AddCommand(serve, newMigrateCommand(&envFile))
	return root
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stdout, cfg.LogFormat, level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	// === DATABASE ===
	// New applies pending migrations, so a fresh deployment just works.
	db, err := sqldb.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", slog.String("dialect", string(db.Dialect())))

	// === IDENTITY PROVIDER ===
	// Discovery runs once, here, before any request is served.
	discoverCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	idp, err := auth.NewOIDCProvider(discoverCtx, auth.ProviderConfig{
		Domain:       cfg.Auth0Domain,
		ClientID:     cfg.Auth0ClientID,
		ClientSecret: cfg.Auth0ClientSecret,
		CallbackURL:  cfg.Auth0CallbackURL,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:          cfg.Port,
		BaseURL:       cfg.BaseURL,
		SecretKey:     cfg.SecretKey,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.IsProduction(),
		UserCacheTTL:  cfg.UserCacheTTL,
	}, server.Deps{
		Users:    db,
		Identity: idp,
		DB:       db,
	}, logger)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

func newMigrateCommand(envFile *string) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	// open reads only the database URL; migrations don't need the provider
	// settings.
	open := func() (*sqldb.DB, error) {
		cfg, err := config.Load(*envFile)
		if err != nil {
			return nil, err
		}
		return sqldb.Open(cfg.DatabaseURL)
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := open()
				if err != nil {
					return err
				}
				defer db.Close()

				n, err := db.MigrateUp(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := open()
				if err != nil {
					return err
				}
				defer db.Close()

				if err := db.MigrateDown(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back 1 migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := open()
				if err != nil {
					return err
				}
				defer db.Close()

				states, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, st := range states {
					applied := "pending"
					if st.Applied {
						applied = "applied " + st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(out, "%05d  %-40s  %s\n", st.Version, st.Path, applied)
				}
				return nil
			},
		},
	)
	return migrate
}
