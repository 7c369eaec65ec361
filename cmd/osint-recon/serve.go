package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abhracodec/osint-recon/internal/bootstrap"
	"github.com/Abhracodec/osint-recon/internal/migrate"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the services enabled by SERVICES (worker, reaper, metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := bootstrap.ValidateServiceConfig(&a.cfg); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "starting osint-recon",
				"backend", a.cfg.Backend,
				"demo_mode", a.cfg.Modules.DemoMode,
				"audit", a.cfg.Audit.Enabled,
				"enabled_services", bootstrap.GetEnabledServices(&a.cfg))

			svc, closeAll, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
				Config:   &a.cfg,
				Services: svc,
				Logger:   a.logger,
			})
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit trail schema to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				versions, err := migrate.Versions()
				if err != nil {
					return err
				}
				for _, v := range versions {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), v); err != nil {
						return err
					}
				}
				return nil
			}

			conns, err := connectInfra(&connectInfraOptions{Logger: a.logger, Config: &a.cfg, WantDB: true})
			if err != nil {
				return err
			}
			defer conns.Close()
			return bootstrap.RunMigrations(cmd.Context(), conns.db, a.logger)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list embedded migrations without connecting")
	return cmd
}

func newModulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules the worker can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			registry, err := bootstrap.BuildModuleRegistry(&cfg)
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
