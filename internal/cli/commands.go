package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/yaml.v3"

	"github.com/dmehra2102/marketplace-orders/internal/app"
	"github.com/dmehra2102/marketplace-orders/internal/config"
	"github.com/dmehra2102/marketplace-orders/internal/platform/health"
)

const redacted = "<redacted>"

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after the config file and environment overrides are applied. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			cfg.JWTCustomerSecret = redacted
			cfg.JWTVendorSecret = redacted
			cfg.JWTAdminSecret = redacted

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return errors.New("migrate needs STORE_DRIVER=postgres")
			}
			backend, err := app.OpenBackend(cmd.Context(), log, cfg, true)
			if err != nil {
				return err
			}
			backend.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newRelayCmd(opts *rootOptions) *cobra.Command {
	var (
		once    bool
		relayID string
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox events",
		Long:  "Run the outbox relay until interrupted, or publish a single batch with --once.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			backend, err := app.OpenBackend(ctx, log, cfg, false)
			if err != nil {
				return err
			}
			defer backend.Close()

			pub, closePub, err := app.OpenPublisher(log, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closePub() }()

			relay := app.NewRelay(log, backend, pub, relayID)
			if once {
				n, err := relay.Tick(ctx)
				if err != nil {
					return fmt.Errorf("relay: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s)\n", n)
				return nil
			}
			return relay.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "publish one batch and exit")
	cmd.Flags().StringVar(&relayID, "relay-id", "orderctl-relay", "lease owner recorded on claimed events")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service of a running order-service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.GRPCAddr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := health.Probe(ctx, addr, cfg.ServiceName)
			if err != nil {
				return fmt.Errorf("health check %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cfg.ServiceName, status)
			if status != healthpb.HealthCheckResponse_SERVING {
				return errors.New("service is not serving")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (defaults to GRPC_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "probe timeout")
	return cmd
}
