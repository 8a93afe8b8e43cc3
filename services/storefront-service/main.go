package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erp/ecommerce/phone-storefront/internal/api"
	"erp/ecommerce/phone-storefront/internal/config"
	"erp/ecommerce/phone-storefront/internal/identity"
	"erp/ecommerce/phone-storefront/internal/logging"
	"erp/ecommerce/phone-storefront/internal/payment"
	"erp/ecommerce/phone-storefront/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "storefront-service",
		Short:         "Phone storefront API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	load := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, logger, nil
	}

	root.AddCommand(newServeCmd(load), newMigrateCmd(load), newSitemapCmd(load))
	return root
}

type loader func() (config.Config, *zap.Logger, error)

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd(load loader) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st := store.Open(ctx, cfg.Database, cfg.CacheTTL, logger)
			defer func() { _ = st.Close() }()

			srv, err := buildServer(cfg, st, logger)
			if err != nil {
				return err
			}
			return run(ctx, newHTTPServer(cfg.Port, srv.Routes()), logger)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

// buildServer wires the identity provider, the payment processor and the store
// into the API.
func buildServer(cfg config.Config, st *store.Store, logger *zap.Logger) (*api.Server, error) {
	verifier, err := identity.NewVerifier(cfg.Identity.PublicKeyPEM, cfg.Identity.HMACSecret, cfg.Identity.Issuer)
	if err != nil {
		return nil, fmt.Errorf("session verifier: %w", err)
	}

	var creator payment.IntentCreator = payment.Unconfigured{}
	if cfg.Stripe.SecretKey != "" {
		creator = payment.NewStripeCreator(cfg.Stripe.SecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payment intents are disabled")
	}
	if cfg.Identity.BaseURL == "" {
		logger.Warn("IDP_BASE_URL not set, seller registration and password reset will fail")
	}

	return &api.Server{
		Store: st,
		Accounts: identity.NewAdmin(identity.AdminConfig{
			BaseURL:  cfg.Identity.BaseURL,
			Realm:    cfg.Identity.Realm,
			ClientID: cfg.Identity.ClientID,
			Username: cfg.Identity.AdminUser,
			Password: cfg.Identity.AdminPassword,
			Timeout:  cfg.Identity.Timeout,
		}),
		Verifier:     verifier,
		Payments:     &payment.Service{Creator: creator, Currency: cfg.Stripe.Currency, Logger: logger},
		Logger:       logger,
		ModuleName:   cfg.ModuleName,
		SiteBaseURL:  cfg.Site.BaseURL,
		RedactErrors: cfg.Logging.RedactErrors,
	}, nil
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("storefront-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ---------------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------------

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			st := store.New(db, cfg.CacheTTL, logger)
			defer func() { _ = st.Close() }()
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema ready")
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// sitemap
// ---------------------------------------------------------------------------

func newSitemapCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sitemap",
		Short: "Write sitemap.xml for the active catalog to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st := store.Open(cmd.Context(), cfg.Database, cfg.CacheTTL, logger)
			defer func() { _ = st.Close() }()
			out, err := api.BuildSitemap(cmd.Context(), st, cfg.Site.BaseURL)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
