package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rob634/rmhtitiler-sub001/internal/api"
	"github.com/rob634/rmhtitiler-sub001/internal/audit"
	"github.com/rob634/rmhtitiler-sub001/internal/cache"
	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
	"github.com/rob634/rmhtitiler-sub001/internal/db"
	"github.com/rob634/rmhtitiler-sub001/internal/engine"
	"github.com/rob634/rmhtitiler-sub001/internal/identity"
	"github.com/rob634/rmhtitiler-sub001/internal/logging"
	"github.com/rob634/rmhtitiler-sub001/internal/metrics"
	"github.com/rob634/rmhtitiler-sub001/internal/publish"
	"github.com/rob634/rmhtitiler-sub001/internal/scopes"
	"github.com/rob634/rmhtitiler-sub001/internal/tasks"
	"github.com/rob634/rmhtitiler-sub001/internal/tiles"
	"github.com/rob634/rmhtitiler-sub001/internal/validation"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rmhtitiler server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := f.LoadServiceConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		log.Info().Msg("Initializing identity chain...")
		chain, err := identity.BuildChain(cfg.Identity, cfg.Storage, clockwork.NewRealClock())
		if err != nil {
			return fmt.Errorf("building identity chain: %w", err)
		}
		log.Info().
			Str("mode", chain.Mode()).
			Strs("sources", chain.SourceNames()).
			Msg("identity chain ready")

		registry, err := scopes.BuildRegistry(cfg)
		if err != nil {
			return fmt.Errorf("building scope registry: %w", err)
		}

		knownScopes := make(map[string]struct{})
		for _, name := range registry.Names() {
			knownScopes[name] = struct{}{}
		}
		if err := validation.ValidateRules(cfg.Rules, knownScopes); err != nil {
			return fmt.Errorf("validating rules: %w", err)
		}

		auditor, err := audit.BuildAuditor(cfg.Audit)
		if err != nil {
			return fmt.Errorf("building auditor: %w", err)
		}
		defer func() {
			_ = auditor.Close()
		}()

		collector := metrics.New()

		credentialCache := cache.New(registry, chain,
			cache.WithAuditor(auditor),
			cache.WithMetrics(collector),
			cache.WithPublisher(core.ScopeStorage, publish.NewEnvPublisher(
				cfg.Storage.Account,
				cfg.Storage.AccountVar,
				cfg.Storage.TokenVar,
				cfg.Storage.SecretVar,
			)),
		)

		// Warm the storage credential so the first tile request does not
		// pay acquisition latency. Failure is not fatal: a developer
		// without a CLI login still gets a running server, and the next
		// request retries.
		warmCtx, cancelWarm := context.WithTimeout(cmd.Context(), 30*time.Second)
		if err := credentialCache.Warm(warmCtx, core.ScopeStorage); err != nil {
			log.Warn().Err(err).Msg("storage credential not available yet, continuing without")
		}
		cancelWarm()

		// The database pool, in contrast, is constructed fatally: config
		// promising a database that cannot be reached should fail the
		// deployment right away.
		var pinger api.DatabasePinger
		if cfg.Database != nil {
			log.Info().Msg("Connecting database pool...")
			connString, err := db.BuildConnString(cmd.Context(), credentialCache, *cfg.Database)
			if err != nil {
				return fmt.Errorf("building database connection string: %w", err)
			}
			pool, err := db.Connect(cmd.Context(), connString, cfg.Database.MaxConns)
			if err != nil {
				return fmt.Errorf("connecting database: %w", err)
			}
			defer pool.Close()
			pinger = pool
		}

		eng, err := engine.New(cfg.Rules)
		if err != nil {
			return fmt.Errorf("building rule engine: %w", err)
		}

		var tilesHandler http.Handler
		switch cfg.Tiles.Mode {
		case config.TilesStatic:
			tilesHandler = tiles.NewBlobHandler(cfg.Storage)
		case config.TilesProxy:
			tilesHandler, err = tiles.NewProxyHandler(cfg.Tiles.Upstream)
			if err != nil {
				return fmt.Errorf("building tile proxy: %w", err)
			}
		case config.TilesOff:
			log.Info().Msg("tile frontend disabled")
		}

		manager := tasks.NewManager()
		defer manager.Shutdown()
		manager.Register(tasks.TaskDefinition{
			Name:     "credential-refresh",
			Interval: cfg.Refresh.Interval,
			Timeout:  2 * time.Minute,
			Handler: func(ctx context.Context, logger logging.InternalLogger) error {
				if err := credentialCache.RefreshDue(ctx); err != nil {
					logger.Error("refreshing credentials: %v", err)
					return err
				}
				logger.Info("all credentials inside their validity window")
				return nil
			},
		})

		srv := api.NewServer(credentialCache, eng, manager, collector, pinger, api.ChainInfo{
			Mode:    chain.Mode(),
			Sources: chain.SourceNames(),
		})

		server := &http.Server{
			Addr:    addr,
			Handler: srv.Routes(tilesHandler),
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
}
