package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/config"
	"github.com/alfredjeanlab/budgets/internal/events"
	"github.com/alfredjeanlab/budgets/internal/server"
	"github.com/alfredjeanlab/budgets/internal/store"
	"github.com/alfredjeanlab/budgets/internal/store/memory"
	"github.com/alfredjeanlab/budgets/internal/store/postgres"
	budgetsync "github.com/alfredjeanlab/budgets/internal/sync"
)

// backend is what serve needs from a store: the mutable records plus the
// payout ledger.
type backend interface {
	store.Store
	store.Ledger
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the budgets gRPC and HTTP servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: noClient,
	PersistentPostRun: func(*cobra.Command, []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		inMemory, _ := cmd.Flags().GetBool("memory")

		var (
			cfg *config.Config
			st  backend
			err error
		)
		if inMemory {
			if cfg, err = config.LoadInMemory(); err != nil {
				return err
			}
			st = memory.New()
			logger.Warn("using in-memory store, state is lost on exit")
		} else {
			if cfg, err = config.Load(); err != nil {
				return err
			}
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{Logger: logger}
			logger.Info("events disabled (BUDGETS_NATS_URL not set)")
		}

		budgetServer := server.NewBudgetServer(st, st, publisher, budget.Options{
			DefaultThrottle: budget.PercentCutPolicy{CutBps: cfg.ThrottleCutBps},
			Logger:          logger,
		})
		grpcServer := server.NewGRPCServer(budgetServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           budgetServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cfg, st, logger)

		logger.Info("budgets server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "",
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// startSync starts the snapshot scheduler when an interval and at least one
// destination are configured. It returns nil otherwise.
func startSync(cfg *config.Config, st store.Store, logger *slog.Logger) *budgetsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []budgetsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := budgetsync.NewS3Destination(
			context.Background(),
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
			cfg.SyncS3Archive,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key, "archive", cfg.SyncS3Archive)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, budgetsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}

	if len(dests) == 0 {
		return nil
	}
	scheduler := budgetsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}

func init() {
	serveCmd.Flags().Bool("memory", false, "use an in-memory store instead of PostgreSQL")
}
