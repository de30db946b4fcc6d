package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/newsletterpipe/core/deliver"
	"github.com/gaurav-prasanna/newsletterpipe/core/persist"
	"github.com/gaurav-prasanna/newsletterpipe/core/pipeline"
	"github.com/gaurav-prasanna/newsletterpipe/server"
)

const shutdownGrace = 10 * time.Second

var (
	flagAddr      string
	flagEphemeral bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Serve exposes sessions over a JSON HTTP API. Committed artifacts are written
through to SQLite and restored on the next start; idle sessions are swept on
the configured interval. Ready notices can be polled per session and, when
delivery.webhook_url is set, are also POSTed to the webhook.

Examples:
  newsletterpipe serve
  newsletterpipe serve --addr 0.0.0.0:8787 --provider openai`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&flagEphemeral, "ephemeral", false, "Keep sessions in memory only")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	addr := a.cfg.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	board := deliver.NewBoard(nil)
	notifiers := deliver.Fanout{board}
	if url := a.cfg.Delivery.WebhookURL; url != "" {
		hook := deliver.NewWebhook(url, deliver.WithTimeout(a.cfg.DeliveryTimeout()), deliver.WithLogger(a.logger))
		defer hook.Close()
		notifiers = append(notifiers, hook)
		a.logger.Info("webhook delivery enabled", "url", url)
	}
	opts := []pipeline.Option{pipeline.WithNotifier(notifiers)}

	var store *persist.Store
	if !flagEphemeral {
		lock := flock.New(a.cfg.Session.DBPath + ".lock")
		if err := os.MkdirAll(filepath.Dir(a.cfg.Session.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another newsletterpipe server is already using %s", a.cfg.Session.DBPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				a.logger.Warn("failed to release lock", "error", err)
			}
		}()

		if store, err = persist.Open(a.cfg.Session.DBPath); err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithSink(store))
	}

	orch, err := a.orchestrator(a.stabilizer(a.engine()), opts...)
	if err != nil {
		return err
	}
	if store != nil {
		snaps, err := store.Load(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("sessions restored", "count", orch.Restore(snaps), "db", store.Path())
	}

	go sweep(ctx, a, orch)

	srv := server.New(orch, board, server.WithLogger(a.logger), server.WithPageFormat(a.cfg.PageFormat()))
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout(a),
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	a.logger.Info("server listening", "address", listener.Addr().String(), "engine", a.cfg.Render.Engine, "provider", a.cfg.Oracle.Provider)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", listener.Addr())

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweep removes idle sessions until ctx is done.
func sweep(ctx context.Context, a *app, orch *pipeline.Orchestrator) {
	ticker := time.NewTicker(a.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := orch.SweepExpired(ctx, a.cfg.SessionTTL()); len(removed) > 0 {
				a.logger.Info("expired sessions swept", "count", len(removed))
			}
		}
	}
}

// writeTimeout covers a markup call with its retries plus a render.
func writeTimeout(a *app) time.Duration {
	return time.Duration(a.cfg.Oracle.Retries+1)*a.cfg.OracleTimeout() + 2*time.Minute + 30*time.Second
}
