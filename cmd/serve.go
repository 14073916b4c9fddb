package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/monitoring"
	"github.com/sells-group/extraction-ops/internal/server"
	"github.com/sells-group/extraction-ops/internal/store"
)

var (
	servePort    int
	serveNoStore bool
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API and queue poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := newClient(cfg)

		aggOpts, err := aggregateOptions(cfg)
		if err != nil {
			return err
		}
		cmp, err := newComparator(cfg, client)
		if err != nil {
			return err
		}

		var st store.Store
		if !serveNoStore {
			st, err = initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		hub := dashboard.NewHub[dashboard.Snapshot]()
		poller := dashboard.NewPoller(client, hub, cfg.Poll, aggOpts)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(hub, monitoring.NewAlerter(cfg.Monitoring))
			wg.Add(1)
			go func() {
				defer wg.Done()
				checker.Run(ctx)
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.New(cfg.Server, client, hub, cmp, st).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		err = srv.ListenAndServe()
		stop()
		wg.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "run without the report store")
	rootCmd.AddCommand(serveCmd)
}
