package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eve-arbitrage/internal/api"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/pipeline"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the scheduler and the query API until interrupted.
func NewServeCommand(version string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run periodic route computation and serve results over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Banner(version)
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := pipeline.NewScheduler(a.runner, cfg.Scheduler.Interval)
			sched.Start(ctx)

			srv := api.NewServer(api.Deps{
				Config:   cfg.API,
				Catalog:  a.catalog,
				Store:    a.store,
				Runs:     a.runner,
				Trigger:  sched,
				Upstream: a.esi,
				Metrics:  a.metrics.Handler(),
			})
			httpSrv := &http.Server{
				Addr:              cfg.API.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Server(cfg.API.Addr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("HTTP", "Shutting down")
			case err := <-errCh:
				if err != nil {
					stop()
					<-sched.Done()
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP", fmt.Sprintf("Shutdown: %v", err))
			}
			<-sched.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Override api.addr")
	return cmd
}
