package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/metrics"
	"github.com/koustreak/sqlrefine/internal/metrics/prom"
	"github.com/koustreak/sqlrefine/internal/results"
	"github.com/koustreak/sqlrefine/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve refine jobs and results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			backend, err := prom.NewBackend()
			if err != nil {
				return err
			}
			metrics.SetBackend(backend)

			var (
				store filestore.Store
				pub   *results.Publisher
			)
			if a.cfg.Store.Enabled() {
				if store, err = a.objectStore(ctx); err != nil {
					return err
				}
				pub = results.NewPublisher(store, &a.cfg.Store, a.log)
			}

			runner := server.NewRunner(a.cfg.Refine, pub, cfg.QueueSize, a.log)
			srv := server.New(server.Options{
				Runner:         runner,
				Results:        results.NewDir(a.cfg.Refine.OutputDir),
				Publisher:      pub,
				Store:          store,
				Bucket:         a.cfg.Store.Bucket,
				UploadDir:      a.cfg.Refine.WorkDir,
				MaxUploadBytes: cfg.MaxUploadBytes,
				Metrics:        backend.Handler(),
				Logger:         a.log,
			})
			httpSrv := srv.HTTPServer(cfg.Addr, cfg.ReadTimeout, cfg.WriteTimeout)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return runner.Run(gctx)
			})
			g.Go(func() error {
				a.log.Infof("listening on %s", cfg.Addr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				a.log.Info("shutting down")
				return httpSrv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr from the config)")
	return cmd
}
