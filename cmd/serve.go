package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	qhttp "tumorscope/http"
	"tumorscope/ml"
	"tumorscope/monitoring"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Http.Port = port
			}
			return a.serve()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override http.port")
	return cmd
}

func (a *app) serve() error {
	cfg, logger := a.cfg, a.logger

	loader := ml.NewArtifactLoader(cfg.ArtifactPaths(), logger)
	if _, err := loader.Get(); err != nil {
		// keep serving; predictions answer 503 and /api/artifacts explains why
		logger.Error("artifacts unavailable, predictions disabled", zap.Error(err))
	}

	predictor, err := ml.NewPredictor(loader, ml.WithResultCache(cfg.Cache.Size))
	if err != nil {
		return err
	}
	metrics := monitoring.NewInferenceMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Artifacts.Watch {
		watcher, err := monitoring.NewArtifactWatcher(loader.Paths(), logger, metrics)
		if err != nil {
			logger.Warn("artifact watch disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("artifact watch stopped", zap.Error(err))
				}
			}()
		}
	}

	api := qhttp.NewAPI(predictor, loader, metrics, logger)
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, api)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
