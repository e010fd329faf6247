package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zkminter/internal/config"
	"zkminter/internal/logger"
	"zkminter/internal/server"
)

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API: health, metrics and on-demand runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if port > 0 {
				c.Server.HTTPPort = port
			}

			a, err := newApp(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []server.Option{
				server.WithMetrics(a.metrics),
				server.WithDeadLetters(a.dead),
				server.WithProbe("ledger", a.store.Ping),
			}
			for _, def := range a.usedNetworks() {
				opts = append(opts, server.WithProbe(def.Name, a.probe(def)))
			}
			apiServer := server.NewServer(c.Server, a.run, opts...)

			errCh := make(chan error, 1)
			go func() {
				errCh <- apiServer.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := apiServer.Shutdown(ctx); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
