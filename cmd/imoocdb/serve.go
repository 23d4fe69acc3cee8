package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/imoocdb/imoocdb/logger"
	"github.com/imoocdb/imoocdb/server/engine"
	"github.com/imoocdb/imoocdb/server/wire/pg"
)

var metricsAddress string

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "listen for PostgreSQL wire-protocol connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := engine.Open(afero.NewOsFs(), cfg)
			if err != nil {
				return err
			}

			if metricsAddress != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					logger.Logger.WithField("addr", metricsAddress).Info("imoocdb: serving /metrics")
					if err := http.ListenAndServe(metricsAddress, mux); err != nil {
						logger.ErrorLogger.WithError(err).Error("imoocdb: metrics server stopped")
					}
				}()
			}

			server := pg.NewServer(db, pg.DefaultPlanner{})
			return server.ListenAndServe(cfg.ListenAddress)
		},
	}
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "address to serve Prometheus metrics on (disabled if empty)")
	return cmd
}
