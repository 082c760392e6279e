package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/api"
)

func newProxyCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run only the card catalog reverse proxy",
		Long: `Serves GET /proxy without the rest of the API. Useful when the web interface
is hosted statically and only needs a way around cross-origin restrictions.`,
		Example: `  pokecapture proxy --port 3001
  curl 'http://localhost:3001/proxy?q=name:pikachu&page=1&pageSize=10'
  curl 'http://localhost:3001/proxy?api=tcgdex&lang=en'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = a.cfg.Server.Port
			}

			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           api.SetupProxyRouter(a.cfg, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("proxy listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (defaults to the server port)")

	return cmd
}
