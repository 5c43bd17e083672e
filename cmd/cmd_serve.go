package cmd

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/envconfig"
	"github.com/localinfer/localinfer/internal/httpserver"
	"github.com/localinfer/localinfer/internal/objectstore"
)

// newServeCmd builds the serve subcommand, grounded on cmd_serve.go's
// RunServer: listen, build the route table, run until the listener
// closes.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetLogLoggerLevel(envconfig.LogLevel())

			store, err := objectstore.Open(envconfig.ModelsDir())
			if err != nil {
				return err
			}

			addr := envconfig.ServeAddr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			slog.Info("localinfer serve", "addr", addr, "models", envconfig.ModelsDir())

			srv := &httpserver.Server{Engine: engine.New(), Store: store}
			router := httpserver.New(srv, nil)

			err = http.Serve(ln, router)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	return serveCmd
}
