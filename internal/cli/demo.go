package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/fixture"
	"github.com/jask/powerpolicy/internal/session"
)

func Demo(opts *Options) *cobra.Command {
	var addr string
	var serveOnly bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "run against a built-in sample server (sign in as admin/admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck

			srv, baseURL, err := startDemo(addr, e.log.Named("demo"))
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			if serveOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "Serving sample data on %s (admin/admin, reader/reader)\n", baseURL)
				<-cmd.Context().Done()
				return nil
			}

			// the demo never touches the real session file
			e.session = session.NewMemory()
			e.cfg.API.BaseURL = baseURL
			return runTUI(cmd.Context(), e)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "listen address for the sample server")
	cmd.Flags().BoolVar(&serveOnly, "serve", false, "only run the sample server")
	return cmd
}

// startDemo serves the sample dataset on addr and returns its base URL.
func startDemo(addr string, log *zap.Logger) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrapf(err, "listen on %s", addr)
	}
	fx := fixture.New(fixture.Sample(), fixture.WithLogger(log))
	srv := &http.Server{Handler: fx.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("demo server stopped", zap.Error(err))
		}
	}()
	baseURL := "http://" + ln.Addr().String()
	log.Info("demo server listening", zap.String("url", baseURL))
	return srv, baseURL, nil
}
