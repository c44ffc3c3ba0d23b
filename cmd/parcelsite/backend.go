package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/logging"
)

var backendAddr string

// backendCmd runs the in-process backend as its own process, for pointing a
// site at with backend_endpoint during local development.
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run a development backend over HTTP (development only)",
	Long: `backend serves the in-process backend over the RPC protocol the site speaks.
It keeps everything in memory and is meant for local development only.

With session_secret set, callers are authenticated by the session token the
site forwards, so the site and this backend must share session_secret.
Without it the caller principal header is trusted as sent; keep --addr on
loopback in that mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat).With("component", "backend")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		blobs, _, err := newBlobStore(ctx, cfg)
		if err != nil {
			return err
		}
		h := backend.NewRPCHandler(backend.NewMemory(cfg.Admins, blobs), logger)
		if cfg.SessionSecret != "" {
			provider, err := identity.NewProvider(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies, cfg.Accounts)
			if err != nil {
				return err
			}
			h.Authenticate = backend.BearerCaller(func(token string) (string, error) {
				sess, err := provider.Verify(token)
				return sess.Principal, err
			})
		} else {
			logger.Warn("backend_trusts_principal_header", "detail", "set session_secret to verify session tokens")
		}
		srv := &http.Server{
			Addr:         backendAddr,
			Handler:      h,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("backend_listening", "addr", backendAddr, "admins", cfg.Admins)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	backendCmd.Flags().StringVar(&backendAddr, "addr", "127.0.0.1:8090", "address to serve the backend on")
}
