package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/config"
	"github.com/example/parcel-express/internal/identity"
)

var (
	proofOrder    uint64
	proofAs       string
	proofPasscode string
	proofAsRider  bool
)

// uploadProofCmd attaches a proof photo to an order from the command line,
// for deliveries confirmed outside the dashboard.
var uploadProofCmd = &cobra.Command{
	Use:   "upload-proof <file>",
	Short: "Upload a proof of delivery photo and attach it to an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.BackendEndpoint == "" || cfg.S3Bucket == "" {
			return errors.New("upload-proof needs backend_endpoint and s3_bucket")
		}
		if proofOrder == 0 || proofAs == "" {
			return errors.New("--order and --as are required")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		caller, err := cliCaller(cfg, proofAs, proofPasscode)
		if err != nil {
			return err
		}
		ctx := backend.WithCaller(cmd.Context(), caller)
		blobs, _, err := newBlobStore(ctx, cfg)
		if err != nil {
			return err
		}
		svc, err := backend.Dial(cfg.BackendEndpoint, cfg.BackendTimeout, blobs)(ctx)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription(filepath.Base(args[0])),
			progressbar.OptionShowBytes(false),
			progressbar.OptionClearOnFinish(),
		)
		h, err := uploadWithProgress(ctx, svc, filepath.Base(args[0]), http.DetectContentType(data), data, bar)
		if err != nil {
			return err
		}
		if proofAsRider {
			err = svc.UploadProofOfDelivery(ctx, proofAs, proofOrder, h)
		} else {
			err = svc.AttachProof(ctx, proofOrder, h)
		}
		if err != nil {
			return fmt.Errorf("attach proof to order #%d: %w", proofOrder, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "order #%d proof: %s\n", proofOrder, h.DirectURL())
		return nil
	},
}

func init() {
	uploadProofCmd.Flags().Uint64Var(&proofOrder, "order", 0, "order id")
	uploadProofCmd.Flags().StringVar(&proofAs, "as", "", "principal to act as")
	uploadProofCmd.Flags().StringVar(&proofPasscode, "passcode", "", "passcode of --as, required when session_secret is set")
	uploadProofCmd.Flags().BoolVar(&proofAsRider, "rider", false, "attach as the assigned rider instead of an admin")
}

func uploadWithProgress(ctx context.Context, svc backend.Service, name, contentType string, data []byte, bar *progressbar.ProgressBar) (blob.Handle, error) {
	h, err := blob.Wait(svc.UploadBlob(ctx, name, contentType, data), func(p int) {
		_ = bar.Set(p)
	})
	if err != nil {
		return blob.Handle{}, err
	}
	_ = bar.Finish()
	return h, nil
}

// cliCaller signs in as principal when the backend verifies session tokens.
func cliCaller(cfg config.ServerConfig, principal, passcode string) (backend.Caller, error) {
	if cfg.SessionSecret == "" {
		return backend.Caller{Principal: principal}, nil
	}
	provider, err := identity.NewProvider(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies, cfg.Accounts)
	if err != nil {
		return backend.Caller{}, err
	}
	token, sess, err := provider.Login(principal, passcode)
	if err != nil {
		return backend.Caller{}, err
	}
	return backend.Caller{Principal: sess.Principal, Token: token}, nil
}
