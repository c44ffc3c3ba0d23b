package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/config"
	"github.com/example/parcel-express/internal/events"
	httpapi "github.com/example/parcel-express/internal/http"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/site"
	"github.com/example/parcel-express/internal/storage"
)

// app is the wired website: everything serve needs, plus what to close.
type app struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	actor   *backend.Actor
	dial    backend.Dialer
	client  *query.Client
	server  *httpapi.Server
	closers []func() error
}

func newBlobStore(ctx context.Context, cfg config.ServerConfig) (store blob.Store, servedAt string, err error) {
	if cfg.S3Bucket != "" {
		s3, err := blob.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3PublicBase)
		return s3, "", err
	}
	return blob.NewMemoryStore(cfg.BlobPrefix), cfg.BlobPrefix, nil
}

// newDialer returns the remote backend when an endpoint is configured and the
// in-process one otherwise.
func newDialer(cfg config.ServerConfig, blobs blob.Store) backend.Dialer {
	if cfg.BackendEndpoint != "" {
		return backend.Dial(cfg.BackendEndpoint, cfg.BackendTimeout, blobs)
	}
	mem := backend.NewMemory(cfg.Admins, blobs)
	return func(context.Context) (backend.Service, error) { return mem, nil }
}

func sessionSecret(cfg config.ServerConfig, logger *slog.Logger) (string, error) {
	if cfg.SessionSecret != "" {
		return cfg.SessionSecret, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	logger.Warn("session_secret_generated", "detail", "sessions will not survive a restart")
	return hex.EncodeToString(b), nil
}

func buildApp(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, actor: backend.NewActor()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	checks := make(map[string]func(ctx context.Context) error)

	blobs, servedAt, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	a.dial = newDialer(cfg, blobs)

	var bus query.Bus = query.LocalBus{}
	if cfg.RedisAddr != "" {
		rb := query.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel, logger.With("component", "bus"))
		bus = rb
		checks["redis"] = rb.Ping
		a.closers = append(a.closers, rb.Close)
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		pub = kp
		a.closers = append(a.closers, kp.Close)
	}

	var enquiries storage.EnquiryStore = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.RunMigrations {
			applied, err := pg.Migrate(ctx)
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations_applied", "files", applied)
		}
		enquiries = pg
		checks["postgres"] = pg.Ping
	}

	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	provider, err := identity.NewProvider(secret, cfg.SessionTTL, cfg.SecureCookies, cfg.Accounts)
	if err != nil {
		return nil, err
	}
	content, err := site.Load()
	if err != nil {
		return nil, err
	}

	cache := query.NewCache(cfg.CacheStaleTime, logger.With("component", "query"))
	a.client = query.NewClient(a.actor, cache, bus, logger.With("component", "query"))
	emitter := events.NewEmitter(pub, logger.With("component", "events"))
	a.client.OnMutation(emitter.Mutation)

	a.server, err = httpapi.NewServer(httpapi.Deps{
		Client:        a.client,
		Identity:      provider,
		Site:          content,
		Contact:       cfg.Contact,
		Blobs:         blobs,
		Enquiries:     enquiries,
		Events:        emitter,
		BlobPrefix:    servedAt,
		FormRateLimit: cfg.FormRateLimit,
		FormBurst:     cfg.FormBurst,
		Checks:        checks,
	}, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// connect initialises the backend client, retrying with backoff until it
// succeeds or ctx ends. Pages waiting on the caller role are refreshed once
// it is ready.
func (a *app) connect(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		err := a.actor.Connect(ctx, a.dial)
		if err == nil {
			a.logger.Info("backend_ready", "endpoint", a.cfg.BackendEndpoint)
			a.client.Cache().Invalidate(ctx, query.CallerRoleKey(""))
			return
		}
		a.logger.Warn("backend_connect_failed", "error", err, "retry_in", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// subscribe keeps the invalidation bus subscription alive.
func (a *app) subscribe(ctx context.Context) {
	for {
		err := a.client.Subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("bus_subscription_lost", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
