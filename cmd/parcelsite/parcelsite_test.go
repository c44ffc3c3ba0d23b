package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/schollz/progressbar/v3"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/config"
	"github.com/example/parcel-express/internal/identity"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	cfg, err := config.LoadServerConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Admins = []string{"owner"}
	cfg.Accounts = []identity.Account{{Principal: "owner", Passcode: "pw"}}
	cfg.RedisAddr, cfg.PGDSN, cfg.BackendEndpoint, cfg.S3Bucket = "", "", "", ""
	cfg.KafkaBrokers = nil
	return cfg
}

func TestBuildAppWithInProcessBackend(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, testConfig(t), discardLogger())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.close()

	rr := httptest.NewRecorder()
	a.server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before connect, got %d", rr.Code)
	}

	a.connect(ctx)
	if !a.actor.Usable() {
		t.Fatalf("expected backend to be usable after connect")
	}
	for _, path := range []string{"/ready", "/healthz", "/"} {
		rr := httptest.NewRecorder()
		a.server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestConnectStopsWhenContextEnds(t *testing.T) {
	a := &app{
		logger: discardLogger(),
		actor:  backend.NewActor(),
		dial: func(context.Context) (backend.Service, error) {
			return nil, errors.New("connection refused")
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.connect(ctx)
	if _, ok := a.actor.State().(backend.Failed); !ok {
		t.Fatalf("expected Failed state, got %T", a.actor.State())
	}
}

func TestUploadWithProgress(t *testing.T) {
	mem := backend.NewMemory(nil, blob.NewMemoryStore("/blobs"))
	bar := progressbar.NewOptions(100, progressbar.OptionSetWriter(io.Discard))
	data := bytes.Repeat([]byte("x"), 4096)

	h, err := uploadWithProgress(context.Background(), mem, "proof.jpg", "image/jpeg", data, bar)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, err := mem.BindBlob(h).Bytes(context.Background())
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("stored bytes mismatch: err=%v len=%d", err, len(got))
	}
	if !bar.IsFinished() {
		t.Fatalf("expected progress bar to be finished")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestConsumerMuxReadiness(t *testing.T) {
	rr := httptest.NewRecorder()
	consumerMux(fakePinger{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	consumerMux(fakePinger{err: errors.New("down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCLICallerSignsInWhenTokensAreVerified(t *testing.T) {
	cfg := testConfig(t)
	if c, err := cliCaller(cfg, "owner", ""); err != nil || c.Principal != "owner" || c.Token != "" {
		t.Fatalf("without a secret the principal is sent as is: %+v %v", c, err)
	}

	cfg.SessionSecret = "0123456789abcdef0123"
	if _, err := cliCaller(cfg, "owner", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	c, err := cliCaller(cfg, "owner", "pw")
	if err != nil || c.Token == "" {
		t.Fatalf("sign in: %+v %v", c, err)
	}
	provider, _ := identity.NewProvider(cfg.SessionSecret, cfg.SessionTTL, false, cfg.Accounts)
	if sess, err := provider.Verify(c.Token); err != nil || sess.Principal != "owner" {
		t.Fatalf("token should verify against the shared secret: %+v %v", sess, err)
	}
}
