package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/parcel-express/internal/backend"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider("0123456789abcdef0123", time.Hour, false, []Account{
		{Principal: "admin", Name: "Owner", Passcode: "letmein"},
		{Principal: "9000000001", Name: "Ravi", Passcode: "1234"},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestNewProviderValidation(t *testing.T) {
	if _, err := NewProvider("short", time.Hour, false, nil); err == nil {
		t.Fatal("short secret should be rejected")
	}
	if _, err := NewProvider("0123456789abcdef", time.Hour, false, []Account{{Principal: "x"}}); err == nil {
		t.Fatal("account without passcode should be rejected")
	}
}

func TestLoginAndVerify(t *testing.T) {
	p := newProvider(t)
	if _, _, err := p.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := p.Login("nobody", "letmein"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	token, s, err := p.Login(" 9000000001 ", "1234")
	if err != nil || s.Principal != "9000000001" || s.Name != "Ravi" {
		t.Fatalf("login: %+v %v", s, err)
	}
	got, err := p.Verify(token)
	if err != nil || got.Principal != "9000000001" || got.Token != token {
		t.Fatalf("verify: %+v %v", got, err)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	p := newProvider(t)
	token, _, _ := p.Login("admin", "letmein")

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := p.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired token should be rejected, got %v", err)
	}

	other, _ := NewProvider("another-secret-0123456", time.Hour, false, []Account{{Principal: "admin", Passcode: "letmein"}})
	foreign, _, _ := other.Login("admin", "letmein")
	if _, err := newProvider(t).Verify(foreign); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("token signed with another secret should be rejected, got %v", err)
	}
}

func TestMiddlewarePlacesSessionAndCaller(t *testing.T) {
	p := newProvider(t)
	token, _, _ := p.Login("admin", "letmein")

	var seen Session
	var caller backend.Caller
	var hasCaller bool
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		caller, hasCaller = backend.CallerFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !seen.Present() || seen.Principal != "admin" || !hasCaller || caller.Principal != "admin" {
		t.Fatalf("session not propagated: %+v %+v", seen, caller)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen.Present() || hasCaller {
		t.Fatal("invalid cookie must yield no identity")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	p := newProvider(t)
	rec := httptest.NewRecorder()
	p.Logout(rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].MaxAge >= 0 {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
}
