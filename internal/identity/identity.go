// Package identity supplies the current caller identity: a signed session
// cookie issued on login and verified on every request.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/parcel-express/internal/backend"
)

const (
	CookieName = "px_session"
	issuer     = "parcel-express"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid principal or passcode")
	ErrInvalidSession     = errors.New("identity: invalid session")
)

// Account is a principal allowed to sign in. Riders sign in with their
// registered mobile number as principal.
type Account struct {
	Principal string `mapstructure:"principal"`
	Name      string `mapstructure:"name"`
	Passcode  string `mapstructure:"passcode"`
}

// Session is the identity attached to a request. A zero Session means no
// identity is present.
type Session struct {
	Principal string
	Name      string
	Token     string
}

func (s Session) Present() bool { return s.Principal != "" }

// Caller is the backend caller this session acts as.
func (s Session) Caller() backend.Caller {
	return backend.Caller{Principal: s.Principal, Token: s.Token}
}

type claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Provider struct {
	secret   []byte
	ttl      time.Duration
	secure   bool
	accounts map[string]Account
	now      func() time.Time
}

func NewProvider(secret string, ttl time.Duration, secure bool, accounts []Account) (*Provider, error) {
	if len(secret) < 16 {
		return nil, errors.New("identity: session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	p := &Provider{secret: []byte(secret), ttl: ttl, secure: secure, accounts: make(map[string]Account), now: time.Now}
	for _, a := range accounts {
		a.Principal = strings.TrimSpace(a.Principal)
		if a.Principal == "" || a.Passcode == "" {
			return nil, fmt.Errorf("identity: account %q needs a principal and passcode", a.Name)
		}
		p.accounts[a.Principal] = a
	}
	return p, nil
}

// Login checks the passcode and returns a signed session token.
func (p *Provider) Login(principal, passcode string) (string, Session, error) {
	a, ok := p.accounts[strings.TrimSpace(principal)]
	if !ok || subtle.ConstantTimeCompare([]byte(a.Passcode), []byte(passcode)) != 1 {
		return "", Session{}, ErrInvalidCredentials
	}
	token, err := p.issue(a)
	if err != nil {
		return "", Session{}, err
	}
	return token, Session{Principal: a.Principal, Name: a.Name, Token: token}, nil
}

func (p *Provider) issue(a Account) (string, error) {
	now := p.now()
	c := claims{
		Name: a.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.Principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
}

// Verify parses a session token.
func (p *Provider) Verify(token string) (Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.Subject == "" {
		return Session{}, ErrInvalidSession
	}
	return Session{Principal: c.Subject, Name: c.Name, Token: token}, nil
}

func (p *Provider) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.ttl.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Logout clears the session cookie.
func (p *Provider) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the session carried by r, or a zero Session.
func (p *Provider) FromRequest(r *http.Request) Session {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return Session{}
	}
	s, err := p.Verify(ck.Value)
	if err != nil {
		return Session{}
	}
	return s
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, s)
	if s.Present() {
		ctx = backend.WithCaller(ctx, s.Caller())
	}
	return ctx
}

func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}

// Middleware resolves the session of every request and places it, and the
// matching backend caller, into the request context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), p.FromRequest(r))))
	})
}
