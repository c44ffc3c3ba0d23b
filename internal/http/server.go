// Package httpapi serves the site: public pages, the admin console, the
// rider portal, their form actions, and the live websocket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/contact"
	"github.com/example/parcel-express/internal/events"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/live"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/site"
	"github.com/example/parcel-express/internal/storage"
	"github.com/example/parcel-express/internal/upload"
)

// Deps are the collaborators a Server renders and acts through.
type Deps struct {
	Client    *query.Client
	Identity  *identity.Provider
	Site      *site.Content
	Contact   contact.Config
	Blobs     blob.Store
	Enquiries storage.EnquiryStore
	Events    *events.Emitter

	// BlobPrefix is where Blobs is served from, "" to not serve it.
	BlobPrefix string
	// FormRateLimit and FormBurst throttle public form posts per address.
	FormRateLimit float64
	FormBurst     int
	// Checks run on /ready in addition to the backend state.
	Checks map[string]func(ctx context.Context) error
}

type Server struct {
	client    *query.Client
	identity  *identity.Provider
	site      *site.Content
	contact   contact.Config
	blobs     blob.Store
	enquiries storage.EnquiryStore
	events    *events.Emitter
	checks    map[string]func(ctx context.Context) error

	uploads *upload.Registry
	hub     *live.Hub
	pages   *renderer
	limiter *ipLimiter
	logger  *slog.Logger
	mux     *mux.Router

	blobPrefix string
}

func NewServer(d Deps, logger *slog.Logger) (*Server, error) {
	if d.Client == nil || d.Identity == nil || d.Site == nil {
		return nil, errors.New("httpapi: client, identity and site content are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pages, err := newRenderer()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if d.Events == nil {
		d.Events = events.NewEmitter(nil, logger)
	}
	s := &Server{
		client:     d.Client,
		identity:   d.Identity,
		site:       d.Site,
		contact:    d.Contact,
		blobs:      d.Blobs,
		enquiries:  d.Enquiries,
		events:     d.Events,
		checks:     d.Checks,
		pages:      pages,
		limiter:    newIPLimiter(d.FormRateLimit, d.FormBurst),
		logger:     logger.With("component", "http"),
		mux:        mux.NewRouter(),
		blobPrefix: strings.TrimRight(d.BlobPrefix, "/"),
	}
	s.hub = live.NewHub(d.Client, s.resolveLive, logger.With("component", "live"))
	s.uploads = upload.NewRegistry(func(topic string, snap upload.Snapshot) {
		var msg string
		if snap.Err != nil {
			msg = snap.Err.Error()
		}
		s.hub.Progress(topic, snap.State.String(), snap.Progress, msg)
	})
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleHome).Methods("GET")
	s.mux.HandleFunc("/services", s.handleServices).Methods("GET")
	s.mux.HandleFunc("/how-it-works", s.handleHowItWorks).Methods("GET")
	s.mux.HandleFunc("/rate-card", s.handleRateCard).Methods("GET")
	s.mux.HandleFunc("/contact", s.handleContact).Methods("GET")
	s.mux.HandleFunc("/contact", s.limitForms(s.handleEnquiry)).Methods("POST")
	s.mux.HandleFunc("/apply", s.limitForms(s.handleApply)).Methods("POST")

	s.mux.HandleFunc("/login", s.handleLoginPage).Methods("GET")
	s.mux.HandleFunc("/login", s.limitForms(s.handleLogin)).Methods("POST")
	s.mux.HandleFunc("/logout", s.handleLogout).Methods("POST")

	s.mux.HandleFunc("/admin", s.handleAdmin).Methods("GET")
	admin := s.mux.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/content", s.handleUpdateContent).Methods("POST")
	admin.HandleFunc("/rates", s.handleAddRate).Methods("POST")
	admin.HandleFunc("/rates/remove", s.handleRemoveRate).Methods("POST")
	admin.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	admin.HandleFunc("/orders/{id:[0-9]+}/status", s.handleOrderStatus).Methods("POST")
	admin.HandleFunc("/orders/{id:[0-9]+}/assign", s.handleAssignRider).Methods("POST")
	admin.HandleFunc("/orders/{id:[0-9]+}/proof", s.handleAdminProofUpload).Methods("POST")
	admin.HandleFunc("/orders/{id:[0-9]+}/proof", s.handleProofDownload).Methods("GET")
	admin.HandleFunc("/orders/{id:[0-9]+}/delete", s.handleRemoveOrder).Methods("POST")
	admin.HandleFunc("/riders", s.handleAddRider).Methods("POST")

	s.mux.HandleFunc("/rider", s.handleRider).Methods("GET")
	s.mux.HandleFunc("/rider/orders/{id:[0-9]+}/status", s.handleDeliveryStatus).Methods("POST")
	s.mux.HandleFunc("/rider/orders/{id:[0-9]+}/proof", s.handleRiderProofUpload).Methods("POST")
	s.mux.HandleFunc("/rider/orders/{id:[0-9]+}/proof", s.handleProofDownload).Methods("GET")

	if s.blobPrefix != "" && s.blobs != nil {
		s.mux.PathPrefix(s.blobPrefix + "/").HandlerFunc(s.handleBlob).Methods("GET")
	}
	s.mux.Handle("/live", s.hub)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Uploads exposes the proof upload workflows.
func (s *Server) Uploads() *upload.Registry { return s.uploads }

// Hub exposes the live websocket hub.
func (s *Server) Hub() *live.Hub { return s.hub }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var errs []error
	if !s.client.Actor().Usable() {
		errs = append(errs, errors.New("backend: not ready"))
	}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, s.blobPrefix+"/")
	data, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("blob_read_failed", "key", key, "error", err)
		http.Error(w, "could not read file", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
