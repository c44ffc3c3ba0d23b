package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
)

// RPCHandler exposes a Service over the protocol HTTPClient speaks. It lets
// the in-process backend run as a standalone process for local development.
type RPCHandler struct {
	svc    Service
	logger *slog.Logger
	router *mux.Router
	// Authenticate resolves the caller of a request. The default trusts the
	// principal header.
	Authenticate func(r *http.Request) (Caller, bool)
}

func NewRPCHandler(svc Service, logger *slog.Logger) *RPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &RPCHandler{svc: svc, logger: logger, router: mux.NewRouter(), Authenticate: headerCaller}
	h.router.HandleFunc(rpcPrefix+"{method}", h.handle).Methods(http.MethodPost)
	return h
}

func headerCaller(r *http.Request) (Caller, bool) {
	p := strings.TrimSpace(r.Header.Get(headerPrincipal))
	if p == "" {
		return Caller{}, false
	}
	return Caller{Principal: p, Token: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")}, true
}

// BearerCaller authenticates by the bearer token alone; verify maps a token
// to its principal. The principal header is ignored.
func BearerCaller(verify func(token string) (string, error)) func(r *http.Request) (Caller, bool) {
	return func(r *http.Request) (Caller, bool) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			return Caller{}, false
		}
		p, err := verify(token)
		if err != nil || p == "" {
			return Caller{}, false
		}
		return Caller{Principal: p, Token: token}, true
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.router.ServeHTTP(w, r) }

type rpcFunc func(ctx context.Context, dec *json.Decoder) (any, error)

func (h *RPCHandler) methods() map[string]rpcFunc {
	s := h.svc
	return map[string]rpcFunc{
		"getSiteContent":      func(ctx context.Context, _ *json.Decoder) (any, error) { return s.GetSiteContent(ctx) },
		"getRates":            func(ctx context.Context, _ *json.Decoder) (any, error) { return s.GetRates(ctx) },
		"getContactNumber":    func(ctx context.Context, _ *json.Decoder) (any, error) { return s.GetContactNumber(ctx) },
		"getWhatsAppTemplate": func(ctx context.Context, _ *json.Decoder) (any, error) { return s.GetWhatsAppTemplate(ctx) },
		"getCallerRole":       func(ctx context.Context, _ *json.Decoder) (any, error) { return s.GetCallerRole(ctx) },
		"listOrders":          func(ctx context.Context, _ *json.Decoder) (any, error) { return s.ListOrders(ctx) },
		"listRiderProfiles":   func(ctx context.Context, _ *json.Decoder) (any, error) { return s.ListRiderProfiles(ctx) },
		"listRiderApplications": func(ctx context.Context, _ *json.Decoder) (any, error) {
			return s.ListRiderApplications(ctx)
		},
		"updateSiteContent": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var u models.SiteContentUpdate
			if err := dec.Decode(&u); err != nil {
				return nil, invalid(err)
			}
			return nil, s.UpdateSiteContent(ctx, u)
		},
		"addRate": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var r models.Rate
			if err := dec.Decode(&r); err != nil {
				return nil, invalid(err)
			}
			return nil, s.AddRate(ctx, r)
		},
		"removeRate": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var k models.DistanceRange
			if err := dec.Decode(&k); err != nil {
				return nil, invalid(err)
			}
			return nil, s.RemoveRate(ctx, k)
		},
		"createOrder": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var o models.NewOrder
			if err := dec.Decode(&o); err != nil {
				return nil, invalid(err)
			}
			return s.CreateOrder(ctx, o)
		},
		"getOrder": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a idArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return s.GetOrder(ctx, a.ID)
		},
		"updateOrderStatus": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a statusArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.UpdateOrderStatus(ctx, a.ID, a.Status)
		},
		"assignRider": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a assignArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.AssignRider(ctx, a.ID, a.RiderName, a.RiderContact)
		},
		"attachProof": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a proofArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.AttachProof(ctx, a.ID, a.Proof)
		},
		"removeOrder": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a idArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.RemoveOrder(ctx, a.ID)
		},
		"getDeliveryProof": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a idArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return s.GetDeliveryProof(ctx, a.ID)
		},
		"getAssignedDeliveries": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a riderArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return s.GetAssignedDeliveries(ctx, a.Principal)
		},
		"updateDeliveryStatus": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a riderArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.UpdateDeliveryStatus(ctx, a.Principal, a.ID, a.Status)
		},
		"uploadProofOfDelivery": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a riderArgs
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			if a.Proof == nil {
				a.Proof = &blob.Handle{}
			}
			return nil, s.UploadProofOfDelivery(ctx, a.Principal, a.ID, *a.Proof)
		},
		"addRiderProfile": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var p models.RiderProfile
			if err := dec.Decode(&p); err != nil {
				return nil, invalid(err)
			}
			return nil, s.AddRiderProfile(ctx, p)
		},
		"applyAsRider": func(ctx context.Context, dec *json.Decoder) (any, error) {
			var a models.RiderApplication
			if err := dec.Decode(&a); err != nil {
				return nil, invalid(err)
			}
			return nil, s.ApplyAsRider(ctx, a)
		},
	}
}

func invalid(err error) error { return fmt.Errorf("%w: %v", ErrInvalid, err) }

func (h *RPCHandler) handle(w http.ResponseWriter, r *http.Request) {
	method := mux.Vars(r)["method"]
	fn, ok := h.methods()[method]
	if !ok {
		writeRPC(w, http.StatusNotFound, rpcEnvelope{Error: "unknown method " + method})
		return
	}
	ctx := r.Context()
	if c, ok := h.Authenticate(r); ok {
		ctx = WithCaller(ctx, c)
	}
	result, err := fn(ctx, json.NewDecoder(r.Body))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("rpc_failed", "method", method, "error", err)
		}
		writeRPC(w, status, rpcEnvelope{Error: err.Error()})
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		writeRPC(w, http.StatusInternalServerError, rpcEnvelope{Error: err.Error()})
		return
	}
	writeRPC(w, http.StatusOK, rpcEnvelope{Result: raw})
}

func writeRPC(w http.ResponseWriter, status int, env rpcEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
