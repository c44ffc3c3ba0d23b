package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/events"
	"github.com/example/parcel-express/internal/guard"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/upload"
)

type adminData struct {
	Decision     string
	Content      query.Result[models.SiteContent]
	Orders       query.Result[[]models.DeliveryOrder]
	Riders       query.Result[[]models.RiderProfile]
	Applications query.Result[[]models.RiderApplication]
	Prefill      models.RiderProfile
	Uploads      map[uint64]upload.Snapshot
}

// adminDecision resolves the admin guard for the caller in ctx. A failed
// role read counts as resolved to a non-admin role.
func (s *Server) adminDecision(ctx context.Context) guard.Decision {
	res := s.client.CallerRole(ctx)
	loading := res.Status == query.StatusIdle || res.Status == query.StatusLoading
	role := models.RoleGuest
	if res.HasData() {
		role = res.Data
	}
	return guard.Admin(loading, role)
}

// requireAdmin runs the admin guard in front of every admin action, so a
// caller it does not allow never reaches the backend or blob storage.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch s.adminDecision(r.Context()) {
		case guard.Allow:
			next.ServeHTTP(w, r)
		case guard.Placeholder:
			http.Error(w, "backend not ready", http.StatusServiceUnavailable)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := s.adminDecision(ctx)
	data := adminData{Decision: d.String()}
	switch d {
	case guard.Placeholder:
		s.render(w, r, http.StatusOK, "admin", true, data)
		return
	case guard.Denied:
		s.render(w, r, http.StatusForbidden, "admin", false, data)
		return
	}

	data.Content = s.client.SiteContent(ctx)
	data.Orders = s.client.AllOrders(ctx)
	data.Riders = s.client.RiderProfiles(ctx)
	data.Applications = s.client.RiderApplications(ctx)
	data.Uploads = s.uploadsFor(identity.FromContext(ctx).Principal, data.Orders.Data)
	if mobile := r.URL.Query().Get("prefill"); mobile != "" {
		for _, a := range data.Applications.Data {
			if a.Mobile == mobile {
				data.Prefill = models.RiderProfile{Name: a.Name, Mobile: a.Mobile, Area: a.Area, HasBike: a.HasBike}
				break
			}
		}
	}
	s.render(w, r, http.StatusOK, "admin", true, data)
}

func (s *Server) uploadsFor(principal string, orders []models.DeliveryOrder) map[uint64]upload.Snapshot {
	out := make(map[uint64]upload.Snapshot)
	for _, o := range orders {
		if wf, ok := s.uploads.Lookup(principal, o.ID); ok {
			out[o.ID] = wf.Snapshot()
		}
	}
	return out
}

// optional returns a pointer to the trimmed form value, or nil when the field
// was left empty or not submitted. Empty means leave unchanged.
func optional(r *http.Request, field string) *string {
	v := strings.TrimSpace(r.PostForm.Get(field))
	if v == "" {
		return nil
	}
	return &v
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.done(w, r, "/admin#content", err, "")
		return
	}
	u := models.SiteContentUpdate{
		ServicesList:     optional(r, "servicesList"),
		HowItWorks:       optional(r, "howItWorks"),
		ContactNumber:    optional(r, "contactNumber"),
		WhatsAppTemplate: optional(r, "whatsappTemplate"),
	}
	err := s.client.UpdateSiteContent(r.Context(), u)
	s.done(w, r, "/admin#content", err, "Site content updated")
}

func formInt(r *http.Request, field string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(field)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", field)
	}
	return v, nil
}

func formRange(r *http.Request) (models.DistanceRange, error) {
	lo, err := formInt(r, "minDistance")
	if err != nil {
		return models.DistanceRange{}, err
	}
	hi, err := formInt(r, "maxDistance")
	if err != nil {
		return models.DistanceRange{}, err
	}
	return models.DistanceRange{Min: lo, Max: hi}, nil
}

func (s *Server) handleAddRate(w http.ResponseWriter, r *http.Request) {
	rate, err := func() (models.Rate, error) {
		dr, err := formRange(r)
		if err != nil {
			return models.Rate{}, err
		}
		small, err := models.ParsePaise(r.FormValue("smallParcelPrice"))
		if err != nil {
			return models.Rate{}, err
		}
		large, err := models.ParsePaise(r.FormValue("largeParcelPrice"))
		if err != nil {
			return models.Rate{}, err
		}
		return models.Rate{MinDistance: dr.Min, MaxDistance: dr.Max, SmallParcelPrice: small, LargeParcelPrice: large}, nil
	}()
	if err == nil {
		err = s.client.AddRate(r.Context(), rate)
	}
	s.done(w, r, "/admin#rates", err, "Rate added")
}

func (s *Server) handleRemoveRate(w http.ResponseWriter, r *http.Request) {
	dr, err := formRange(r)
	if err == nil {
		err = s.client.RemoveRate(r.Context(), dr)
	}
	s.done(w, r, "/admin#rates", err, "Rate removed")
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var id uint64
	dr, err := formRange(r)
	var price int64
	if err == nil {
		price, err = models.ParsePaise(r.FormValue("price"))
	}
	if err == nil {
		id, err = s.client.CreateOrder(r.Context(), models.NewOrder{
			Customer: models.CustomerDetails{
				Name:                strings.TrimSpace(r.FormValue("customerName")),
				Address:             strings.TrimSpace(r.FormValue("address")),
				ContactNumber:       strings.TrimSpace(r.FormValue("contactNumber")),
				PickupLocation:      strings.TrimSpace(r.FormValue("pickupLocation")),
				DestinationLocation: strings.TrimSpace(r.FormValue("destinationLocation")),
			},
			ParcelSize:    strings.TrimSpace(r.FormValue("parcelSize")),
			DistanceRange: dr,
			Price:         price,
		})
	}
	s.done(w, r, "/admin#orders", err, fmt.Sprintf("Order #%d created", id))
}

func orderID(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseOrderStatus(r.FormValue("status"))
	if err == nil {
		err = s.client.UpdateOrderStatus(r.Context(), orderID(r), status)
	}
	s.done(w, r, "/admin#orders", err, "Order status updated")
}

// handleAssignRider assigns by rider mobile, typed in or picked from the
// profiles. The name is taken from the matching profile unless given.
func (s *Server) handleAssignRider(w http.ResponseWriter, r *http.Request) {
	mobile := strings.TrimSpace(r.FormValue("riderContact"))
	if mobile == "" {
		mobile = strings.TrimSpace(r.FormValue("profile"))
	}
	name := strings.TrimSpace(r.FormValue("riderName"))
	if name == "" {
		for _, p := range s.client.RiderProfiles(r.Context()).Data {
			if p.Mobile == mobile {
				name = p.Name
				break
			}
		}
	}
	err := s.client.AssignRider(r.Context(), orderID(r), name, mobile)
	s.done(w, r, "/admin#orders", err, "Rider assigned")
}

func (s *Server) handleRemoveOrder(w http.ResponseWriter, r *http.Request) {
	id := orderID(r)
	err := s.client.RemoveOrder(r.Context(), id)
	if err == nil {
		s.uploads.Forget(identity.FromContext(r.Context()).Principal, id)
	}
	s.done(w, r, "/admin#orders", err, fmt.Sprintf("Order #%d deleted", id))
}

func (s *Server) handleAddRider(w http.ResponseWriter, r *http.Request) {
	p := models.RiderProfile{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Mobile:  strings.TrimSpace(r.FormValue("mobile")),
		Area:    strings.TrimSpace(r.FormValue("area")),
		HasBike: r.FormValue("hasBike") != "",
	}
	err := s.client.AddRiderProfile(r.Context(), p)
	s.done(w, r, "/admin#riders", err, "Rider profile added")
}

func (s *Server) handleAdminProofUpload(w http.ResponseWriter, r *http.Request) {
	id := orderID(r)
	s.startUpload(w, r, id, "/admin#orders", func(ctx context.Context, h blob.Handle) error {
		return s.client.UploadDeliveryProof(ctx, id, h)
	})
}

func (s *Server) handleProofDownload(w http.ResponseWriter, r *http.Request) {
	h, err := s.client.DeliveryProof(r.Context(), orderID(r))
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, backend.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, backend.ErrNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	if h == nil {
		http.NotFound(w, r)
		return
	}
	data, err := h.Bytes(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	ct := h.ContentType
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ct)
	w.Write(data)
}

func (s *Server) emitUpload(ctx context.Context, outcome string) {
	s.events.Emit(ctx, events.Event{Type: events.TypeUpload, Name: outcome, Principal: identity.FromContext(ctx).Principal})
}
