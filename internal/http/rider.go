package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/guard"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/upload"
)

const maxProofSize = 10 << 20

type riderData struct {
	Decision   string
	Deliveries query.Result[[]models.DeliveryOrder]
	Uploads    map[uint64]upload.Snapshot
}

// riderDecision resolves the rider guard. The session cookie is verified
// before any handler runs, so the page only waits on the backend client.
func (s *Server) riderDecision(ctx context.Context) guard.Decision {
	return guard.Rider(!s.client.Actor().Usable(), identity.FromContext(ctx).Present())
}

func (s *Server) handleRider(w http.ResponseWriter, r *http.Request) {
	sess := identity.FromContext(r.Context())
	d := s.riderDecision(r.Context())
	data := riderData{Decision: d.String()}
	if d != guard.Allow {
		s.render(w, r, http.StatusOK, "rider", false, data)
		return
	}
	data.Deliveries = s.client.AssignedDeliveries(r.Context(), sess.Principal)
	data.Uploads = s.uploadsFor(sess.Principal, data.Deliveries.Data)
	s.render(w, r, http.StatusOK, "rider", true, data)
}

func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	sess := identity.FromContext(r.Context())
	if !sess.Present() {
		http.Redirect(w, r, "/login?next=/rider", http.StatusSeeOther)
		return
	}
	status, err := models.ParseOrderStatus(r.FormValue("status"))
	if err == nil {
		err = s.client.UpdateDeliveryStatus(r.Context(), sess.Principal, orderID(r), status)
	}
	s.done(w, r, "/rider", err, "Delivery status updated")
}

func (s *Server) handleRiderProofUpload(w http.ResponseWriter, r *http.Request) {
	sess := identity.FromContext(r.Context())
	switch s.riderDecision(r.Context()) {
	case guard.Placeholder:
		http.Error(w, "backend not ready", http.StatusServiceUnavailable)
		return
	case guard.LoginRequired:
		http.Redirect(w, r, "/login?next=/rider", http.StatusSeeOther)
		return
	}
	id := orderID(r)
	if !s.assignedTo(r.Context(), sess.Principal, id) {
		http.Error(w, "order is not assigned to you", http.StatusForbidden)
		return
	}
	s.startUpload(w, r, id, "/rider", func(ctx context.Context, h blob.Handle) error {
		return s.client.UploadProofOfDelivery(ctx, sess.Principal, id, h)
	})
}

func (s *Server) assignedTo(ctx context.Context, principal string, id uint64) bool {
	for _, o := range s.client.AssignedDeliveries(ctx, principal).Data {
		if o.ID == id {
			return true
		}
	}
	return false
}

// startUpload selects the posted file, if any, and starts uploading it in the
// background. Posting without a file retries the file kept from a failed
// attempt. Progress reaches the page over the live socket.
func (s *Server) startUpload(w http.ResponseWriter, r *http.Request, id uint64, back string, attach upload.Attacher) {
	principal := identity.FromContext(r.Context()).Principal
	wf := s.uploads.Get(principal, id)

	f, hdr, err := r.FormFile("proof")
	switch {
	case err == nil:
		data, rerr := io.ReadAll(io.LimitReader(f, maxProofSize+1))
		f.Close()
		if rerr == nil && len(data) > maxProofSize {
			rerr = fmt.Errorf("file is larger than %d MB", maxProofSize>>20)
		}
		if rerr != nil {
			s.done(w, r, back, rerr, "")
			return
		}
		ct := hdr.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		if err := wf.Select(upload.File{Name: hdr.Filename, ContentType: ct, Data: data}); err != nil {
			s.done(w, r, back, err, "")
			return
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		s.done(w, r, back, err, "")
		return
	}

	finished, err := wf.Start(r.Context(), s.client.UploadBlob, attach)
	if err != nil {
		s.done(w, r, back, err, "")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := <-finished; err != nil {
			s.logger.Warn("proof_upload_failed", "order_id", id, "principal", principal, "error", err)
			s.emitUpload(ctx, "failed")
			return
		}
		s.logger.Info("proof_uploaded", "order_id", id, "principal", principal)
		s.emitUpload(ctx, "succeeded")
	}()
	s.done(w, r, back, nil, fmt.Sprintf("Uploading proof for order #%d", id))
}
