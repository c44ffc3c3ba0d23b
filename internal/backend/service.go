// Package backend binds the external delivery backend. Every operation may
// fail; callers surface failures as-is and never retry.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
)

var (
	ErrNotReady  = errors.New("backend: client not ready")
	ErrForbidden = errors.New("backend: not authorized")
	ErrNotFound  = errors.New("backend: not found")
	ErrInvalid   = errors.New("backend: invalid request")
)

// Service is the remote interface consumed by the site. The caller's
// principal travels in the context (see WithCaller).
type Service interface {
	GetSiteContent(ctx context.Context) (models.SiteContent, error)
	GetRates(ctx context.Context) ([]models.Rate, error)
	GetContactNumber(ctx context.Context) (string, error)
	GetWhatsAppTemplate(ctx context.Context) (string, error)
	UpdateSiteContent(ctx context.Context, u models.SiteContentUpdate) error
	AddRate(ctx context.Context, r models.Rate) error
	RemoveRate(ctx context.Context, key models.DistanceRange) error

	CreateOrder(ctx context.Context, o models.NewOrder) (uint64, error)
	ListOrders(ctx context.Context) ([]models.DeliveryOrder, error)
	GetOrder(ctx context.Context, id uint64) (models.DeliveryOrder, error)
	UpdateOrderStatus(ctx context.Context, id uint64, status models.OrderStatus) error
	AssignRider(ctx context.Context, id uint64, riderName, riderContact string) error
	AttachProof(ctx context.Context, id uint64, proof blob.Handle) error
	RemoveOrder(ctx context.Context, id uint64) error
	GetDeliveryProof(ctx context.Context, id uint64) (*blob.Handle, error)

	GetAssignedDeliveries(ctx context.Context, principal string) ([]models.DeliveryOrder, error)
	UpdateDeliveryStatus(ctx context.Context, principal string, id uint64, status models.OrderStatus) error
	UploadProofOfDelivery(ctx context.Context, principal string, id uint64, proof blob.Handle) error

	ListRiderProfiles(ctx context.Context) ([]models.RiderProfile, error)
	AddRiderProfile(ctx context.Context, p models.RiderProfile) error
	ApplyAsRider(ctx context.Context, a models.RiderApplication) error
	ListRiderApplications(ctx context.Context) ([]models.RiderApplication, error)

	GetCallerRole(ctx context.Context) (models.Role, error)

	// UploadBlob streams upload progress ending in the stored handle.
	UploadBlob(ctx context.Context, name, contentType string, data []byte) <-chan blob.Progress
	BindBlob(h blob.Handle) blob.Handle
}

type callerKey struct{}

// Caller identifies who a remote call is made on behalf of.
type Caller struct {
	Principal string
	Token     string
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.Principal != ""
}

// RemoteError is a non-success answer from the remote backend.
type RemoteError struct {
	Method  string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend %s: %d %s", e.Method, e.Status, e.Message)
}
