package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/observability"
)

const (
	headerPrincipal = "X-Caller-Principal"
	rpcPrefix       = "/rpc/"
)

// HTTPClient talks to the remote backend over JSON RPC: every operation is
// POST {Endpoint}/rpc/{Method} with a JSON argument object, answered by
// {"result": ...} or a non-2xx status with {"error": "..."}.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
	Blobs    blob.Store
}

func NewHTTPClient(endpoint string, timeout time.Duration, blobs blob.Store) *HTTPClient {
	return &HTTPClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: timeout},
		Blobs:    blobs,
	}
}

// Dial returns a Dialer that checks the backend answers before handing out the client.
func Dial(endpoint string, timeout time.Duration, blobs blob.Store) Dialer {
	return func(ctx context.Context) (Service, error) {
		c := NewHTTPClient(endpoint, timeout, blobs)
		if _, err := c.GetCallerRole(ctx); err != nil {
			return nil, fmt.Errorf("dial backend %s: %w", endpoint, err)
		}
		return c, nil
	}
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, args, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		observability.BackendCallDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	}()

	if args == nil {
		args = struct{}{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+rpcPrefix+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if caller, ok := CallerFrom(ctx); ok {
		req.Header.Set(headerPrincipal, caller.Principal)
		if caller.Token != "" {
			req.Header.Set("Authorization", "Bearer "+caller.Token)
		}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env rpcEnvelope
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("backend %s: read response: %w", method, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("backend %s: decode response: %w", method, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Method: method, Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("backend %s: decode result: %w", method, err)
	}
	return nil
}

// Unwrap maps well-known statuses onto the package's sentinel errors.
func (e *RemoteError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return ErrInvalid
	}
	return nil
}

// statusFor is the inverse of RemoteError.Unwrap, used by the RPC handler.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type idArgs struct {
	ID uint64 `json:"id"`
}

type statusArgs struct {
	ID     uint64             `json:"id"`
	Status models.OrderStatus `json:"status"`
}

type assignArgs struct {
	ID           uint64 `json:"id"`
	RiderName    string `json:"riderName"`
	RiderContact string `json:"riderContact"`
}

type proofArgs struct {
	ID    uint64      `json:"id"`
	Proof blob.Handle `json:"proof"`
}

type riderArgs struct {
	Principal string             `json:"principal"`
	ID        uint64             `json:"id,omitempty"`
	Status    models.OrderStatus `json:"status,omitempty"`
	Proof     *blob.Handle       `json:"proof,omitempty"`
}

func (c *HTTPClient) GetSiteContent(ctx context.Context) (models.SiteContent, error) {
	var out models.SiteContent
	err := c.call(ctx, "getSiteContent", nil, &out)
	return out, err
}

func (c *HTTPClient) GetRates(ctx context.Context) ([]models.Rate, error) {
	var out []models.Rate
	err := c.call(ctx, "getRates", nil, &out)
	return out, err
}

func (c *HTTPClient) GetContactNumber(ctx context.Context) (string, error) {
	var out string
	err := c.call(ctx, "getContactNumber", nil, &out)
	return out, err
}

func (c *HTTPClient) GetWhatsAppTemplate(ctx context.Context) (string, error) {
	var out string
	err := c.call(ctx, "getWhatsAppTemplate", nil, &out)
	return out, err
}

func (c *HTTPClient) UpdateSiteContent(ctx context.Context, u models.SiteContentUpdate) error {
	return c.call(ctx, "updateSiteContent", u, nil)
}

func (c *HTTPClient) AddRate(ctx context.Context, r models.Rate) error {
	return c.call(ctx, "addRate", r, nil)
}

func (c *HTTPClient) RemoveRate(ctx context.Context, key models.DistanceRange) error {
	return c.call(ctx, "removeRate", key, nil)
}

func (c *HTTPClient) CreateOrder(ctx context.Context, o models.NewOrder) (uint64, error) {
	var id uint64
	err := c.call(ctx, "createOrder", o, &id)
	return id, err
}

func (c *HTTPClient) ListOrders(ctx context.Context) ([]models.DeliveryOrder, error) {
	var out []models.DeliveryOrder
	if err := c.call(ctx, "listOrders", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		c.bindProof(&out[i])
	}
	return out, nil
}

func (c *HTTPClient) GetOrder(ctx context.Context, id uint64) (models.DeliveryOrder, error) {
	var out models.DeliveryOrder
	if err := c.call(ctx, "getOrder", idArgs{ID: id}, &out); err != nil {
		return out, err
	}
	c.bindProof(&out)
	return out, nil
}

func (c *HTTPClient) UpdateOrderStatus(ctx context.Context, id uint64, status models.OrderStatus) error {
	return c.call(ctx, "updateOrderStatus", statusArgs{ID: id, Status: status}, nil)
}

func (c *HTTPClient) AssignRider(ctx context.Context, id uint64, riderName, riderContact string) error {
	return c.call(ctx, "assignRider", assignArgs{ID: id, RiderName: riderName, RiderContact: riderContact}, nil)
}

func (c *HTTPClient) AttachProof(ctx context.Context, id uint64, proof blob.Handle) error {
	return c.call(ctx, "attachProof", proofArgs{ID: id, Proof: proof}, nil)
}

func (c *HTTPClient) RemoveOrder(ctx context.Context, id uint64) error {
	return c.call(ctx, "removeOrder", idArgs{ID: id}, nil)
}

func (c *HTTPClient) GetDeliveryProof(ctx context.Context, id uint64) (*blob.Handle, error) {
	var out *blob.Handle
	if err := c.call(ctx, "getDeliveryProof", idArgs{ID: id}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	h := c.BindBlob(*out)
	return &h, nil
}

func (c *HTTPClient) GetAssignedDeliveries(ctx context.Context, principal string) ([]models.DeliveryOrder, error) {
	var out []models.DeliveryOrder
	if err := c.call(ctx, "getAssignedDeliveries", riderArgs{Principal: principal}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		c.bindProof(&out[i])
	}
	return out, nil
}

func (c *HTTPClient) UpdateDeliveryStatus(ctx context.Context, principal string, id uint64, status models.OrderStatus) error {
	return c.call(ctx, "updateDeliveryStatus", riderArgs{Principal: principal, ID: id, Status: status}, nil)
}

func (c *HTTPClient) UploadProofOfDelivery(ctx context.Context, principal string, id uint64, proof blob.Handle) error {
	return c.call(ctx, "uploadProofOfDelivery", riderArgs{Principal: principal, ID: id, Proof: &proof}, nil)
}

func (c *HTTPClient) ListRiderProfiles(ctx context.Context) ([]models.RiderProfile, error) {
	var out []models.RiderProfile
	err := c.call(ctx, "listRiderProfiles", nil, &out)
	return out, err
}

func (c *HTTPClient) AddRiderProfile(ctx context.Context, p models.RiderProfile) error {
	return c.call(ctx, "addRiderProfile", p, nil)
}

func (c *HTTPClient) ApplyAsRider(ctx context.Context, a models.RiderApplication) error {
	return c.call(ctx, "applyAsRider", a, nil)
}

func (c *HTTPClient) ListRiderApplications(ctx context.Context) ([]models.RiderApplication, error) {
	var out []models.RiderApplication
	err := c.call(ctx, "listRiderApplications", nil, &out)
	return out, err
}

func (c *HTTPClient) GetCallerRole(ctx context.Context) (models.Role, error) {
	var out models.Role
	err := c.call(ctx, "getCallerRole", nil, &out)
	return out, err
}

func (c *HTTPClient) UploadBlob(ctx context.Context, name, contentType string, data []byte) <-chan blob.Progress {
	return c.Blobs.Upload(ctx, name, contentType, data)
}

func (c *HTTPClient) BindBlob(h blob.Handle) blob.Handle { return c.Blobs.Bind(h) }

func (c *HTTPClient) bindProof(o *models.DeliveryOrder) {
	if o.DeliveryProof != nil {
		h := c.BindBlob(*o.DeliveryProof)
		o.DeliveryProof = &h
	}
}
