package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/observability"
)

// Client is what pages use to read and write remote state.
type Client struct {
	actor  *backend.Actor
	cache  *Cache
	bus    Bus
	logger *slog.Logger

	mu      sync.Mutex
	applied []func(ctx context.Context, m Mutation, keys []Key)
}

func NewClient(actor *backend.Actor, cache *Cache, bus Bus, logger *slog.Logger) *Client {
	if bus == nil {
		bus = LocalBus{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{actor: actor, cache: cache, bus: bus, logger: logger}
}

func (c *Client) Cache() *Cache { return c.cache }

// OnMutation registers fn to run after every successful mutation, once its
// invalidations have been applied.
func (c *Client) OnMutation(fn func(ctx context.Context, m Mutation, keys []Key)) {
	c.mu.Lock()
	c.applied = append(c.applied, fn)
	c.mu.Unlock()
}

func (c *Client) Actor() *backend.Actor { return c.actor }

// Enabled reports whether a read of key may fire now.
func (c *Client) Enabled(key Key) bool {
	if !c.actor.Usable() {
		return false
	}
	return !key.Kind.RequiresIdentity() || key.Principal != ""
}

type loader func(ctx context.Context, svc backend.Service) (any, error)

func loaderFor(key Key) loader {
	switch key.Kind {
	case KindSiteContent:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.GetSiteContent(ctx) }
	case KindRates:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.GetRates(ctx) }
	case KindContactNumber:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.GetContactNumber(ctx) }
	case KindWhatsAppTemplate:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.GetWhatsAppTemplate(ctx) }
	case KindCallerRole:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.GetCallerRole(ctx) }
	case KindRiderApplications:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.ListRiderApplications(ctx) }
	case KindAllOrders:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.ListOrders(ctx) }
	case KindAssignedDeliveries:
		return func(ctx context.Context, svc backend.Service) (any, error) {
			return svc.GetAssignedDeliveries(ctx, key.Principal)
		}
	case KindRiderProfiles:
		return func(ctx context.Context, svc backend.Service) (any, error) { return svc.ListRiderProfiles(ctx) }
	}
	panic(fmt.Sprintf("query: no loader for %s", key.Kind))
}

// fetcher binds key's loader to the ready service.
func (c *Client) fetcher(key Key) Fetcher {
	load := loaderFor(key)
	return func(ctx context.Context) (any, error) {
		svc, err := c.actor.Service()
		if err != nil {
			return nil, err
		}
		return load(ctx, svc)
	}
}

func read[T any](ctx context.Context, c *Client, key Key) Result[T] {
	if !c.Enabled(key) {
		return Result[T]{Status: StatusIdle}
	}
	return As[T](c.cache.Fetch(ctx, key, c.fetcher(key)))
}

func (c *Client) SiteContent(ctx context.Context) Result[models.SiteContent] {
	return read[models.SiteContent](ctx, c, SiteContentKey())
}

func (c *Client) Rates(ctx context.Context) Result[[]models.Rate] {
	return read[[]models.Rate](ctx, c, RatesKey())
}

func (c *Client) ContactNumber(ctx context.Context) Result[string] {
	return read[string](ctx, c, ContactNumberKey())
}

func (c *Client) WhatsAppTemplate(ctx context.Context) Result[string] {
	return read[string](ctx, c, WhatsAppTemplateKey())
}

// CallerRole reads the role of the caller carried by ctx.
func (c *Client) CallerRole(ctx context.Context) Result[models.Role] {
	caller, _ := backend.CallerFrom(ctx)
	return read[models.Role](ctx, c, CallerRoleKey(caller.Principal))
}

func (c *Client) RiderApplications(ctx context.Context) Result[[]models.RiderApplication] {
	return read[[]models.RiderApplication](ctx, c, RiderApplicationsKey())
}

func (c *Client) AllOrders(ctx context.Context) Result[[]models.DeliveryOrder] {
	return read[[]models.DeliveryOrder](ctx, c, AllOrdersKey())
}

func (c *Client) AssignedDeliveries(ctx context.Context, principal string) Result[[]models.DeliveryOrder] {
	return read[[]models.DeliveryOrder](ctx, c, AssignedDeliveriesKey(principal))
}

func (c *Client) RiderProfiles(ctx context.Context) Result[[]models.RiderProfile] {
	return read[[]models.RiderProfile](ctx, c, RiderProfilesKey())
}

// Watch mounts a consumer of keys on behalf of caller. Refetches triggered
// by invalidation run with caller's identity.
func (c *Client) Watch(caller backend.Caller, keys ...Key) (unwatch func()) {
	ctx := context.Background()
	if caller.Principal != "" {
		ctx = backend.WithCaller(ctx, caller)
	}
	var unwatches []func()
	for _, k := range keys {
		f := c.fetcher(k)
		unwatches = append(unwatches, c.cache.Watch(k, func(context.Context) (any, error) { return f(ctx) }))
	}
	return func() {
		for _, u := range unwatches {
			u()
		}
	}
}

// Subscribe applies invalidations published by other instances until ctx is done.
func (c *Client) Subscribe(ctx context.Context) error {
	return c.bus.Subscribe(ctx, func(keys []Key) {
		c.cache.ApplyRemote(ctx, keys...)
	})
}

// mutate runs fn and, only if it succeeds, invalidates m's keys locally and
// on the bus.
func (c *Client) mutate(ctx context.Context, m Mutation, fn func(svc backend.Service) error) error {
	svc, err := c.actor.Service()
	if err == nil {
		err = fn(svc)
	}
	if err != nil {
		observability.MutationsTotal.WithLabelValues(m.String(), "error").Inc()
		c.logger.Warn("mutation_failed", "mutation", m.String(), "error", err)
		return err
	}
	observability.MutationsTotal.WithLabelValues(m.String(), "ok").Inc()
	keys := m.Invalidates()
	c.cache.Invalidate(ctx, keys...)
	if err := c.bus.Publish(ctx, keys); err != nil {
		c.logger.Error("invalidation_publish_failed", "mutation", m.String(), "error", err)
	}
	c.mu.Lock()
	hooks := append([]func(context.Context, Mutation, []Key){}, c.applied...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx, m, keys)
	}
	return nil
}

func (c *Client) UpdateSiteContent(ctx context.Context, u models.SiteContentUpdate) error {
	return c.mutate(ctx, MutUpdateSiteContent, func(svc backend.Service) error { return svc.UpdateSiteContent(ctx, u) })
}

func (c *Client) AddRate(ctx context.Context, r models.Rate) error {
	return c.mutate(ctx, MutAddRate, func(svc backend.Service) error { return svc.AddRate(ctx, r) })
}

func (c *Client) RemoveRate(ctx context.Context, key models.DistanceRange) error {
	return c.mutate(ctx, MutRemoveRate, func(svc backend.Service) error { return svc.RemoveRate(ctx, key) })
}

func (c *Client) CreateOrder(ctx context.Context, o models.NewOrder) (uint64, error) {
	var id uint64
	err := c.mutate(ctx, MutCreateOrder, func(svc backend.Service) error {
		var err error
		id, err = svc.CreateOrder(ctx, o)
		return err
	})
	return id, err
}

func (c *Client) RemoveOrder(ctx context.Context, id uint64) error {
	return c.mutate(ctx, MutRemoveOrder, func(svc backend.Service) error { return svc.RemoveOrder(ctx, id) })
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id uint64, status models.OrderStatus) error {
	return c.mutate(ctx, MutUpdateOrderStatus, func(svc backend.Service) error { return svc.UpdateOrderStatus(ctx, id, status) })
}

func (c *Client) AssignRider(ctx context.Context, id uint64, riderName, riderContact string) error {
	return c.mutate(ctx, MutAssignRider, func(svc backend.Service) error {
		return svc.AssignRider(ctx, id, riderName, riderContact)
	})
}

// UploadDeliveryProof attaches an uploaded proof to an order as admin.
func (c *Client) UploadDeliveryProof(ctx context.Context, id uint64, proof blob.Handle) error {
	return c.mutate(ctx, MutUploadDeliveryProof, func(svc backend.Service) error { return svc.AttachProof(ctx, id, proof) })
}

func (c *Client) UpdateDeliveryStatus(ctx context.Context, principal string, id uint64, status models.OrderStatus) error {
	return c.mutate(ctx, MutUpdateDeliveryStatus, func(svc backend.Service) error {
		return svc.UpdateDeliveryStatus(ctx, principal, id, status)
	})
}

// UploadProofOfDelivery attaches an uploaded proof to an order as its rider.
func (c *Client) UploadProofOfDelivery(ctx context.Context, principal string, id uint64, proof blob.Handle) error {
	return c.mutate(ctx, MutUploadProofOfDelivery, func(svc backend.Service) error {
		return svc.UploadProofOfDelivery(ctx, principal, id, proof)
	})
}

func (c *Client) AddRiderProfile(ctx context.Context, p models.RiderProfile) error {
	return c.mutate(ctx, MutAddRiderProfile, func(svc backend.Service) error { return svc.AddRiderProfile(ctx, p) })
}

func (c *Client) ApplyAsRider(ctx context.Context, a models.RiderApplication) error {
	return c.mutate(ctx, MutApplyAsRider, func(svc backend.Service) error { return svc.ApplyAsRider(ctx, a) })
}

// UploadBlob streams the upload of a proof file. It is not a mutation: the
// handle only becomes visible once attached to an order.
func (c *Client) UploadBlob(ctx context.Context, name, contentType string, data []byte) <-chan blob.Progress {
	svc, err := c.actor.Service()
	if err != nil {
		ch := make(chan blob.Progress, 1)
		ch <- blob.Progress{Err: err}
		close(ch)
		return ch
	}
	return svc.UploadBlob(ctx, name, contentType, data)
}

// DeliveryProof resolves the proof attached to order id, bound for byte access.
func (c *Client) DeliveryProof(ctx context.Context, id uint64) (*blob.Handle, error) {
	svc, err := c.actor.Service()
	if err != nil {
		return nil, err
	}
	return svc.GetDeliveryProof(ctx, id)
}
