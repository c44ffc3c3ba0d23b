package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
)

// Memory is an in-process backend used for local runs and tests. It applies
// the same rules the remote backend does: admin-only management, riders act
// only on their own orders, status moves forward only.
type Memory struct {
	mu           sync.RWMutex
	admins       map[string]bool
	content      models.SiteContent
	orders       map[uint64]*models.DeliveryOrder
	nextID       uint64
	riders       []models.RiderProfile
	applications []models.RiderApplication
	blobs        blob.Store
	now          func() time.Time
}

func NewMemory(admins []string, blobs blob.Store) *Memory {
	m := &Memory{
		admins:  make(map[string]bool),
		content: DefaultSiteContent(),
		orders:  make(map[uint64]*models.DeliveryOrder),
		nextID:  1,
		blobs:   blobs,
		now:     time.Now,
	}
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			m.admins[a] = true
		}
	}
	return m
}

// DefaultSiteContent is what a fresh backend serves before an admin edits it.
func DefaultSiteContent() models.SiteContent {
	return models.SiteContent{
		ServicesList:     "Local shop delivery\nBus parcel delivery\nDocuments & medicines\nSame-day local delivery\nVillage & dhani delivery",
		HowItWorks:       "Book on WhatsApp\nWe pick up\nFast delivery\nPhoto proof",
		ContactNumber:    "+919983685264",
		WhatsAppTemplate: "Hi, I would like to book a delivery.",
		Rates: []models.Rate{
			{MinDistance: 0, MaxDistance: 5, SmallParcelPrice: 3000, LargeParcelPrice: 5000},
			{MinDistance: 5, MaxDistance: 10, SmallParcelPrice: 5000, LargeParcelPrice: 8000},
			{MinDistance: 10, MaxDistance: 20, SmallParcelPrice: 8000, LargeParcelPrice: 12000},
			{MinDistance: 20, MaxDistance: 40, SmallParcelPrice: 15000, LargeParcelPrice: 20000},
		},
	}
}

func (m *Memory) role(ctx context.Context) models.Role {
	c, ok := CallerFrom(ctx)
	if !ok {
		return models.RoleGuest
	}
	if m.admins[c.Principal] {
		return models.RoleAdmin
	}
	return models.RoleUser
}

func (m *Memory) requireAdmin(ctx context.Context) error {
	if m.role(ctx) != models.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// requireSelf checks that the caller acts for principal (admins may act for anyone).
func (m *Memory) requireSelf(ctx context.Context, principal string) error {
	if m.role(ctx) == models.RoleAdmin {
		return nil
	}
	c, ok := CallerFrom(ctx)
	if !ok || principal == "" || c.Principal != principal {
		return ErrForbidden
	}
	return nil
}

func (m *Memory) GetSiteContent(ctx context.Context) (models.SiteContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.content
	c.Rates = append([]models.Rate(nil), m.content.Rates...)
	return c, nil
}

func (m *Memory) GetRates(ctx context.Context) ([]models.Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Rate(nil), m.content.Rates...), nil
}

func (m *Memory) GetContactNumber(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content.ContactNumber, nil
}

func (m *Memory) GetWhatsAppTemplate(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content.WhatsAppTemplate, nil
}

func (m *Memory) UpdateSiteContent(ctx context.Context, u models.SiteContentUpdate) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	if u.Rates != nil {
		for _, r := range *u.Rates {
			if err := validateRate(r); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = u.Apply(m.content)
	sortRates(m.content.Rates)
	return nil
}

func validateRate(r models.Rate) error {
	if r.MinDistance < 0 || r.MaxDistance < r.MinDistance {
		return fmt.Errorf("%w: distance range %d-%d", ErrInvalid, r.MinDistance, r.MaxDistance)
	}
	if r.SmallParcelPrice < 0 || r.LargeParcelPrice < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalid)
	}
	return nil
}

func sortRates(rs []models.Rate) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].MinDistance != rs[j].MinDistance {
			return rs[i].MinDistance < rs[j].MinDistance
		}
		return rs[i].MaxDistance < rs[j].MaxDistance
	})
}

func (m *Memory) AddRate(ctx context.Context, r models.Rate) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	if err := validateRate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.content.Rates {
		if existing.Key() == r.Key() {
			return fmt.Errorf("%w: rate for %s already exists", ErrInvalid, r.DistanceLabel())
		}
	}
	m.content.Rates = append(m.content.Rates, r)
	sortRates(m.content.Rates)
	return nil
}

func (m *Memory) RemoveRate(ctx context.Context, key models.DistanceRange) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.content.Rates {
		if r.Key() == key {
			m.content.Rates = append(m.content.Rates[:i:i], m.content.Rates[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateOrder(ctx context.Context, o models.NewOrder) (uint64, error) {
	if err := m.requireAdmin(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(o.Customer.Name) == "" || strings.TrimSpace(o.Customer.ContactNumber) == "" {
		return 0, fmt.Errorf("%w: customer name and contact number are required", ErrInvalid)
	}
	if o.Price < 0 || o.DistanceRange.Max < o.DistanceRange.Min {
		return 0, fmt.Errorf("%w: bad price or distance range", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	id := m.nextID
	m.nextID++
	m.orders[id] = &models.DeliveryOrder{
		ID:            id,
		Status:        models.StatusPending,
		Customer:      o.Customer,
		CreatedAt:     now,
		LastUpdated:   now,
		ParcelSize:    o.ParcelSize,
		DistanceRange: o.DistanceRange,
		Price:         o.Price,
	}
	return id, nil
}

func (m *Memory) snapshot(filter func(*models.DeliveryOrder) bool) []models.DeliveryOrder {
	out := make([]models.DeliveryOrder, 0, len(m.orders))
	for _, o := range m.orders {
		if filter == nil || filter(o) {
			out = append(out, m.copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) copyOrder(o *models.DeliveryOrder) models.DeliveryOrder {
	c := *o
	if o.DeliveryProof != nil {
		h := m.BindBlob(*o.DeliveryProof)
		c.DeliveryProof = &h
	}
	return c
}

func (m *Memory) ListOrders(ctx context.Context) ([]models.DeliveryOrder, error) {
	if err := m.requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(nil), nil
}

func (m *Memory) GetOrder(ctx context.Context, id uint64) (models.DeliveryOrder, error) {
	if err := m.requireAdmin(ctx); err != nil {
		return models.DeliveryOrder{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return models.DeliveryOrder{}, ErrNotFound
	}
	return m.copyOrder(o), nil
}

// advance applies a forward-only status change. Caller holds m.mu.
func (m *Memory) advance(o *models.DeliveryOrder, status models.OrderStatus) error {
	if !o.Status.CanAdvanceTo(status) {
		return fmt.Errorf("%w: cannot move order %d from %s to %s", ErrInvalid, o.ID, o.Status, status)
	}
	o.Status = status
	o.LastUpdated = m.now()
	return nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id uint64, status models.OrderStatus) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	return m.advance(o, status)
}

func (m *Memory) AssignRider(ctx context.Context, id uint64, riderName, riderContact string) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(riderName) == "" {
		return fmt.Errorf("%w: rider name is required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	m.unlinkOrder(id)
	o.RiderAssignment = riderName
	o.RiderContact = riderContact
	o.LastUpdated = m.now()
	for i := range m.riders {
		if m.riders[i].Mobile == riderContact {
			m.riders[i].AssignedOrders = append(m.riders[i].AssignedOrders, id)
		}
	}
	return nil
}

// unlinkOrder drops id from every rider profile. Caller holds m.mu.
func (m *Memory) unlinkOrder(id uint64) {
	for i := range m.riders {
		ids := m.riders[i].AssignedOrders[:0]
		for _, x := range m.riders[i].AssignedOrders {
			if x != id {
				ids = append(ids, x)
			}
		}
		m.riders[i].AssignedOrders = ids
	}
}

func (m *Memory) attach(o *models.DeliveryOrder, proof blob.Handle) error {
	if o.DeliveryProof != nil {
		return fmt.Errorf("%w: order %d already has a delivery proof", ErrInvalid, o.ID)
	}
	if proof.Key == "" {
		return fmt.Errorf("%w: empty proof handle", ErrInvalid)
	}
	p := proof
	o.DeliveryProof = &p
	o.LastUpdated = m.now()
	return nil
}

func (m *Memory) AttachProof(ctx context.Context, id uint64, proof blob.Handle) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	return m.attach(o, proof)
}

func (m *Memory) RemoveOrder(ctx context.Context, id uint64) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	m.unlinkOrder(id)
	return nil
}

func (m *Memory) GetDeliveryProof(ctx context.Context, id uint64) (*blob.Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := m.requireSelf(ctx, o.RiderContact); err != nil {
		return nil, err
	}
	if o.DeliveryProof == nil {
		return nil, nil
	}
	h := m.BindBlob(*o.DeliveryProof)
	return &h, nil
}

func (m *Memory) GetAssignedDeliveries(ctx context.Context, principal string) ([]models.DeliveryOrder, error) {
	if err := m.requireSelf(ctx, principal); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(func(o *models.DeliveryOrder) bool { return o.RiderContact == principal }), nil
}

// riderOrder returns the order if it is assigned to principal. Caller holds m.mu.
func (m *Memory) riderOrder(ctx context.Context, principal string, id uint64) (*models.DeliveryOrder, error) {
	if err := m.requireSelf(ctx, principal); err != nil {
		return nil, err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.RiderContact != principal {
		return nil, ErrForbidden
	}
	return o, nil
}

func (m *Memory) UpdateDeliveryStatus(ctx context.Context, principal string, id uint64, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.riderOrder(ctx, principal, id)
	if err != nil {
		return err
	}
	return m.advance(o, status)
}

func (m *Memory) UploadProofOfDelivery(ctx context.Context, principal string, id uint64, proof blob.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.riderOrder(ctx, principal, id)
	if err != nil {
		return err
	}
	return m.attach(o, proof)
}

func (m *Memory) ListRiderProfiles(ctx context.Context) ([]models.RiderProfile, error) {
	if err := m.requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RiderProfile, len(m.riders))
	for i, r := range m.riders {
		r.AssignedOrders = append([]uint64{}, r.AssignedOrders...)
		out[i] = r
	}
	return out, nil
}

func (m *Memory) AddRiderProfile(ctx context.Context, p models.RiderProfile) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Mobile) == "" {
		return fmt.Errorf("%w: rider name and mobile are required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.riders {
		if r.Mobile == p.Mobile {
			return fmt.Errorf("%w: rider %s already exists", ErrInvalid, p.Mobile)
		}
	}
	p.AssignedOrders = nil
	for _, o := range m.snapshot(func(o *models.DeliveryOrder) bool { return o.RiderContact == p.Mobile }) {
		p.AssignedOrders = append(p.AssignedOrders, o.ID)
	}
	m.riders = append(m.riders, p)
	return nil
}

func (m *Memory) ApplyAsRider(ctx context.Context, a models.RiderApplication) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Mobile) == "" || strings.TrimSpace(a.Area) == "" {
		return fmt.Errorf("%w: name, mobile and area are required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ApplicationTime = m.now()
	m.applications = append(m.applications, a)
	return nil
}

func (m *Memory) ListRiderApplications(ctx context.Context) ([]models.RiderApplication, error) {
	if err := m.requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RiderApplication(nil), m.applications...), nil
}

func (m *Memory) GetCallerRole(ctx context.Context) (models.Role, error) {
	return m.role(ctx), nil
}

func (m *Memory) UploadBlob(ctx context.Context, name, contentType string, data []byte) <-chan blob.Progress {
	return m.blobs.Upload(ctx, name, contentType, data)
}

func (m *Memory) BindBlob(h blob.Handle) blob.Handle { return m.blobs.Bind(h) }
