package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/parcel-express/internal/contact"
)

var ErrInvalidEnquiry = errors.New("storage: enquiry needs a name and phone")

// Enquiry is a contact form submission as stored.
type Enquiry struct {
	ID         string
	ReceivedAt time.Time
	contact.Enquiry
}

// EnquiryStore keeps contact form submissions for the admin.
type EnquiryStore interface {
	SaveEnquiry(ctx context.Context, e contact.Enquiry) (Enquiry, error)
	RecentEnquiries(ctx context.Context, limit int) ([]Enquiry, error)
}

func validate(e contact.Enquiry) error {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Phone) == "" {
		return ErrInvalidEnquiry
	}
	return nil
}

type MemoryStore struct {
	mu        sync.RWMutex
	enquiries []Enquiry
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) SaveEnquiry(ctx context.Context, e contact.Enquiry) (Enquiry, error) {
	if err := validate(e); err != nil {
		return Enquiry{}, err
	}
	rec := Enquiry{ID: uuid.NewString(), ReceivedAt: m.now(), Enquiry: e}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enquiries = append(m.enquiries, rec)
	return rec, nil
}

func (m *MemoryStore) RecentEnquiries(ctx context.Context, limit int) ([]Enquiry, error) {
	m.mu.RLock()
	out := append([]Enquiry(nil), m.enquiries...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
