package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/parcel-express/internal/blob"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPicked    OrderStatus = "picked"
	StatusDelivered OrderStatus = "delivered"
)

// OrderStatuses lists statuses in lifecycle order.
var OrderStatuses = []OrderStatus{StatusPending, StatusPicked, StatusDelivered}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusPicked:
		return StatusPicked, nil
	case StatusDelivered:
		return StatusDelivered, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) rank() int {
	for i, st := range OrderStatuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the status following s, or false when s is terminal.
func (s OrderStatus) Next() (OrderStatus, bool) {
	r := s.rank()
	if r < 0 || r+1 >= len(OrderStatuses) {
		return "", false
	}
	return OrderStatuses[r+1], true
}

// CanAdvanceTo reports whether next is a forward move from s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	a, b := s.rank(), next.rank()
	return a >= 0 && b > a
}

type CustomerDetails struct {
	Name                string `json:"name"`
	Address             string `json:"address"`
	ContactNumber       string `json:"contactNumber"`
	PickupLocation      string `json:"pickupLocation"`
	DestinationLocation string `json:"destinationLocation"`
}

type DistanceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

func (d DistanceRange) String() string { return fmt.Sprintf("%d - %d km", d.Min, d.Max) }

type DeliveryOrder struct {
	ID              uint64          `json:"id"`
	Status          OrderStatus     `json:"status"`
	Customer        CustomerDetails `json:"customer"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastUpdated     time.Time       `json:"lastUpdated"`
	ParcelSize      string          `json:"parcelSize"`
	DistanceRange   DistanceRange   `json:"distanceRange"`
	Price           int64           `json:"price"` // paise
	RiderAssignment string          `json:"riderAssignment,omitempty"`
	RiderContact    string          `json:"riderContact,omitempty"`
	DeliveryProof   *blob.Handle    `json:"deliveryProof,omitempty"`
}

// NewOrder is the admin input for order creation.
type NewOrder struct {
	Customer      CustomerDetails `json:"customer"`
	ParcelSize    string          `json:"parcelSize"`
	DistanceRange DistanceRange   `json:"distanceRange"`
	Price         int64           `json:"price"`
}

type Rate struct {
	MinDistance      int64 `json:"minDistance"`
	MaxDistance      int64 `json:"maxDistance"`
	SmallParcelPrice int64 `json:"smallParcelPrice"`
	LargeParcelPrice int64 `json:"largeParcelPrice"`
}

// Key is the rate's identity.
func (r Rate) Key() DistanceRange { return DistanceRange{Min: r.MinDistance, Max: r.MaxDistance} }

func (r Rate) DistanceLabel() string { return r.Key().String() }

type RiderProfile struct {
	Name           string   `json:"name"`
	Mobile         string   `json:"mobile"`
	Area           string   `json:"area"`
	HasBike        bool     `json:"hasBike"`
	AssignedOrders []uint64 `json:"assignedOrders"`
}

type RiderApplication struct {
	Name            string    `json:"name"`
	Mobile          string    `json:"mobile"`
	Area            string    `json:"area"`
	HasBike         bool      `json:"hasBike"`
	ApplicationTime time.Time `json:"applicationTime"`
}

type SiteContent struct {
	ServicesList     string `json:"servicesList"`
	HowItWorks       string `json:"howItWorks"`
	ContactNumber    string `json:"contactNumber"`
	WhatsAppTemplate string `json:"whatsappTemplate"`
	Rates            []Rate `json:"rates"`
}

// SiteContentUpdate is a partial update; nil fields are left unchanged.
type SiteContentUpdate struct {
	ServicesList     *string `json:"servicesList"`
	HowItWorks       *string `json:"howItWorks"`
	Rates            *[]Rate `json:"rates"`
	ContactNumber    *string `json:"contactNumber"`
	WhatsAppTemplate *string `json:"whatsappTemplate"`
}

// Apply returns c with the non-nil fields of u applied.
func (u SiteContentUpdate) Apply(c SiteContent) SiteContent {
	if u.ServicesList != nil {
		c.ServicesList = *u.ServicesList
	}
	if u.HowItWorks != nil {
		c.HowItWorks = *u.HowItWorks
	}
	if u.Rates != nil {
		c.Rates = append([]Rate(nil), (*u.Rates)...)
	}
	if u.ContactNumber != nil {
		c.ContactNumber = *u.ContactNumber
	}
	if u.WhatsAppTemplate != nil {
		c.WhatsAppTemplate = *u.WhatsAppTemplate
	}
	return c
}
