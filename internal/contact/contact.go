// Package contact holds the business contact details and builds outbound
// links (WhatsApp deep links, dialer links) from them.
package contact

import (
	"fmt"
	"strings"
)

type Config struct {
	Phone       string `mapstructure:"phone"`
	WhatsApp    string `mapstructure:"whatsapp"`
	CompanyName string `mapstructure:"company_name"`
	ServiceArea string `mapstructure:"service_area"`
	Location    string `mapstructure:"location"`
}

func Default() Config {
	return Config{
		Phone:       "+919983685264",
		WhatsApp:    "+919610685264",
		CompanyName: "Bikaner Express Delivery",
		ServiceArea: "Serving Bikaner city, villages & dhanis",
		Location:    "Bikaner, Rajasthan",
	}
}

const DefaultGreeting = "Hi, I would like to request a delivery."

const BookingGreeting = "Hi, I would like to book a delivery."

// BookingLink returns a WhatsApp link to the configured number.
func (c Config) BookingLink(message string) string { return WhatsAppLink(c.WhatsApp, message) }

func (c Config) CallLink() string { return TelLink(c.Phone) }

func (c Config) DisplayPhone() string { return FormatPhoneNumber(c.Phone) }

func (c Config) DisplayWhatsApp() string { return FormatPhoneNumber(c.WhatsApp) }

// WhatsAppLink builds https://wa.me/<digits>[?text=<message>].
func WhatsAppLink(phone, message string) string {
	base := "https://wa.me/" + digits(phone)
	if message == "" {
		return base
	}
	return base + "?text=" + EncodeURIComponent(message)
}

func TelLink(phone string) string { return "tel:+" + digits(phone) }

// FormatPhoneNumber renders Indian numbers as "+91 XXXXX XXXXX" and returns
// anything else unchanged.
func FormatPhoneNumber(phone string) string {
	d := digits(phone)
	switch {
	case len(d) == 10:
		return fmt.Sprintf("+91 %s %s", d[:5], d[5:])
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return fmt.Sprintf("+%s %s %s", d[:2], d[2:7], d[7:])
	}
	return phone
}

// Enquiry is what a visitor types into the contact form.
type Enquiry struct {
	Name     string
	Phone    string
	Pickup   string
	Delivery string
	Message  string
}

// EnquiryMessage renders the WhatsApp body for a contact form enquiry.
func EnquiryMessage(template string, e Enquiry) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultGreeting
	}
	return fmt.Sprintf("%s\n\nName: %s\nPhone: %s\nPickup Location: %s\nDelivery Location: %s\nMessage: %s",
		template, e.Name, e.Phone, e.Pickup, e.Delivery, e.Message)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EncodeURIComponent percent-encodes s the way browsers do for a single URI
// component: every UTF-8 byte outside A-Z a-z 0-9 - _ . ! ~ * ' ( ) is escaped.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
