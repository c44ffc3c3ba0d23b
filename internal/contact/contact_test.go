package contact

import (
	"net/url"
	"strings"
	"testing"
)

func TestWhatsAppLinkRoundTrip(t *testing.T) {
	msgs := []string{
		"Hi, I would like to book a delivery.",
		"a & b ? c = d # e + f / g",
		"100% sure\nnew line\ttab",
		"नमस्ते 🚚 delivery",
		"",
	}
	for _, m := range msgs {
		link := WhatsAppLink("+91 96106-85264", m)
		if !strings.HasPrefix(link, "https://wa.me/919610685264") {
			t.Fatalf("unexpected prefix: %s", link)
		}
		if m == "" {
			if link != "https://wa.me/919610685264" {
				t.Fatalf("empty message should give bare link, got %s", link)
			}
			continue
		}
		u, err := url.Parse(link)
		if err != nil {
			t.Fatalf("parse %s: %v", link, err)
		}
		raw := strings.TrimPrefix(u.RawQuery, "text=")
		if strings.ContainsAny(raw, " &?#+") {
			t.Fatalf("reserved characters left unescaped: %s", raw)
		}
		got, err := url.PathUnescape(raw)
		if err != nil || got != m {
			t.Fatalf("round trip mismatch: got %q want %q (%v)", got, m, err)
		}
	}
}

func TestEncodeURIComponentMatchesBrowser(t *testing.T) {
	if got := EncodeURIComponent("a b&c"); got != "a%20b%26c" {
		t.Fatalf("got %s", got)
	}
	if got := EncodeURIComponent("keep-_.!~*'()"); got != "keep-_.!~*'()" {
		t.Fatalf("got %s", got)
	}
}

func TestTelLink(t *testing.T) {
	if got := TelLink("+91 99836 85264"); got != "tel:+919983685264" {
		t.Fatalf("got %s", got)
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	cases := map[string]string{
		"9983685264":    "+91 99836 85264",
		"+919983685264": "+91 99836 85264",
		"12345":         "12345",
	}
	for in, want := range cases {
		if got := FormatPhoneNumber(in); got != want {
			t.Fatalf("FormatPhoneNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnquiryMessage(t *testing.T) {
	got := EnquiryMessage("", Enquiry{Name: "Asha", Phone: "1", Pickup: "A", Delivery: "B", Message: "fragile"})
	want := DefaultGreeting + "\n\nName: Asha\nPhone: 1\nPickup Location: A\nDelivery Location: B\nMessage: fragile"
	if got != want {
		t.Fatalf("got %q", got)
	}
}
