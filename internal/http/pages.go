package httpapi

import (
	"net/http"
	"strings"

	"github.com/example/parcel-express/internal/contact"
	"github.com/example/parcel-express/internal/events"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
)

type homeData struct {
	ContactNumber query.Result[string]
	BookingLink   string
	Application   models.RiderApplication
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "home", true, homeData{
		ContactNumber: s.client.ContactNumber(r.Context()),
		BookingLink:   s.contact.BookingLink(contact.BookingGreeting),
	})
}

type contentData struct {
	Content query.Result[models.SiteContent]
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "services", true, contentData{Content: s.client.SiteContent(r.Context())})
}

func (s *Server) handleHowItWorks(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "how-it-works", true, contentData{Content: s.client.SiteContent(r.Context())})
}

type rateCardData struct {
	Rates       query.Result[[]models.Rate]
	BookingLink string
}

func (s *Server) handleRateCard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "rate-card", true, rateCardData{
		Rates:       s.client.Rates(r.Context()),
		BookingLink: s.contact.BookingLink(contact.BookingGreeting),
	})
}

type contactData struct {
	ContactNumber query.Result[string]
	Template      query.Result[string]
	Enquiry       contact.Enquiry
}

func (s *Server) contactPage(w http.ResponseWriter, r *http.Request, status int, e contact.Enquiry) {
	s.render(w, r, status, "contact", true, contactData{
		ContactNumber: s.client.ContactNumber(r.Context()),
		Template:      s.client.WhatsAppTemplate(r.Context()),
		Enquiry:       e,
	})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.contactPage(w, r, http.StatusOK, contact.Enquiry{})
}

// handleEnquiry logs the enquiry and hands the visitor over to WhatsApp with
// the message prefilled.
func (s *Server) handleEnquiry(w http.ResponseWriter, r *http.Request) {
	e := contact.Enquiry{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Phone:    strings.TrimSpace(r.FormValue("phone")),
		Pickup:   strings.TrimSpace(r.FormValue("pickup")),
		Delivery: strings.TrimSpace(r.FormValue("delivery")),
		Message:  strings.TrimSpace(r.FormValue("message")),
	}
	if e.Name == "" || e.Phone == "" {
		setFlash(w, "error", "Please enter your name and phone number.")
		http.Redirect(w, r, "/contact", http.StatusSeeOther)
		return
	}
	if s.enquiries != nil {
		if _, err := s.enquiries.SaveEnquiry(r.Context(), e); err != nil {
			s.logger.Error("enquiry_save_failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		}
	}
	s.events.Emit(r.Context(), events.Event{Type: events.TypeEnquiry, Name: "contact"})

	tmpl := s.client.WhatsAppTemplate(r.Context())
	http.Redirect(w, r, s.contact.BookingLink(contact.EnquiryMessage(tmpl.Data, e)), http.StatusSeeOther)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	a := models.RiderApplication{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Mobile:  strings.TrimSpace(r.FormValue("mobile")),
		Area:    strings.TrimSpace(r.FormValue("area")),
		HasBike: r.FormValue("hasBike") != "",
	}
	err := s.client.ApplyAsRider(r.Context(), a)
	s.done(w, r, "/#apply", err, "Application submitted! We'll contact you soon.")
}
