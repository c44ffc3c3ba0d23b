package httpapi

import (
	"net/http"

	"github.com/example/parcel-express/internal/guard"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/live"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/upload"
)

// publicKeys are the reads each public page renders.
var publicKeys = map[string][]query.Key{
	"home":         {query.ContactNumberKey()},
	"services":     {query.SiteContentKey()},
	"how-it-works": {query.SiteContentKey()},
	"rate-card":    {query.RatesKey()},
	"contact":      {query.ContactNumberKey(), query.WhatsAppTemplateKey()},
}

// resolveLive mounts the reads of the page named by ?page=. Guarded pages
// are only mounted for callers their guard allows.
func (s *Server) resolveLive(r *http.Request) (live.Subscription, bool) {
	ctx := r.Context()
	sess := identity.FromContext(ctx)
	sub := live.Subscription{Caller: sess.Caller()}
	page := r.URL.Query().Get("page")

	if keys, ok := publicKeys[page]; ok {
		sub.Keys = keys
		return sub, true
	}
	switch page {
	case "admin":
		switch s.adminDecision(ctx) {
		case guard.Placeholder:
			sub.Keys = []query.Key{query.CallerRoleKey(sess.Principal)}
			return sub, true
		case guard.Denied:
			return sub, false
		}
		sub.Keys = []query.Key{
			query.CallerRoleKey(sess.Principal),
			query.SiteContentKey(),
			query.AllOrdersKey(),
			query.RiderProfilesKey(),
			query.RiderApplicationsKey(),
		}
		sub.Topics = topics(sess.Principal, s.client.AllOrders(ctx).Data)
		return sub, true
	case "rider":
		if s.riderDecision(ctx) != guard.Allow {
			return sub, false
		}
		sub.Keys = []query.Key{query.AssignedDeliveriesKey(sess.Principal)}
		sub.Topics = topics(sess.Principal, s.client.AssignedDeliveries(ctx, sess.Principal).Data)
		return sub, true
	}
	return sub, false
}

func topics(principal string, orders []models.DeliveryOrder) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, upload.Topic(principal, o.ID))
	}
	return out
}
