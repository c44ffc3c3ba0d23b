// Package query is the process-wide read cache in front of the backend.
// Reads are registered under typed keys; mutations declare which keys they
// invalidate.
package query

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindSiteContent Kind = iota
	KindRates
	KindContactNumber
	KindWhatsAppTemplate
	KindCallerRole
	KindRiderApplications
	KindAllOrders
	KindAssignedDeliveries
	KindRiderProfiles
)

// Kinds lists every key kind.
var Kinds = []Kind{
	KindSiteContent, KindRates, KindContactNumber, KindWhatsAppTemplate, KindCallerRole,
	KindRiderApplications, KindAllOrders, KindAssignedDeliveries, KindRiderProfiles,
}

var kindNames = map[Kind]string{
	KindSiteContent:        "siteContent",
	KindRates:              "rates",
	KindContactNumber:      "contactNumber",
	KindWhatsAppTemplate:   "whatsappTemplate",
	KindCallerRole:         "callerRole",
	KindRiderApplications:  "riderApplications",
	KindAllOrders:          "allOrders",
	KindAssignedDeliveries: "assignedDeliveries",
	KindRiderProfiles:      "riderProfiles",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Scoped kinds are cached per principal.
func (k Kind) Scoped() bool { return k == KindCallerRole || k == KindAssignedDeliveries }

// RequiresIdentity kinds stay disabled until a caller identity is known.
func (k Kind) RequiresIdentity() bool { return k == KindAssignedDeliveries }

// Key identifies one cached read. For scoped kinds an empty Principal used
// as an invalidation pattern matches every principal.
type Key struct {
	Kind      Kind
	Principal string
}

func SiteContentKey() Key       { return Key{Kind: KindSiteContent} }
func RatesKey() Key             { return Key{Kind: KindRates} }
func ContactNumberKey() Key     { return Key{Kind: KindContactNumber} }
func WhatsAppTemplateKey() Key  { return Key{Kind: KindWhatsAppTemplate} }
func RiderApplicationsKey() Key { return Key{Kind: KindRiderApplications} }
func AllOrdersKey() Key         { return Key{Kind: KindAllOrders} }
func RiderProfilesKey() Key     { return Key{Kind: KindRiderProfiles} }

func CallerRoleKey(principal string) Key {
	return Key{Kind: KindCallerRole, Principal: principal}
}

func AssignedDeliveriesKey(principal string) Key {
	return Key{Kind: KindAssignedDeliveries, Principal: principal}
}

// Matches reports whether pattern k covers key.
func (k Key) Matches(key Key) bool {
	if k.Kind != key.Kind {
		return false
	}
	return k.Principal == "" || k.Principal == key.Principal
}

func (k Key) String() string {
	if k.Principal == "" {
		return k.Kind.String()
	}
	return k.Kind.String() + "/" + k.Principal
}

func ParseKey(s string) (Key, error) {
	name, principal, _ := strings.Cut(s, "/")
	for k, n := range kindNames {
		if n == name {
			if principal != "" && !k.Scoped() {
				return Key{}, fmt.Errorf("key %q: %s is not principal scoped", s, n)
			}
			return Key{Kind: k, Principal: principal}, nil
		}
	}
	return Key{}, fmt.Errorf("unknown cache key %q", s)
}
