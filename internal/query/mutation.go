package query

import "fmt"

type Mutation int

const (
	MutUpdateSiteContent Mutation = iota
	MutAddRate
	MutRemoveRate
	MutCreateOrder
	MutRemoveOrder
	MutUpdateOrderStatus
	MutAssignRider
	MutUploadDeliveryProof
	MutUpdateDeliveryStatus
	MutUploadProofOfDelivery
	MutAddRiderProfile
	MutApplyAsRider
)

// Mutations lists every mutation.
var Mutations = []Mutation{
	MutUpdateSiteContent, MutAddRate, MutRemoveRate, MutCreateOrder, MutRemoveOrder,
	MutUpdateOrderStatus, MutAssignRider, MutUploadDeliveryProof, MutUpdateDeliveryStatus,
	MutUploadProofOfDelivery, MutAddRiderProfile, MutApplyAsRider,
}

func (m Mutation) String() string {
	switch m {
	case MutUpdateSiteContent:
		return "updateSiteContent"
	case MutAddRate:
		return "addRate"
	case MutRemoveRate:
		return "removeRate"
	case MutCreateOrder:
		return "createOrder"
	case MutRemoveOrder:
		return "removeOrder"
	case MutUpdateOrderStatus:
		return "updateOrderStatus"
	case MutAssignRider:
		return "assignRider"
	case MutUploadDeliveryProof:
		return "uploadDeliveryProof"
	case MutUpdateDeliveryStatus:
		return "updateDeliveryStatus"
	case MutUploadProofOfDelivery:
		return "uploadProofOfDelivery"
	case MutAddRiderProfile:
		return "addRiderProfile"
	case MutApplyAsRider:
		return "applyAsRider"
	}
	return fmt.Sprintf("mutation(%d)", int(m))
}

// Invalidates returns the keys a successful m makes stale. Scoped keys are
// returned as patterns covering every principal.
func (m Mutation) Invalidates() []Key {
	orders := []Key{AllOrdersKey(), AssignedDeliveriesKey("")}
	switch m {
	case MutUpdateSiteContent:
		// rates, contact number and template are projections of the site content document
		return []Key{SiteContentKey(), RatesKey(), ContactNumberKey(), WhatsAppTemplateKey()}
	case MutAddRate, MutRemoveRate:
		return []Key{RatesKey(), SiteContentKey()}
	case MutCreateOrder, MutUpdateOrderStatus, MutUploadDeliveryProof:
		return orders
	case MutAssignRider, MutRemoveOrder:
		return append(orders, RiderProfilesKey())
	case MutUpdateDeliveryStatus, MutUploadProofOfDelivery:
		return []Key{AssignedDeliveriesKey(""), AllOrdersKey()}
	case MutAddRiderProfile:
		return []Key{RiderProfilesKey()}
	case MutApplyAsRider:
		return []Key{RiderApplicationsKey()}
	}
	panic(fmt.Sprintf("query: mutation %d has no invalidation policy", int(m)))
}
