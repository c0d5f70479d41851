package services

import "github.com/medassist/api/internal/domain"

// orderTransitions is the complete set of legal order lifecycle edges.
// Anything absent is rejected.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated: {
		domain.OrderStatusAcceptedByPharmacy,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusAcceptedByPharmacy: {
		domain.OrderStatusPrepared,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPrepared: {
		domain.OrderStatusDriverAssigned,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusDriverAssigned: {
		domain.OrderStatusInTransit,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusInTransit: {
		domain.OrderStatusDelivered,
		domain.OrderStatusFailed,
	},
}

// CanTransition reports whether the order lifecycle admits the edge.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// customerCancellable is the window in which the ordering customer may still
// cancel. Once a driver is bound, cancellation becomes an operational action.
var customerCancellable = map[domain.OrderStatus]bool{
	domain.OrderStatusCreated:            true,
	domain.OrderStatusAcceptedByPharmacy: true,
	domain.OrderStatusPrepared:           true,
}

// CustomerCanCancel reports whether a customer-initiated cancel is allowed
// from the status.
func CustomerCanCancel(status domain.OrderStatus) bool {
	return customerCancellable[status]
}

// deliveryTransitions is the courier-side lifecycle.
var deliveryTransitions = map[domain.DeliveryStatus][]domain.DeliveryStatus{
	domain.DeliveryStatusAssigned: {
		domain.DeliveryStatusPickedUp,
		domain.DeliveryStatusFailed,
	},
	domain.DeliveryStatusPickedUp: {
		domain.DeliveryStatusInTransit,
		// Handover can happen straight from pickup for short hops.
		domain.DeliveryStatusDelivered,
		domain.DeliveryStatusFailed,
	},
	domain.DeliveryStatusInTransit: {
		domain.DeliveryStatusDelivered,
		domain.DeliveryStatusFailed,
	},
}

// CanTransitionDelivery reports whether the delivery lifecycle admits the edge.
func CanTransitionDelivery(from, to domain.DeliveryStatus) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
