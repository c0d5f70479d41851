package services

import (
	"testing"

	"github.com/medassist/api/internal/domain"
)

func TestCanTransitionAllowsLifecycleEdges(t *testing.T) {
	allowed := []struct {
		from, to domain.OrderStatus
	}{
		{domain.OrderStatusCreated, domain.OrderStatusAcceptedByPharmacy},
		{domain.OrderStatusCreated, domain.OrderStatusCancelled},
		{domain.OrderStatusAcceptedByPharmacy, domain.OrderStatusPrepared},
		{domain.OrderStatusAcceptedByPharmacy, domain.OrderStatusCancelled},
		{domain.OrderStatusPrepared, domain.OrderStatusDriverAssigned},
		{domain.OrderStatusPrepared, domain.OrderStatusCancelled},
		{domain.OrderStatusDriverAssigned, domain.OrderStatusInTransit},
		{domain.OrderStatusDriverAssigned, domain.OrderStatusCancelled},
		{domain.OrderStatusInTransit, domain.OrderStatusDelivered},
		{domain.OrderStatusInTransit, domain.OrderStatusFailed},
	}
	for _, edge := range allowed {
		if !CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}

	rejected := []struct {
		from, to domain.OrderStatus
	}{
		{domain.OrderStatusCreated, domain.OrderStatusPrepared},
		{domain.OrderStatusCreated, domain.OrderStatusDelivered},
		{domain.OrderStatusPrepared, domain.OrderStatusCreated},
		{domain.OrderStatusInTransit, domain.OrderStatusCancelled},
		{domain.OrderStatusDelivered, domain.OrderStatusInTransit},
		{domain.OrderStatusCancelled, domain.OrderStatusCreated},
		{domain.OrderStatusFailed, domain.OrderStatusCreated},
	}
	for _, edge := range rejected {
		if CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be rejected", edge.from, edge.to)
		}
	}
}

func TestCustomerCanCancelWindow(t *testing.T) {
	cancellable := []domain.OrderStatus{
		domain.OrderStatusCreated,
		domain.OrderStatusAcceptedByPharmacy,
		domain.OrderStatusPrepared,
	}
	for _, status := range cancellable {
		if !CustomerCanCancel(status) {
			t.Errorf("expected customer cancel from %s", status)
		}
	}

	locked := []domain.OrderStatus{
		domain.OrderStatusDriverAssigned,
		domain.OrderStatusInTransit,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusFailed,
	}
	for _, status := range locked {
		if CustomerCanCancel(status) {
			t.Errorf("expected customer cancel blocked from %s", status)
		}
	}
}

func TestCanTransitionDelivery(t *testing.T) {
	if !CanTransitionDelivery(domain.DeliveryStatusAssigned, domain.DeliveryStatusPickedUp) {
		t.Error("expected assigned -> picked_up to be allowed")
	}
	if !CanTransitionDelivery(domain.DeliveryStatusPickedUp, domain.DeliveryStatusInTransit) {
		t.Error("expected picked_up -> in_transit to be allowed")
	}
	if !CanTransitionDelivery(domain.DeliveryStatusInTransit, domain.DeliveryStatusDelivered) {
		t.Error("expected in_transit -> delivered to be allowed")
	}
	if !CanTransitionDelivery(domain.DeliveryStatusPickedUp, domain.DeliveryStatusDelivered) {
		t.Error("expected picked_up -> delivered to be allowed")
	}
	if CanTransitionDelivery(domain.DeliveryStatusAssigned, domain.DeliveryStatusDelivered) {
		t.Error("expected assigned -> delivered to be rejected")
	}
	if CanTransitionDelivery(domain.DeliveryStatusDelivered, domain.DeliveryStatusAssigned) {
		t.Error("expected delivered to be terminal")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusFailed,
	} {
		if !status.Terminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	if domain.OrderStatusInTransit.Terminal() {
		t.Error("expected in_transit to be non-terminal")
	}
}
