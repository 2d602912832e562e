package service

import (
	"time"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

// ValidateOrder rejects an order confirmed before it was placed.
func ValidateOrder(order *models.Order) error {
	if order.ConfirmDate == nil || order.OrderDate == nil {
		return nil
	}
	if order.ConfirmDate.Before(*order.OrderDate) {
		return errors.NewValidationError("confirm_date", "confirmation date cannot be before order date")
	}
	return nil
}

// ConfirmOrder applies the confirmed flag to the order's status. A confirmed
// order without a confirmation date is confirmed today. Clearing the flag on
// an open order puts it back to draft. It reports whether the order should be
// shown read-only.
func ConfirmOrder(order *models.Order, today time.Time) (readonly bool) {
	if order.Confirmed {
		if order.ConfirmDate == nil {
			order.ConfirmDate = models.NewDate(today)
		}
		order.Status = models.OrderStatusOpen
		return true
	}
	if order.Status == models.OrderStatusOpen {
		order.Status = models.OrderStatusDraft
	}
	return false
}
