package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// RecalculateLines handles POST /api/v2/orders/lines/recalculate
func (h *Handlers) RecalculateLines(c *gin.Context) {
	var req models.LineChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	items, err := h.orderService.RecalculateLines(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": newLineViews(items)})
}

// CalculateTotals handles POST /api/v2/orders/calculate
func (h *Handlers) CalculateTotals(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	totals := h.orderService.CalculateTotals(c.Request.Context(), &order)
	c.JSON(http.StatusOK, newTotalsView(totals))
}

// ValidateOrder handles POST /api/v2/orders/validate
func (h *Handlers) ValidateOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.orderService.Validate(&order); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ConfirmOrder handles POST /api/v2/orders/confirm
func (h *Handlers) ConfirmOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	readonly := h.orderService.Confirm(&order)

	c.JSON(http.StatusOK, gin.H{
		"confirm_date": order.ConfirmDate,
		"status":       order.Status,
		"readonly":     readonly,
	})
}

type totalSalesRequest struct {
	Orders []*models.Order `json:"orders"`
}

// TotalSales handles POST /api/v2/orders/sales/total
func (h *Handlers) TotalSales(c *gin.Context) {
	var req totalSalesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	total, ok := h.orderService.TotalSales(req.Orders)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"notice": "No sales"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  money.Fixed(total),
		"notice": fmt.Sprintf("Total sales : %s", money.Fixed(total)),
	})
}

// GetOrder handles GET /api/v2/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrderView(order))
}

// ApplyLineChange handles POST /api/v2/orders/:id/lines
func (h *Handlers) ApplyLineChange(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req models.LineChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orderService.ApplyLineChange(c.Request.Context(), orderID, &req)
	if err != nil {
		h.logger.Error("Failed to apply line change", zap.Int64("order_id", orderID), zap.Error(err))
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrderView(order))
}

// RefreshOrder handles POST /api/v2/orders/:id/refresh
func (h *Handlers) RefreshOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.RefreshStoredOrder(c.Request.Context(), orderID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrderView(order))
}

func parseOrderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return 0, false
	}
	return id, true
}

func handleError(c *gin.Context, err error) {
	if errors.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if validationErr, ok := errors.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationErr.Message,
			"details": validationErr.Details,
		})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
