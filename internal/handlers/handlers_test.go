package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/service"
)

// memoryRepo serves one stored order. Reads return fresh copies.
type memoryRepo struct {
	order *models.Order
}

func (m *memoryRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	if m.order == nil || m.order.ID != id {
		return nil, errors.ErrNotFound
	}
	data, _ := json.Marshal(m.order)
	var c models.Order
	_ = json.Unmarshal(data, &c)
	for _, l := range c.Items {
		l.SnapshotCurrent()
	}
	return &c, nil
}

func (m *memoryRepo) FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error) {
	order, err := m.GetByID(ctx, m.orderID())
	if err != nil {
		return nil, err
	}
	var found *models.OrderLine
	for _, root := range order.Items {
		root.Walk(func(l *models.OrderLine) {
			if l.ID != nil && *l.ID == lineID {
				found = l
			}
		})
	}
	if found == nil {
		return nil, errors.ErrNotFound
	}
	return found.Items, nil
}

func (m *memoryRepo) orderID() int64 {
	if m.order == nil {
		return 0
	}
	return m.order.ID
}

func (m *memoryRepo) SaveLines(ctx context.Context, order *models.Order) error {
	m.order = order
	return nil
}

func (m *memoryRepo) UpdateTotals(ctx context.Context, order *models.Order) error {
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return stderrors.New("connection refused") }

func newTestHandlers(repo *memoryRepo) *Handlers {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Features: config.FeatureFlags{EnableOrderEvents: true}}
	reg := metrics.NewRegistry()
	svc := service.NewOrderService(repo, nil, events.NewMockEventPublisher(), reg, cfg, nil)
	return NewHandlers(svc, reg, nil, cfg, nil)
}

func newTestRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.GET("/metrics", h.Metrics)
	v2 := r.Group("/api/v2")
	v2.POST("/orders/lines/recalculate", h.RecalculateLines)
	v2.POST("/orders/calculate", h.CalculateTotals)
	v2.POST("/orders/validate", h.ValidateOrder)
	v2.POST("/orders/confirm", h.ConfirmOrder)
	v2.POST("/orders/sales/total", h.TotalSales)
	v2.GET("/orders/:id", h.GetOrder)
	v2.POST("/orders/:id/lines", h.ApplyLineChange)
	v2.POST("/orders/:id/refresh", h.RefreshOrder)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Health(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}

	if resp["service"] != "orderlines-service" {
		t.Errorf("Expected service 'orderlines-service', got %v", resp["service"])
	}
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandlers(nil, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	h.Ready(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestReady_DependencyDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandlers(nil, nil, map[string]Pinger{"postgres": failingPinger{}}, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	h.Ready(c)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("Expected failing check in body, got %s", w.Body.String())
	}
}

func TestLive(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Live(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", errors.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("fetch children of line 3: %w", errors.ErrNotFound), http.StatusNotFound},
		{"validation", errors.NewValidationError("confirm_date", "bad"), http.StatusBadRequest},
		{"internal", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			handleError(c, tt.err)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestRecalculateLinesHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))
	body := `{"items":[{"cid":"p","quantity":4,"price":"10.0000","total_price":"40.0000",
		"_changed":true,"_original":{"quantity":2,"price":"10.0000"},
		"items":[{"cid":"c","quantity":3,"price":"5.0000","total_price":"15.0000"}]}]}`

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/lines/recalculate", body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	root := resp["items"].([]interface{})[0].(map[string]interface{})
	child := root["items"].([]interface{})[0].(map[string]interface{})

	if child["quantity"] != float64(6) {
		t.Errorf("Expected child quantity 6, got %v", child["quantity"])
	}
	if child["total_price"] != "30.0000" {
		t.Errorf("Expected child total 30.0000, got %v", child["total_price"])
	}
	if child["old_qty"] != float64(6) {
		t.Errorf("Expected child old_qty 6, got %v", child["old_qty"])
	}
	if root["price"] != "7.5000" || root["old_price"] != "7.5000" {
		t.Errorf("Expected root price and old_price 7.5000, got %v / %v", root["price"], root["old_price"])
	}
}

func TestRecalculateLinesHandler_BadBody(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))

	w, _ := do(t, r, http.MethodPost, "/api/v2/orders/lines/recalculate", `{"items":`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCalculateTotalsHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))
	body := `{"items":[{"quantity":10,"price":"2.5000","taxes":[{"code":"VAT10","rate":"0.10"}]}]}`

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/calculate", body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	expected := map[string]string{"amount": "25.0000", "tax_amount": "2.5000", "total_amount": "27.5000"}
	for k, v := range expected {
		if resp[k] != v {
			t.Errorf("Expected %s=%s, got %v", k, v, resp[k])
		}
	}
}

func TestValidateOrderHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"confirmed before ordered", `{"order_date":"2024-03-15","confirm_date":"2024-03-14"}`, http.StatusBadRequest},
		{"confirmed same day", `{"order_date":"2024-03-15","confirm_date":"2024-03-15"}`, http.StatusOK},
		{"no dates", `{}`, http.StatusOK},
		{"malformed date", `{"order_date":"15/03/2024"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(t, r, http.MethodPost, "/api/v2/orders/validate", tt.body)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestConfirmOrderHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/confirm",
		`{"confirmed":true,"status":"draft","confirm_date":"2024-03-20"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if resp["status"] != "open" {
		t.Errorf("Expected status open, got %v", resp["status"])
	}
	if resp["readonly"] != true {
		t.Errorf("Expected readonly, got %v", resp["readonly"])
	}
	if resp["confirm_date"] != "2024-03-20" {
		t.Errorf("Expected confirm date kept, got %v", resp["confirm_date"])
	}
}

func TestTotalSalesHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{}))

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/sales/total", `{"orders":[]}`)
	if w.Code != http.StatusOK || resp["notice"] != "No sales" {
		t.Errorf("Expected No sales notice, got %d %v", w.Code, resp)
	}

	w, resp = do(t, r, http.MethodPost, "/api/v2/orders/sales/total", `{"orders":[{"amount":"10.5"},{"amount":4.5}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if resp["total"] != "15.0000" {
		t.Errorf("Expected total 15.0000, got %v", resp["total"])
	}
}

func storedOrder() *models.Order {
	bundle := &models.OrderLine{
		ID:         models.Int64Ptr(1),
		Quantity:   1,
		Price:      decimal.NewFromInt(26),
		TotalPrice: decimal.NewFromInt(26),
		Items: []*models.OrderLine{
			{ID: models.Int64Ptr(2), Quantity: 2, Price: decimal.NewFromInt(4), TotalPrice: decimal.NewFromInt(8)},
			{ID: models.Int64Ptr(3), Quantity: 3, Price: decimal.NewFromInt(6), TotalPrice: decimal.NewFromInt(18)},
		},
	}
	return &models.Order{ID: 7, Status: models.OrderStatusDraft, Items: []*models.OrderLine{bundle}}
}

func TestGetOrderHandler(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{order: storedOrder()}))

	w, resp := do(t, r, http.MethodGet, "/api/v2/orders/7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	root := resp["items"].([]interface{})[0].(map[string]interface{})
	if root["total_price"] != "26.0000" || root["old_qty"] != float64(1) {
		t.Errorf("Unexpected root line %v", root)
	}

	w, _ = do(t, r, http.MethodGet, "/api/v2/orders/8", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w, _ = do(t, r, http.MethodGet, "/api/v2/orders/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestApplyLineChangeHandler(t *testing.T) {
	repo := &memoryRepo{order: storedOrder()}
	r := newTestRouter(newTestHandlers(repo))

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/7/lines",
		`{"items":[{"id":3,"quantity":1,"price":"6","_changed":true}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["amount"] != "14.0000" || resp["total_amount"] != "14.0000" {
		t.Errorf("Unexpected totals %v", resp)
	}
	if got := repo.order.Items[0].TotalPrice.StringFixed(4); got != "14.0000" {
		t.Errorf("Expected saved bundle total 14.0000, got %s", got)
	}
}

func TestApplyLineChangeHandler_UnknownLine(t *testing.T) {
	r := newTestRouter(newTestHandlers(&memoryRepo{order: storedOrder()}))

	w, _ := do(t, r, http.MethodPost, "/api/v2/orders/7/lines",
		`{"items":[{"id":99,"quantity":1,"price":"6","_changed":true}]}`)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRefreshOrderHandler(t *testing.T) {
	stale := storedOrder()
	stale.Items[0].TotalPrice = decimal.NewFromInt(1)
	r := newTestRouter(newTestHandlers(&memoryRepo{order: stale}))

	w, resp := do(t, r, http.MethodPost, "/api/v2/orders/7/refresh", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if resp["total_amount"] != "26.0000" {
		t.Errorf("Expected total amount 26.0000, got %v", resp["total_amount"])
	}
}

func TestMetricsHandler(t *testing.T) {
	h := newTestHandlers(&memoryRepo{})
	r := newTestRouter(h)

	do(t, r, http.MethodPost, "/api/v2/orders/lines/recalculate", `{"items":[{"cid":"a","quantity":1,"price":"1","_changed":true}]}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `orderlines_recalculations_total{outcome="applied"} 1`) {
		t.Errorf("Expected recalculation counter, got:\n%s", w.Body.String())
	}
}
