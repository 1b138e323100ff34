package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/service"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithRepo(t, memory.NewSeeded())
}

func newTestAPIWithRepo(t *testing.T, repo store.Repository) *API {
	t.Helper()

	svc := service.New(repo, service.WithTaskRunner(service.InlineRunner{}))
	if _, err := svc.Bootstrap(context.Background(), "admin", "admin123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	auth := NewAuthManager("test-secret-key-with-enough-bytes!", time.Hour, svc)

	return New(svc, auth, "*", nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any, token, csrf string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cartonOrderRequest() domain.RemoteOrderRequest {
	return domain.RemoteOrderRequest{
		Details: []domain.LineItem{
			{ProductID: "prod-carton", Quantity: 2, UnitPrice: 5000, Subtotal: 10000},
		},
		Total:    10000,
		Customer: domain.CustomerInfo{Document: "1012345678", Phone: "3001234567"},
	}
}

func createOrder(t *testing.T, api *API, h http.Handler) domain.RemoteOrder {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/public/remote-orders", cartonOrderRequest(), "", fetchCSRFToken(t, api))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Order domain.RemoteOrder `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if len(body.Order.Code) != 6 || body.Order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order %+v", body.Order)
	}
	return body.Order
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "admin123"}, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.CashierID == "" {
		t.Fatalf("expected token and cashier id, got %+v", body)
	}
	if len(body.Permissions) != len(service.AllPermissions) {
		t.Fatalf("expected all permissions for admin, got %v", body.Permissions)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrongpassword"}, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleStock_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/stock", nil, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, api.Handler(), http.MethodGet, "/api/v1/stock", nil, "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestHandleStock_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/stock", nil, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Stock []domain.ProductStock `json:"stock"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Stock) != 5 {
		t.Fatalf("expected 5 seeded products, got %d", len(body.Stock))
	}
}

func TestRemoteOrderCompleteFlow(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	order := createOrder(t, api, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/public/remote-orders?code="+order.Code, nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup by code: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/complete", nil, token, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var done map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&done); err != nil {
		t.Fatalf("decode complete: %v", err)
	}
	if done["ok"] != true || done["sale_id"] == "" {
		t.Fatalf("unexpected complete body %v", done)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/complete", nil, token, csrf)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second complete: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/missing/complete", nil, token, csrf)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown order: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/remote-orders/pending", nil, token, "")
	var pending struct {
		Orders []domain.RemoteOrder `json:"orders"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending.Orders) != 0 {
		t.Fatalf("expected no pending orders, got %d", len(pending.Orders))
	}
}

type stuckFlipStore struct {
	*memory.Store
}

func (stuckFlipStore) MarkRemoteOrderCompleted(context.Context, string, string, time.Time) error {
	return store.ErrStaleState
}

func TestRemoteOrderInconsistentStateIsReported(t *testing.T) {
	api := newTestAPIWithRepo(t, stuckFlipStore{Store: memory.NewSeeded()})
	h := api.Handler()
	token := loginAsAdmin(t, api)
	order := createOrder(t, api, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/complete", nil, token, fetchCSRFToken(t, api))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if id, _ := body["sale_id"].(string); id == "" {
		t.Fatalf("expected sale_id in body, got %v", body)
	}
	if body["order_code"] != order.Code {
		t.Fatalf("expected order code %s, got %v", order.Code, body["order_code"])
	}
	if body["error"] == "internal server error" {
		t.Fatalf("inconsistent state message must not be hidden")
	}
}

func TestRemoteOrderValidationAndLookups(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	csrf := fetchCSRFToken(t, api)

	bad := cartonOrderRequest()
	bad.Total = 9000
	rec := doJSON(t, h, http.MethodPost, "/api/v1/public/remote-orders", bad, "", csrf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched total: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/public/remote-orders", nil, "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing query: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/public/remote-orders?customer=nobody", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no match: expected 404, got %d", rec.Code)
	}

	order := createOrder(t, api, h)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/public/remote-orders?customer=3001234567", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("customer lookup: expected 200, got %d", rec.Code)
	}

	edit := cartonOrderRequest()
	edit.Details[0].Quantity = 3
	edit.Details[0].Subtotal = 15000
	edit.Total = 15000
	rec = doJSON(t, h, http.MethodPatch, "/api/v1/public/remote-orders/"+order.ID, edit, "", csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit pending: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCancelRequiresPermission(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	adminToken := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cashiers", domain.CashierRequest{
		Username: "caja1",
		FullName: "Caja Uno",
		Password: "caja12345",
	}, adminToken, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cashier: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	boothToken := login(t, api, "caja1", "caja12345")

	order := createOrder(t, api, h)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/cancel", nil, boothToken, csrf)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("booth cancel: expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/dashboard", nil, boothToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("booth dashboard: expected 403, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/cancel", nil, adminToken, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin cancel: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/remote-orders/"+order.ID+"/complete", nil, boothToken, csrf)
	if rec.Code != http.StatusConflict {
		t.Fatalf("complete cancelled: expected 409, got %d", rec.Code)
	}
}

func TestRecordSaleAndDashboard(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	sale := domain.SaleRequest{
		PaymentMethod:  domain.PaymentCash,
		AmountTendered: 10000,
		Items:          []domain.LineItem{{ProductID: "prod-empanada", Quantity: 3, UnitPrice: 2500, Subtotal: 7500}},
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", sale, token, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	sale.AmountTendered = 1000
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales", sale, token, csrf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short cash: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/dashboard", nil, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	var dashboard domain.Dashboard
	if err := json.NewDecoder(rec.Body).Decode(&dashboard); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dashboard.TotalRevenue != 7500 {
		t.Fatalf("expected revenue 7500, got %d", dashboard.TotalRevenue)
	}
}

func TestAssistantUnavailableReturns503(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/public/assistant", domain.ChatRequest{Message: "hola"}, "", fetchCSRFToken(t, api))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != service.ErrAssistantUnavailable.Error() {
		t.Fatalf("unexpected message %q", body["error"])
	}
}

func TestPresenceRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := loginAsAdmin(t, api)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/public/presence", domain.PresenceRequest{SessionID: "s-1", State: domain.PresencePaying}, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("presence: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/public/presence", domain.PresenceRequest{SessionID: "s-1", State: "dancing"}, "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown state: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/presence", nil, token, "")
	var snap domain.PresenceSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Paying != 1 || snap.Total != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
