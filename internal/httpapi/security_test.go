package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/public/remote-orders", map[string]any{
		"total":  5000,
		"status": "completada",
	}, "", fetchCSRFToken(t, api))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/public/remote-orders", cartonOrderRequest(), "", "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}

	res = doJSON(t, api.Handler(), http.MethodPost, "/api/v1/remote-orders/any/complete", nil, token, "forged")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged csrf token, got %d", res.Code)
	}
}

func TestCSRFTokenAcceptsPreviousHour(t *testing.T) {
	api := newTestAPI(t)
	prev := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour).Unix()
	old := prev - 3600

	if !api.validateCSRFToken(api.generateCSRFToken()) {
		t.Fatalf("expected current token to validate")
	}
	if !api.validateCSRFToken(api.csrfTokenForHour(prev)) {
		t.Fatalf("expected previous hour token to validate")
	}
	if api.validateCSRFToken(api.csrfTokenForHour(old)) {
		t.Fatalf("expected token from two hours ago to fail")
	}
}

func TestPublicOrderRateLimit(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	csrf := fetchCSRFToken(t, api)

	var last int
	for i := 0; i < 31; i++ {
		last = doJSON(t, h, http.MethodPost, "/api/v1/public/remote-orders", map[string]any{}, "", csrf).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}

func TestPublicOrderLookupRateLimit(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	var last int
	for i := 0; i < 31; i++ {
		last = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/public/remote-orders?code=%06d", 100000+i), nil, "", "").Code
		if i < 30 && last != http.StatusNotFound {
			t.Fatalf("lookup %d expected 404 before limit, got %d", i+1, last)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}

	token := loginAsAdmin(t, api)
	if code := doJSON(t, h, http.MethodGet, "/api/v1/remote-orders?code=100000", nil, token, "").Code; code != http.StatusNotFound {
		t.Fatalf("cashier lookup must not share the public limit, got %d", code)
	}
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientKey(req); got != "2001:db8::1" {
		t.Fatalf("unexpected key %q", got)
	}
	req.RemoteAddr = ""
	if got := clientKey(req); got != "unknown" {
		t.Fatalf("unexpected key %q", got)
	}
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response failed: %v", err)
	}
	tok := payload["csrf_token"]
	if strings.TrimSpace(tok) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return tok
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "admin", "admin123")
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}
