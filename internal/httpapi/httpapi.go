package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/metrics"
	"bingopos/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *metrics.Metrics
	allowedOrigin string
	loginLimiter  *attemptLimiter
	publicLimiter *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, m *metrics.Metrics) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		metrics:       m,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		publicLimiter: newAttemptLimiter(30, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("GET /api/v1/public/articles", a.handlePublicArticles)
	mux.HandleFunc("POST /api/v1/public/remote-orders", a.limitPublic(a.handleCreateRemoteOrder))
	mux.HandleFunc("PATCH /api/v1/public/remote-orders/{id}", a.limitPublic(a.handleUpdateRemoteOrder))
	mux.HandleFunc("GET /api/v1/public/remote-orders", a.limitPublic(a.handleFindRemoteOrders))
	mux.HandleFunc("POST /api/v1/public/presence", a.handlePresenceUpdate)
	mux.HandleFunc("POST /api/v1/public/assistant", a.limitPublic(a.handleChat))

	mux.HandleFunc("GET /api/v1/stock", a.requireAuth(a.handleStock, ""))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleRecordSale, ""))
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, domain.PermDashboard))
	mux.HandleFunc("POST /api/v1/returns", a.requireAuth(a.handleRecordReturn, domain.PermReturns))
	mux.HandleFunc("GET /api/v1/returns", a.requireAuth(a.handleListReturns, domain.PermReturns))
	mux.HandleFunc("GET /api/v1/remote-orders", a.requireAuth(a.withActorless(a.handleFindRemoteOrders), ""))
	mux.HandleFunc("GET /api/v1/remote-orders/pending", a.requireAuth(a.handlePendingRemoteOrders, ""))
	mux.HandleFunc("POST /api/v1/remote-orders/{id}/complete", a.requireAuth(a.handleCompleteRemoteOrder, ""))
	mux.HandleFunc("POST /api/v1/remote-orders/{id}/cancel", a.requireAuth(a.handleCancelRemoteOrder, domain.PermVerifyRemote))
	mux.HandleFunc("GET /api/v1/dashboard", a.requireAuth(a.handleDashboard, domain.PermDashboard))
	mux.HandleFunc("GET /api/v1/dashboard/articles", a.requireAuth(a.handleArticleSales, domain.PermDashboard))
	mux.HandleFunc("POST /api/v1/dashboard/analysis", a.requireAuth(a.handleAnalysis, domain.PermAIAnalysis))
	mux.HandleFunc("GET /api/v1/cashier-warning", a.requireAuth(a.handleCashierWarning, ""))
	mux.HandleFunc("GET /api/v1/presence", a.requireAuth(a.handlePresenceSnapshot, ""))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.PermLogs))

	mux.HandleFunc("POST /api/v1/articles", a.requireAuth(a.handleCreateArticle, domain.PermArticles))
	mux.HandleFunc("PATCH /api/v1/articles/{id}", a.requireAuth(a.handleUpdateArticle, domain.PermArticles))
	mux.HandleFunc("PATCH /api/v1/articles/{id}/availability", a.requireAuth(a.handleArticleAvailability, domain.PermArticles))
	mux.HandleFunc("PATCH /api/v1/articles/{id}/visibility", a.requireAuth(a.handleArticleVisibility, domain.PermArticles))

	mux.HandleFunc("GET /api/v1/cashiers", a.requireAuth(a.handleListCashiers, domain.PermCashiers))
	mux.HandleFunc("POST /api/v1/cashiers", a.requireAuth(a.handleCreateCashier, domain.PermCashiers))
	mux.HandleFunc("PATCH /api/v1/cashiers/{id}", a.requireAuth(a.handleUpdateCashier, domain.PermCashiers))

	mux.HandleFunc("GET /api/v1/conversations", a.requireAuth(a.handleListConversations, domain.PermVerifyRemote))
	mux.HandleFunc("POST /api/v1/conversations/{session}/messages", a.requireAuth(a.handleAdminMessage, domain.PermVerifyRemote))

	return a.withMiddleware(a.metrics.Instrument(mux))
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor domain.Actor)

// requireAuth resolves the bearer token to a cashier and hands it to next.
// An empty permission admits any active cashier.
func (a *API) requireAuth(next actorHandler, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrStorageFailure) {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
			return
		}

		if permission != "" && !actor.Can(permission) {
			writeError(w, http.StatusForbidden, fmt.Errorf("missing permission %s", permission))
			return
		}

		next(w, r, actor)
	}
}

func (a *API) withActorless(next http.HandlerFunc) actorHandler {
	return func(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
		next(w, r)
	}
}

func (a *API) limitPublic(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.publicLimiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}
		next(w, r)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrStorageFailure) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
// Mutating requests carry it in the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login is called before a token can be fetched; presence pings are fired
// from page unload handlers that cannot wait for one.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/public/presence",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handlePublicArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := a.service.ListCustomerArticles(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (a *API) handleCreateRemoteOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.RemoteOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateRemoteOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleUpdateRemoteOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.RemoteOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateRemoteOrder(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// handleFindRemoteOrders looks orders up by reference code or by customer
// document or phone. No match is a 404 here.
func (a *API) handleFindRemoteOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := strings.TrimSpace(query.Get("code"))
	customer := strings.TrimSpace(query.Get("customer"))

	var (
		orders []domain.RemoteOrder
		err    error
	)
	switch {
	case code != "":
		orders, err = a.service.FindRemoteOrdersByCode(r.Context(), code)
	case customer != "":
		orders, err = a.service.FindRemoteOrdersByCustomer(r.Context(), customer)
	default:
		writeError(w, http.StatusBadRequest, errors.New("code or customer is required"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(orders) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no remote orders found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handlePresenceUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.PresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.UpdatePresence(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.Chat(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	stock, err := a.service.GetAvailableStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": stock})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.RecordSale(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale_id": sale.ID, "sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	sales, err := a.service.ListSales(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleRecordReturn(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.RecordReturn(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	returns, err := a.service.ListReturns(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
}

func (a *API) handlePendingRemoteOrders(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	orders, err := a.service.ListPendingRemoteOrders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCompleteRemoteOrder(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	sale, err := a.service.CompleteRemoteOrder(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sale_id": sale.ID})
}

func (a *API) handleCancelRemoteOrder(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	order, err := a.service.CancelRemoteOrder(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	dashboard, err := a.service.GetDashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleArticleSales(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	articles, err := a.service.GetArticleSales(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (a *API) handleAnalysis(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.AnalyzeDashboard(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashierWarning(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	warning, err := a.service.GetCashierWarning(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, warning)
}

func (a *API) handlePresenceSnapshot(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	snap, err := a.service.PresenceSnapshot(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	logs, err := a.service.ListAuditLogs(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleCreateArticle(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ArticleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateArticle(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"article": product})
}

func (a *API) handleUpdateArticle(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ArticleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateArticle(r.Context(), r.PathValue("id"), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"article": product})
}

func (a *API) handleArticleAvailability(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ToggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.SetArticleAvailability(r.Context(), r.PathValue("id"), req.Enabled, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"article": product})
}

func (a *API) handleArticleVisibility(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.ToggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.SetArticleVisibility(r.Context(), r.PathValue("id"), req.Enabled, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"article": product})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	cashiers, err := a.service.ListCashiers(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.CashierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cashier, err := a.service.CreateCashier(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

func (a *API) handleUpdateCashier(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.CashierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cashier, err := a.service.UpdateCashier(r.Context(), r.PathValue("id"), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashier": cashier})
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	conversations, err := a.service.ListConversations(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (a *API) handleAdminMessage(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req domain.AdminMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := a.service.SendAdminMessage(r.Context(), r.PathValue("session"), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInconsistentState):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidSale),
		errors.Is(err, service.ErrInvalidReturn),
		errors.Is(err, service.ErrInvalidArticle),
		errors.Is(err, service.ErrInvalidCashier),
		errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOrderAlreadyProcessed), errors.Is(err, service.ErrOrderNotEditable):
		return http.StatusConflict
	case errors.Is(err, service.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCodeGenerationExhausted), errors.Is(err, service.ErrAssistantUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to a response. A remote order left
// inconsistent is reported with its message and sale id: the payment was
// taken and staff must follow up.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusBadGateway:
		var inconsistent *service.InconsistentStateError
		body := map[string]any{"error": err.Error()}
		if errors.As(err, &inconsistent) {
			body["sale_id"] = inconsistent.SaleID
			body["order_code"] = inconsistent.OrderCode
		}
		log.Printf("[reconcile] ERROR: %v", err)
		writeJSON(w, status, body)
	case http.StatusServiceUnavailable:
		log.Printf("service unavailable: %v", err)
		msg := service.ErrAssistantUnavailable.Error()
		if errors.Is(err, service.ErrCodeGenerationExhausted) {
			msg = service.ErrCodeGenerationExhausted.Error()
		}
		writeJSON(w, status, map[string]any{"error": msg})
	default:
		writeError(w, status, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
