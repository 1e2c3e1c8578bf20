package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"filmtrack/backend/internal/metrics"
	"filmtrack/backend/internal/service"
	"filmtrack/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *metrics.Metrics
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

// New wires the REST surface. A nil metrics disables /metrics and request
// instrumentation.
func New(svc *service.Service, auth *AuthManager, allowedOrigin string, m *metrics.Metrics) *API {
	return &API{
		service:       svc,
		auth:          auth,
		metrics:       m,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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
	kept = append(kept, now)
	l.entries[key] = kept
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
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/auth/me", a.requireAuth(a.handleMe))

	mux.HandleFunc("GET /api/raw-materials", a.requireAuth(a.handleListMaterials))
	mux.HandleFunc("POST /api/raw-materials", a.requireAuth(a.handleCreateMaterial))
	mux.HandleFunc("GET /api/raw-materials/low-stock", a.requireAuth(a.handleLowStock))
	mux.HandleFunc("GET /api/raw-materials/{id}", a.requireAuth(a.handleGetMaterial))
	mux.HandleFunc("PATCH /api/raw-materials/{id}", a.requireAuth(a.handleUpdateMaterial))
	mux.HandleFunc("GET /api/raw-materials/{id}/ledger", a.requireAuth(a.handleMaterialLedger))
	mux.HandleFunc("GET /api/raw-materials/{id}/price-history", a.requireAuth(a.handlePriceHistory))

	mux.HandleFunc("GET /api/stock-transactions", a.requireAuth(a.handleListStockTransactions))
	mux.HandleFunc("POST /api/stock-transactions", a.requireAuth(a.handleCreateStockTransaction))
	mux.HandleFunc("POST /api/stock-transactions/reconcile", a.requireAuth(a.handleReconcile))

	mux.HandleFunc("GET /api/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/products", a.requireAuth(a.handleCreateProduct))
	mux.HandleFunc("GET /api/products/{id}/movements", a.requireAuth(a.handleProductMovements))

	mux.HandleFunc("GET /api/production-orders", a.requireAuth(a.handleListOrders))
	mux.HandleFunc("POST /api/production-orders", a.requireAuth(a.handleCreateOrder))
	mux.HandleFunc("PATCH /api/production-orders/{id}/status", a.requireAuth(a.handleOrderStatus))

	mux.HandleFunc("GET /api/consumptions", a.requireAuth(a.handleListConsumptions))
	mux.HandleFunc("POST /api/consumptions", a.requireAuth(a.handleCreateConsumption))

	mux.HandleFunc("GET /api/daily-consumptions", a.requireAuth(a.handleListDaily))
	mux.HandleFunc("POST /api/daily-consumptions", a.requireAuth(a.handleCreateDaily))
	mux.HandleFunc("PUT /api/daily-consumptions/{id}", a.requireAuth(a.handleUpdateDaily))
	mux.HandleFunc("DELETE /api/daily-consumptions/{id}", a.requireAuth(a.handleDeleteDaily))

	mux.HandleFunc("GET /api/gas-consumption", a.requireAuth(a.handleListGas))
	mux.HandleFunc("POST /api/gas-consumption", a.requireAuth(a.handleCreateGas))
	mux.HandleFunc("PUT /api/gas-consumption/{id}", a.requireAuth(a.handleUpdateGas))
	mux.HandleFunc("DELETE /api/gas-consumption/{id}", a.requireAuth(a.handleDeleteGas))

	mux.HandleFunc("GET /api/manufacturing", a.requireAuth(a.handleListManufacturing))
	mux.HandleFunc("POST /api/manufacturing", a.requireAuth(a.handleCreateManufacturing))
	mux.HandleFunc("PUT /api/manufacturing/{id}", a.requireAuth(a.handleUpdateManufacturing))
	mux.HandleFunc("DELETE /api/manufacturing/{id}", a.requireAuth(a.handleDeleteManufacturing))

	mux.HandleFunc("GET /api/shipments", a.requireAuth(a.handleListShipments))
	mux.HandleFunc("POST /api/shipments", a.requireAuth(a.handleCreateShipment))
	mux.HandleFunc("PATCH /api/shipments/{id}/status", a.requireAuth(a.handleShipmentStatus))
	mux.HandleFunc("DELETE /api/shipments/{id}", a.requireAuth(a.handleDeleteShipment))

	mux.HandleFunc("GET /api/dispatches", a.requireAuth(a.handleListDispatches))
	mux.HandleFunc("POST /api/dispatches", a.requireAuth(a.handleCreateDispatch))
	mux.HandleFunc("DELETE /api/dispatches/{id}", a.requireAuth(a.handleDeleteDispatch))

	mux.HandleFunc("GET /api/costs/analysis", a.requireAuth(a.handleCostAnalysis))
	mux.HandleFunc("GET /api/costs/analysis/export", a.requireAuth(a.handleCostAnalysisExport))
	mux.HandleFunc("GET /api/dashboard/stats", a.requireAuth(a.handleDashboardStats))
	mux.HandleFunc("GET /api/stock", a.requireAuth(a.handleFinishedStock))
	mux.HandleFunc("GET /api/stock/export", a.requireAuth(a.handleFinishedStockExport))

	mux.HandleFunc("GET /api/calc/area", a.requireAuth(a.handleAreaPreview))
	mux.HandleFunc("GET /api/calc/consumption", a.requireAuth(a.handleConsumptionPreview))

	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleListUsers))
	mux.HandleFunc("POST /api/users", a.requireAuth(a.handleCreateUser))
	mux.HandleFunc("DELETE /api/users/{id}", a.requireAuth(a.handleDeleteUser))

	mux.HandleFunc("GET /api/audit-logs", a.requireAuth(a.handleAuditLogs))

	return a.withMiddleware(mux)
}

// requireAuth only authenticates. Role checks happen in the service so that
// every caller goes through the same policy.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		a.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC3339 or a bare YYYY-MM-DD date. Blank is zero.
func parseTimeParam(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", store.ErrInvalidTransaction, raw)
	}
	return t, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"detail": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
