// Package http exposes the JSON API: auth, taxonomy, expenses, incomes,
// budgets and reports.
package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tally/internal/auth"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/services"
)

// sessionCookie is the name of the session token cookie.
const sessionCookie = "tally_session"

// ReadyChecker reports whether the backing store can serve requests.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server

	auth     *auth.Manager
	taxonomy services.TaxonomyStore
	expenses *services.ExpenseService
	incomes  *services.IncomeService
	budgets  *services.BudgetService
	reports  *services.ReportService

	limiter        *ratelimit.Limiter
	allowedOrigins map[string]bool
	ready          ReadyChecker
}

// Options collects the server's dependencies.
type Options struct {
	Addr     string
	Auth     *auth.Manager
	Taxonomy services.TaxonomyStore
	Expenses *services.ExpenseService
	Incomes  *services.IncomeService
	Budgets  *services.BudgetService
	Reports  *services.ReportService
	Limiter  *ratelimit.Limiter

	// AllowedOrigins are the exact origins CORS responses will echo.
	AllowedOrigins []string

	// Ready backs /readyz; nil means always ready.
	Ready ReadyChecker
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	origins := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		auth:           opts.Auth,
		taxonomy:       opts.Taxonomy,
		expenses:       opts.Expenses,
		incomes:        opts.Incomes,
		budgets:        opts.Budgets,
		reports:        opts.Reports,
		limiter:        opts.Limiter,
		allowedOrigins: origins,
		ready:          opts.Ready,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// Auth endpoints. Register and login are rate limited to slow down
	// credential stuffing.
	mux.HandleFunc("POST /api/register", s.public(s.limited(s.handleRegister)))
	mux.HandleFunc("POST /api/login", s.public(s.limited(s.handleLogin)))
	mux.HandleFunc("POST /api/logout", s.public(s.handleLogout))
	mux.HandleFunc("GET /api/me", s.protected(s.handleMe))

	// Taxonomy
	mux.HandleFunc("GET /api/categories", s.protected(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.protected(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.protected(s.handleDeleteCategory))
	mux.HandleFunc("GET /api/categories/{id}/subcategories", s.protected(s.handleListSubcategories))
	mux.HandleFunc("POST /api/categories/{id}/subcategories", s.protected(s.handleCreateSubcategory))
	mux.HandleFunc("DELETE /api/subcategories/{id}", s.protected(s.handleDeleteSubcategory))

	// Expenses
	mux.HandleFunc("GET /api/expenses", s.protected(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.protected(s.limited(s.handleCreateExpense)))
	mux.HandleFunc("GET /api/expenses/{id}", s.protected(s.handleGetExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.protected(s.handleDeleteExpense))

	// Incomes
	mux.HandleFunc("GET /api/incomes", s.protected(s.handleListIncomes))
	mux.HandleFunc("POST /api/incomes", s.protected(s.limited(s.handleCreateIncome)))
	mux.HandleFunc("DELETE /api/incomes/{id}", s.protected(s.handleDeleteIncome))

	// Budgets
	mux.HandleFunc("GET /api/budgets", s.protected(s.handleListBudgets))
	mux.HandleFunc("POST /api/budgets", s.protected(s.handleCreateBudget))
	mux.HandleFunc("GET /api/budgets/{id}", s.protected(s.handleGetBudget))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.protected(s.handleDeleteBudget))
	mux.HandleFunc("PUT /api/budgets/{id}/allocations", s.protected(s.handleReplaceAllocations))
	mux.HandleFunc("GET /api/budgets/{id}/allocations", s.protected(s.handleListAllocations))
	mux.HandleFunc("GET /api/budgets/{id}/performance", s.protected(s.handleBudgetPerformance))

	// Reports
	mux.HandleFunc("GET /api/reports/month", s.protected(s.handleMonthReport))

	// Preflight for every API route.
	mux.HandleFunc("OPTIONS /api/", s.handlePreflight)

	return s
}

// public wraps a handler with request logging, security headers and CORS.
func (s *Server) public(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.applyCORS(w, r)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger := applog.FromContext(ctx).WithComponent(applog.ComponentHTTP)
		logger.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP(r))
	}
}

// protected resolves the session cookie and rejects the request when it is
// missing or expired.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return s.public(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		user, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// limited applies the per-IP rate limit to a handler.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit)
			logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP(r), applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next(w, r)
	}
}

// applyCORS echoes the Origin header when it is in the allow list. Cookies
// require a concrete origin, never a wildcard.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.allowedOrigins[strings.TrimRight(origin, "/")] {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Vary", "Origin")
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed",
				applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the HTTP server and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.Server.Shutdown(ctx)
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
