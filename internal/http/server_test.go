package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/auth"
	"tally/internal/middleware/ratelimit"
	"tally/internal/services"
	"tally/internal/storage/memory"

	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New()
	manager := auth.NewManager(store, store, time.Hour, bcrypt.MinCost)
	reports := services.NewReportService(store, nil)

	srv := NewServer(Options{
		Addr:           ":0",
		Auth:           manager,
		Taxonomy:       store,
		Expenses:       services.NewExpenseService(store, nil, reports),
		Incomes:        services.NewIncomeService(store, reports),
		Budgets:        services.NewBudgetService(store),
		Reports:        reports,
		AllowedOrigins: []string{"http://localhost:3000"},
		Ready:          store,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// client returns an http.Client with a cookie jar so sessions survive across
// requests.
func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func register(t *testing.T, c *http.Client, baseURL, email string) {
	t.Helper()
	resp := doJSON(t, c, http.MethodPost, baseURL+"/api/register", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
}

func createCategory(t *testing.T, c *http.Client, baseURL, name string) int64 {
	t.Helper()
	resp := doJSON(t, c, http.MethodPost, baseURL+"/api/categories", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	return decodeBody[categoryResponse](t, resp).ID
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)

	// Unauthenticated requests are rejected.
	resp := doJSON(t, c, http.MethodGet, ts.URL+"/api/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /api/me: status %d, want 401", resp.StatusCode)
	}

	register(t, c, ts.URL, "alice@example.com")

	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/me after register: status %d", resp.StatusCode)
	}
	me := decodeBody[userResponse](t, resp)
	if me.Email != "alice@example.com" {
		t.Errorf("me.Email = %q", me.Email)
	}

	// Logout invalidates the session.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/me after logout: status %d, want 401", resp.StatusCode)
	}

	// Login works with the registered password, case-insensitive email.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/login", map[string]string{
		"email":    "ALICE@example.com",
		"password": "correct-horse",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}

	// Wrong password and unknown email answer identically.
	for _, creds := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "wrong"},
	} {
		resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/login", creds)
		body := decodeBody[errorResponse](t, resp)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("bad login: status %d, want 401", resp.StatusCode)
		}
		if body.Error != auth.ErrInvalidCredentials.Error() {
			t.Errorf("bad login error = %q", body.Error)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad email", map[string]string{"email": "nope", "password": "correct-horse"}, http.StatusUnprocessableEntity},
		{"short password", map[string]string{"email": "a@b.com", "password": "short"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/register", tc.body)
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	register(t, c, ts.URL, "taken@example.com")
	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/register", map[string]string{
		"email": "taken@example.com", "password": "correct-horse",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", resp.StatusCode)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "alice@example.com")

	catID := createCategory(t, c, ts.URL, "Groceries")

	// Duplicate name conflicts.
	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/categories", map[string]string{"name": "groceries"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate category: status %d, want 409", resp.StatusCode)
	}

	// Subcategories nest under the category.
	resp = doJSON(t, c, http.MethodPost, fmt.Sprintf("%s/api/categories/%d/subcategories", ts.URL, catID),
		map[string]string{"name": "Market"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create subcategory: status %d", resp.StatusCode)
	}
	sub := decodeBody[subcategoryResponse](t, resp)

	resp = doJSON(t, c, http.MethodGet, fmt.Sprintf("%s/api/categories/%d/subcategories", ts.URL, catID), nil)
	subs := decodeBody[[]subcategoryResponse](t, resp)
	if len(subs) != 1 || subs[0].Name != "Market" {
		t.Errorf("unexpected subcategories: %+v", subs)
	}

	// A category referenced by an expense cannot be deleted.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-03-15", Description: "weekly shop", Amount: "42.50",
		CategoryID: catID, SubcategoryID: sub.ID,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expense: status %d", resp.StatusCode)
	}
	resp = doJSON(t, c, http.MethodDelete, fmt.Sprintf("%s/api/categories/%d", ts.URL, catID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete referenced category: status %d, want 409", resp.StatusCode)
	}

	// An unreferenced category deletes cleanly.
	otherID := createCategory(t, c, ts.URL, "Transport")
	resp = doJSON(t, c, http.MethodDelete, fmt.Sprintf("%s/api/categories/%d", ts.URL, otherID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete category: status %d, want 204", resp.StatusCode)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "alice@example.com")
	catID := createCategory(t, c, ts.URL, "Groceries")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-03-15", Description: "weekly shop", Amount: "42,50", CategoryID: catID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expense: status %d", resp.StatusCode)
	}
	created := decodeBody[expenseResponse](t, resp)
	if created.AmountCents != 4250 {
		t.Errorf("AmountCents = %d, want 4250 (comma decimal)", created.AmountCents)
	}

	// Invalid amounts are 422.
	for _, amount := range []string{"", "abc", "-5", "0"} {
		resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
			Date: "2026-03-15", Description: "x", Amount: amount, CategoryID: catID,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("amount %q: status %d, want 422", amount, resp.StatusCode)
		}
	}

	// A description over the 200-char limit is a validation failure.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-03-15", Description: strings.Repeat("x", 201), Amount: "1.00", CategoryID: catID,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("201-char description: status %d, want 422", resp.StatusCode)
	}

	// Unknown category looks absent.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-03-15", Description: "x", Amount: "1.00", CategoryID: 9999,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown category: status %d, want 404", resp.StatusCode)
	}

	// Month filter.
	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/expenses?year=2026&month=3", nil)
	items := decodeBody[[]expenseResponse](t, resp)
	if len(items) != 1 || items[0].ID != created.ID {
		t.Errorf("list march: %+v", items)
	}
	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/expenses?year=2026&month=4", nil)
	items = decodeBody[[]expenseResponse](t, resp)
	if len(items) != 0 {
		t.Errorf("list april should be empty, got %+v", items)
	}

	// Delete hides the expense from reads.
	resp = doJSON(t, c, http.MethodDelete, fmt.Sprintf("%s/api/expenses/%d", ts.URL, created.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete expense: status %d", resp.StatusCode)
	}
	resp = doJSON(t, c, http.MethodGet, fmt.Sprintf("%s/api/expenses/%d", ts.URL, created.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted expense: status %d, want 404", resp.StatusCode)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	ts := newTestServer(t)

	alice := client(t)
	register(t, alice, ts.URL, "alice@example.com")
	catID := createCategory(t, alice, ts.URL, "Groceries")

	resp := doJSON(t, alice, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-03-15", Description: "weekly shop", Amount: "42.50", CategoryID: catID,
	})
	created := decodeBody[expenseResponse](t, resp)

	bob := client(t)
	register(t, bob, ts.URL, "bob@example.com")

	// Bob sees Alice's rows as plain 404s.
	resp = doJSON(t, bob, http.MethodGet, fmt.Sprintf("%s/api/expenses/%d", ts.URL, created.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign expense: status %d, want 404", resp.StatusCode)
	}
	resp = doJSON(t, bob, http.MethodDelete, fmt.Sprintf("%s/api/categories/%d", ts.URL, catID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign category delete: status %d, want 404", resp.StatusCode)
	}
}

func TestBudgetPerformanceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "alice@example.com")
	groceries := createCategory(t, c, ts.URL, "Groceries")
	transport := createCategory(t, c, ts.URL, "Transport")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/budgets", budgetRequest{
		Name: "March", Start: "2026-03-01", End: "2026-03-31", Target: "1000.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create budget: status %d", resp.StatusCode)
	}
	b := decodeBody[budgetResponse](t, resp)

	// Inverted range is rejected.
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/budgets", budgetRequest{
		Name: "Backwards", Start: "2026-03-31", End: "2026-03-01", Target: "1.00",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("inverted budget range: status %d, want 422", resp.StatusCode)
	}

	resp = doJSON(t, c, http.MethodPut, fmt.Sprintf("%s/api/budgets/%d/allocations", ts.URL, b.ID),
		allocationsRequest{Allocations: []allocationRequest{
			{CategoryID: groceries, Amount: "400.00"},
			{CategoryID: transport, Amount: "200.00"},
		}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("replace allocations: status %d", resp.StatusCode)
	}

	for _, e := range []expenseRequest{
		{Date: "2026-03-05", Description: "shop", Amount: "150.00", CategoryID: groceries},
		{Date: "2026-03-10", Description: "fuel", Amount: "250.00", CategoryID: transport},
	} {
		resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", e)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create expense: status %d", resp.StatusCode)
		}
	}

	resp = doJSON(t, c, http.MethodGet, fmt.Sprintf("%s/api/budgets/%d/performance", ts.URL, b.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("performance: status %d", resp.StatusCode)
	}
	perf := decodeBody[performanceResponse](t, resp)

	if perf.TotalAllocatedCents != 60_000 {
		t.Errorf("TotalAllocatedCents = %d, want 60000", perf.TotalAllocatedCents)
	}
	if perf.TotalSpentCents != 40_000 {
		t.Errorf("TotalSpentCents = %d, want 40000", perf.TotalSpentCents)
	}
	if perf.TotalRemainingCents != 60_000 {
		t.Errorf("TotalRemainingCents = %d, want 60000", perf.TotalRemainingCents)
	}
	if len(perf.Categories) != 2 {
		t.Fatalf("expected 2 rows, got %+v", perf.Categories)
	}
	if perf.Categories[0].Name != "Transport" || perf.Categories[0].RemainingCents != -5_000 {
		t.Errorf("row 0 should be overspent Transport, got %+v", perf.Categories[0])
	}
}

func TestMonthReportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "alice@example.com")
	food := createCategory(t, c, ts.URL, "Food")
	salary := createCategory(t, c, ts.URL, "Salary")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/expenses", expenseRequest{
		Date: "2026-05-03", Description: "lunch", Amount: "15.00", CategoryID: food,
	})
	resp.Body.Close()
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/api/incomes", incomeRequest{
		Date: "2026-05-27", Description: "pay", Amount: "2500.00", CategoryID: salary,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create income: status %d", resp.StatusCode)
	}

	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/reports/month?year=2026&month=5", nil)
	report := decodeBody[monthReportResponse](t, resp)
	if report.ExpensesCents != 1_500 || report.IncomesCents != 250_000 || report.NetCents != 248_500 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight: status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	// Unlisted origins get no CORS headers.
	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/api/expenses", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin echoed: %q", got)
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	store := memory.New()
	manager := auth.NewManager(store, store, time.Hour, bcrypt.MinCost)
	reports := services.NewReportService(store, nil)
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2})

	srv := NewServer(Options{
		Auth:     manager,
		Taxonomy: store,
		Expenses: services.NewExpenseService(store, nil, reports),
		Incomes:  services.NewIncomeService(store, reports),
		Budgets:  services.NewBudgetService(store),
		Reports:  reports,
		Limiter:  limiter,
	})
	t.Cleanup(func() { limiter.Stop() })
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	c := client(t)
	register(t, c, ts.URL, "alice@example.com")

	// Pin the client identity via proxy header; RemoteAddr carries the
	// ephemeral port and would change across connections.
	login := func() *http.Response {
		body := []byte(`{"email":"alice@example.com","password":"correct-horse"}`)
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/login", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Real-IP", "203.0.113.9")
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := login(); resp.StatusCode != http.StatusOK {
			t.Fatalf("login %d: status %d", i+1, resp.StatusCode)
		}
	}

	// Third request in the window is rejected.
	resp := login()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third limited request: status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Errorf("expected Retry-After header")
	}

	// Unlimited routes keep working for the same client.
	resp = doJSON(t, c, http.MethodGet, ts.URL+"/api/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unlimited route: status %d, want 200", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
}
