package services

import (
	"context"
	"testing"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/storage/memory"
)

// countingReportStore wraps a store and counts aggregation queries so tests
// can observe cache hits.
type countingReportStore struct {
	*memory.Store
	calls int
}

func (c *countingReportStore) MonthCategorySums(ctx context.Context, userID int64, year, month int) ([]core.CategoryAmount, error) {
	c.calls++
	return c.Store.MonthCategorySums(ctx, userID, year, month)
}

func TestMonthReport(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u, _ := store.CreateUser(ctx, "test@example.com", "hash")
	food, _ := store.CreateCategory(ctx, u.ID, "Food")
	salary, _ := store.CreateCategory(ctx, u.ID, "Salary")

	_, err := store.CreateExpense(ctx, core.Expense{
		UserID: u.ID, Date: core.NewDate(2026, 5, 3), Description: "lunch",
		Amount: core.Money{Cents: 1_500}, CategoryID: food.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	_, err = store.CreateIncome(ctx, core.Income{
		UserID: u.ID, Date: core.NewDate(2026, 5, 27), Description: "pay",
		Amount: core.Money{Cents: 250_000}, CategoryID: salary.ID,
	})
	if err != nil {
		t.Fatalf("CreateIncome: %v", err)
	}

	reports := NewReportService(store, nil)
	got, err := reports.Month(ctx, u.ID, 2026, 5)
	if err != nil {
		t.Fatalf("Month: %v", err)
	}

	if got.Expenses.Cents != 1_500 {
		t.Errorf("Expenses = %d, want 1500", got.Expenses.Cents)
	}
	if got.Incomes.Cents != 250_000 {
		t.Errorf("Incomes = %d, want 250000", got.Incomes.Cents)
	}
	if got.Net.Cents != 248_500 {
		t.Errorf("Net = %d, want 248500", got.Net.Cents)
	}
	if len(got.ByCategory) != 1 || got.ByCategory[0].CategoryID != food.ID {
		t.Errorf("unexpected breakdown: %+v", got.ByCategory)
	}
}

func TestMonthReportCaching(t *testing.T) {
	ctx := context.Background()
	store := &countingReportStore{Store: memory.New()}
	u, _ := store.CreateUser(ctx, "test@example.com", "hash")

	lru := cache.NewLRUCache[core.MonthReport](16, time.Minute)
	reports := NewReportService(store, lru)

	if _, err := reports.Month(ctx, u.ID, 2026, 5); err != nil {
		t.Fatalf("Month: %v", err)
	}
	if _, err := reports.Month(ctx, u.ID, 2026, 5); err != nil {
		t.Fatalf("Month: %v", err)
	}
	if store.calls != 1 {
		t.Errorf("expected 1 store query after cache hit, got %d", store.calls)
	}

	reports.Invalidate(u.ID, 2026, 5)
	if _, err := reports.Month(ctx, u.ID, 2026, 5); err != nil {
		t.Fatalf("Month: %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected recompute after invalidation, got %d calls", store.calls)
	}

	reports.InvalidateUser(u.ID)
	if _, err := reports.Month(ctx, u.ID, 2026, 5); err != nil {
		t.Fatalf("Month: %v", err)
	}
	if store.calls != 3 {
		t.Errorf("expected recompute after user invalidation, got %d calls", store.calls)
	}
}
